// Package errors defines the error taxonomy shared by the registry and
// history components and the retry classification applied to it.
//
// The taxonomy has four categories:
//   - caller contract violations: surfaced immediately, never retried
//   - data inconsistency warnings: carried on result values, processing continues
//   - transient transport failures: retryable with bounded backoff
//   - invariant breaches: fatal, the operation is aborted
package errors

import (
	"errors"
	"fmt"
)

// InvalidPrecisionInputError reports a precision resolution call that
// violated the caller contract (e.g. negative size decimals).
type InvalidPrecisionInputError struct {
	Class      string
	SzDecimals int
}

func (e *InvalidPrecisionInputError) Error() string {
	return fmt.Sprintf("invalid precision input: class %s, szDecimals %d", e.Class, e.SzDecimals)
}

// UnknownAssetError reports a lookup for an asset ID the registry does not
// hold.
type UnknownAssetError struct {
	AssetID int
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset ID %d", e.AssetID)
}

// SymbolResolutionError reports a human-facing symbol that could not be
// resolved to a descriptor.
type SymbolResolutionError struct {
	Symbol string
	Reason string
}

func (e *SymbolResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot resolve symbol %q", e.Symbol)
	}
	return fmt.Sprintf("cannot resolve symbol %q: %s", e.Symbol, e.Reason)
}

// DuplicateVenueError reports a venue name that appeared more than once in a
// venue listing. The first occurrence is kept; the duplicate is skipped.
type DuplicateVenueError struct {
	Name       string
	FirstIndex int
	DupIndex   int
}

func (e *DuplicateVenueError) Error() string {
	return fmt.Sprintf("duplicate venue %q at listing position %d (first seen at %d)", e.Name, e.DupIndex, e.FirstIndex)
}

// PrecisionMismatchWarning records a descriptor that arrived with a price
// precision disagreeing with the recomputed value. The recomputed value is
// authoritative; the warning makes the upstream defect visible.
type PrecisionMismatchWarning struct {
	AssetID    int
	Name       string
	Declared   int
	Recomputed int
}

func (w *PrecisionMismatchWarning) Error() string {
	return fmt.Sprintf("asset %q (%d): declared pxDecimals %d, recomputed %d",
		w.Name, w.AssetID, w.Declared, w.Recomputed)
}

// SpotPairSkippedWarning records a spot pair dropped from the universe
// because its base token is missing from the token table.
type SpotPairSkippedWarning struct {
	Pair       string
	PairIndex  int
	TokenIndex int
}

func (w *SpotPairSkippedWarning) Error() string {
	return fmt.Sprintf("spot pair %q (index %d) skipped: unknown base token %d", w.Pair, w.PairIndex, w.TokenIndex)
}

// PartialResultWarning records that a fetch degraded to the prefix assembled
// before retries were exhausted.
type PartialResultWarning struct {
	Coin     string
	FromTime int64
	Cause    error
}

func (w *PartialResultWarning) Error() string {
	return fmt.Sprintf("partial result for %s: window at %d failed: %v", w.Coin, w.FromTime, w.Cause)
}

func (w *PartialResultWarning) Unwrap() error { return w.Cause }

// TransportError wraps a network or upstream failure. Transport errors are
// retryable for candle fetches and hard failures for registry refreshes.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// DataUnavailableError reports a fetch window that failed after its retry
// budget was spent.
type DataUnavailableError struct {
	Coin      string
	StartTime int64
	EndTime   int64
	Attempts  int
	Cause     error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable for %s [%d, %d] after %d attempts: %v",
		e.Coin, e.StartTime, e.EndTime, e.Attempts, e.Cause)
}

func (e *DataUnavailableError) Unwrap() error { return e.Cause }

// SeriesCorruptionError reports an out-of-order or duplicate open time in an
// assembled candle series. This does not happen under correct pagination; it
// signals an upstream or pagination bug, so the whole fetch is aborted.
type SeriesCorruptionError struct {
	Coin     string
	Index    int
	PrevOpen int64
	CurOpen  int64
}

func (e *SeriesCorruptionError) Error() string {
	return fmt.Sprintf("series corruption for %s at index %d: open time %d follows %d",
		e.Coin, e.Index, e.CurOpen, e.PrevOpen)
}

// AssetCollisionError reports two descriptors mapping to the same asset ID
// during a registry rebuild. The rebuild is aborted: a collision means the
// merge algorithm itself is broken.
type AssetCollisionError struct {
	AssetID  int
	Existing string
	Incoming string
}

func (e *AssetCollisionError) Error() string {
	return fmt.Sprintf("asset ID collision at %d: %q and %q", e.AssetID, e.Existing, e.Incoming)
}

// Retryable reports whether an error may succeed on retry. Only transport
// failures qualify; contract violations and invariant breaches never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	// DataUnavailableError wraps the transport cause it already retried to
	// exhaustion, so it must be recognized before the chain walk reaches
	// that cause.
	var due *DataUnavailableError
	if errors.As(err, &due) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te)
}

// Fatal reports whether an error is an invariant breach that must abort the
// surrounding operation.
func Fatal(err error) bool {
	var sce *SeriesCorruptionError
	var ace *AssetCollisionError
	return errors.As(err, &sce) || errors.As(err, &ace)
}

// As, Is and New re-export the stdlib helpers so callers need a single errors
// import.
var (
	As  = errors.As
	Is  = errors.Is
	New = errors.New
)
