package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

const (
	// DefaultBaseURL is the production info endpoint.
	DefaultBaseURL = "https://api.hyperliquid.xyz"

	infoPath = "/info"

	// Rate limiting configuration for the info endpoint.
	maxRequestsPerSecond = 10
	rateLimitBurst       = 2

	// Request configuration.
	requestTimeout = 30 * time.Second

	// Retry configuration for transient HTTP failures.
	maxHTTPRetries    = 3
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// InfoClient implements Provider against the Hyperliquid info endpoint. All
// queries are POSTs of a small JSON body to a single path; the "type" field
// selects the query.
type InfoClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	logger      *slog.Logger
}

// InfoClientOption customizes an InfoClient.
type InfoClientOption func(*InfoClient)

// WithBaseURL points the client at a non-default endpoint (testnet, local
// stub).
func WithBaseURL(u string) InfoClientOption {
	return func(c *InfoClient) { c.baseURL = u }
}

// WithLogger attaches a custom logger.
func WithLogger(l *slog.Logger) InfoClientOption {
	return func(c *InfoClient) { c.logger = l }
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) InfoClientOption {
	return func(c *InfoClient) { c.httpClient = hc }
}

// WithTimeout bounds one HTTP request.
func WithTimeout(d time.Duration) InfoClientOption {
	return func(c *InfoClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit replaces the outbound requests-per-second budget.
func WithRateLimit(perSecond int) InfoClientOption {
	return func(c *InfoClient) {
		if perSecond > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), rateLimitBurst)
		}
	}
}

// NewInfoClient creates a client with connection pooling, request pacing and
// bounded retries.
func NewInfoClient(opts ...InfoClientOption) *InfoClient {
	c := &InfoClient{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(maxRequestsPerSecond), rateLimitBurst),
		baseURL:     DefaultBaseURL,
		logger:      slog.Default().With("component", "info_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire-level request and response shapes.

type infoRequest struct {
	Type string `json:"type"`
	Dex  string `json:"dex,omitempty"`
	Req  any    `json:"req,omitempty"`
}

type candleSnapshotReq struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type metaResponse struct {
	Universe        []RawAsset `json:"universe"`
	CollateralToken *int       `json:"collateralToken"`
}

type spotTokenWire struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	WeiDecimals int    `json:"weiDecimals"`
	IsCanonical bool   `json:"isCanonical"`
	TokenID     string `json:"tokenId"`
}

type spotPairWire struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Tokens      [2]int `json:"tokens"`
	IsCanonical bool   `json:"isCanonical"`
}

type spotMetaResponse struct {
	Tokens   []spotTokenWire `json:"tokens"`
	Universe []spotPairWire  `json:"universe"`
}

type candleWire struct {
	OpenTime   int64  `json:"t"`
	CloseTime  int64  `json:"T"`
	Coin       string `json:"s"`
	Interval   string `json:"i"`
	Open       string `json:"o"`
	High       string `json:"h"`
	Low        string `json:"l"`
	Close      string `json:"c"`
	Volume     string `json:"v"`
	TradeCount int    `json:"n"`
}

// FetchVenueList implements VenueLister. The endpoint returns an array whose
// first element is null (the primary venue slot); nil entries are preserved
// so the catalog can number positions correctly.
func (c *InfoClient) FetchVenueList(ctx context.Context) ([]*RawVenue, error) {
	body, err := c.post(ctx, infoRequest{Type: "perpDexs"})
	if err != nil {
		return nil, err
	}

	var venues []*RawVenue
	if err := json.Unmarshal(body, &venues); err != nil {
		return nil, &apperrors.TransportError{Op: "perpDexs", Cause: fmt.Errorf("malformed venue list: %w", err)}
	}

	c.logger.Debug("fetched venue list", "entries", len(venues))
	return venues, nil
}

// FetchAssetListing implements AssetLister. An empty venue selects the
// primary perpetual universe.
func (c *InfoClient) FetchAssetListing(ctx context.Context, venue string) (*AssetListing, error) {
	body, err := c.post(ctx, infoRequest{Type: "meta", Dex: venue})
	if err != nil {
		return nil, err
	}

	var meta metaResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, &apperrors.TransportError{Op: "meta", Cause: fmt.Errorf("malformed meta response: %w", err)}
	}

	listing := &AssetListing{
		Venue:  venue,
		Assets: meta.Universe,
	}
	if meta.CollateralToken != nil {
		listing.CollateralToken = *meta.CollateralToken
	}

	c.logger.Debug("fetched asset listing", "venue", venue, "assets", len(listing.Assets))
	return listing, nil
}

// FetchSpotMeta implements SpotMetaProvider.
func (c *InfoClient) FetchSpotMeta(ctx context.Context) (*SpotMeta, error) {
	body, err := c.post(ctx, infoRequest{Type: "spotMeta"})
	if err != nil {
		return nil, err
	}

	var wire spotMetaResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &apperrors.TransportError{Op: "spotMeta", Cause: fmt.Errorf("malformed spotMeta response: %w", err)}
	}

	meta := &SpotMeta{
		Tokens: make([]models.SpotToken, 0, len(wire.Tokens)),
		Pairs:  make([]models.SpotPair, 0, len(wire.Universe)),
	}
	for _, t := range wire.Tokens {
		meta.Tokens = append(meta.Tokens, models.SpotToken{
			Index:       t.Index,
			Name:        t.Name,
			SzDecimals:  t.SzDecimals,
			WeiDecimals: t.WeiDecimals,
			IsCanonical: t.IsCanonical,
			Contract:    t.TokenID,
		})
	}
	for _, p := range wire.Universe {
		meta.Pairs = append(meta.Pairs, models.SpotPair{
			Index:       p.Index,
			Name:        p.Name,
			Tokens:      p.Tokens,
			IsCanonical: p.IsCanonical,
		})
	}

	c.logger.Debug("fetched spot meta", "tokens", len(meta.Tokens), "pairs", len(meta.Pairs))
	return meta, nil
}

// FetchCandles implements CandleSource for a single bounded window. Close
// times missing from the wire are normalized to open time plus one interval.
func (c *InfoClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := c.post(ctx, infoRequest{
		Type: "candleSnapshot",
		Req: candleSnapshotReq{
			Coin:      req.Coin,
			Interval:  req.Interval.String(),
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
	})
	if err != nil {
		return nil, err
	}

	var wire []candleWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &apperrors.TransportError{Op: "candleSnapshot", Cause: fmt.Errorf("malformed candle response: %w", err)}
	}

	intervalMs := req.Interval.Millis()
	candles := make([]models.Candle, 0, len(wire))
	for _, w := range wire {
		if w.OpenTime == 0 {
			continue
		}
		closeTime := w.CloseTime
		if closeTime == 0 {
			closeTime = w.OpenTime + intervalMs
		}
		candles = append(candles, models.Candle{
			OpenTime:   w.OpenTime,
			CloseTime:  closeTime,
			Open:       w.Open,
			High:       w.High,
			Low:        w.Low,
			Close:      w.Close,
			Volume:     w.Volume,
			TradeCount: w.TradeCount,
			Coin:       req.Coin,
			Interval:   req.Interval,
		})
	}

	c.logger.Debug("fetched candle window",
		"coin", req.Coin,
		"interval", req.Interval,
		"start", req.StartTime,
		"end", req.EndTime,
		"slots", req.BarSpan(),
		"bars", len(candles))
	return candles, nil
}

// post sends one info query with pacing and bounded retries on transient
// failures. 4xx responses are not retried; 5xx and network errors are.
func (c *InfoClient) post(ctx context.Context, req infoRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal info request: %w", err)
	}

	var body []byte
	operation := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+infoPath, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("info %s: upstream status %d", req.Type, resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("info %s: status %d: %s", req.Type, resp.StatusCode, data))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialRetryDelay
	policy.MaxInterval = maxRetryDelay
	retry := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), maxHTTPRetries)

	if err := backoff.RetryNotify(operation, retry, func(err error, d time.Duration) {
		c.logger.Warn("info request failed, retrying",
			"type", req.Type,
			"error", err,
			"retry_delay", d)
	}); err != nil {
		return nil, &apperrors.TransportError{Op: req.Type, Cause: err}
	}
	return body, nil
}
