// hlmarket is a command-line front end for the asset registry and candle
// history components.
//
// Usage:
//
//	hlmarket refresh
//	hlmarket resolve BTC-USDC
//	hlmarket candles BTC 1h 2024-01-01T00:00:00Z 2024-02-01T00:00:00Z
//
// Global flags: -config FILE selects a JSON configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opmau/hyperliquid-market-data/internal/config"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/history"
	"github.com/opmau/hyperliquid-market-data/internal/logger"
	"github.com/opmau/hyperliquid-market-data/internal/models"
	"github.com/opmau/hyperliquid-market-data/internal/registry"
	"github.com/opmau/hyperliquid-market-data/internal/symbols"
)

const (
	exitSuccess    = 0
	exitUsageError = 1
	exitConfigErr  = 2
	exitDataError  = 4
	exitInterrupt  = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("hlmarket", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to JSON configuration file")
	if err := flags.Parse(args); err != nil {
		return exitUsageError
	}

	rest := flags.Args()
	if len(rest) == 0 {
		usage()
		return exitUsageError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfigErr
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := exchange.NewInfoClient(
		exchange.WithBaseURL(cfg.Provider.Endpoint),
		exchange.WithTimeout(cfg.ProviderTimeout()),
		exchange.WithRateLimit(cfg.Provider.RateLimit),
		exchange.WithLogger(log),
	)
	reg := registry.New(client, log)

	var code int
	switch rest[0] {
	case "refresh":
		code = cmdRefresh(ctx, reg)
	case "resolve":
		code = cmdResolve(ctx, cfg, reg, rest[1:])
	case "candles":
		code = cmdCandles(ctx, cfg, log, client, rest[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", rest[0])
		usage()
		code = exitUsageError
	}

	if ctx.Err() != nil {
		return exitInterrupt
	}
	return code
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  hlmarket [-config FILE] refresh
  hlmarket [-config FILE] resolve SYMBOL
  hlmarket [-config FILE] candles COIN INTERVAL START END

START and END are RFC3339 timestamps.`)
}

func cmdRefresh(ctx context.Context, reg *registry.Registry) int {
	result, err := reg.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
		return exitDataError
	}

	fmt.Printf("refreshed %d assets across %d venues\n", result.Total(), result.VenueCount)
	fmt.Printf("  primary:   %d\n", result.PrimaryCount)
	fmt.Printf("  secondary: %d\n", result.SecondaryCount)
	fmt.Printf("  spot:      %d\n", result.SpotCount)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %v\n", w)
	}
	return exitSuccess
}

func cmdResolve(ctx context.Context, cfg *config.AppConfig, reg *registry.Registry, args []string) int {
	if len(args) != 1 {
		usage()
		return exitUsageError
	}

	if err := reg.EnsureFresh(ctx, cfg.RefreshEvery()); err != nil {
		fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
		return exitDataError
	}
	desc, err := reg.ResolveSymbol(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitDataError
	}

	snap, _ := reg.Snapshot()
	codec := symbols.New(snap)
	fmt.Printf("%s\n", desc)
	fmt.Printf("  wire coin:    %s\n", codec.Encode(desc))
	fmt.Printf("  min size:     %s\n", desc.MinSize())
	fmt.Printf("  tick size:    %s\n", desc.TickSize())
	fmt.Printf("  max leverage: %d\n", desc.MaxLeverage)
	return exitSuccess
}

func cmdCandles(ctx context.Context, cfg *config.AppConfig, log *slog.Logger, client *exchange.InfoClient, args []string) int {
	if len(args) != 4 {
		usage()
		return exitUsageError
	}

	interval, err := models.ParseInterval(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitUsageError
	}
	start, err := time.Parse(time.RFC3339, args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid start time: %v\n", err)
		return exitUsageError
	}
	end, err := time.Parse(time.RFC3339, args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid end time: %v\n", err)
		return exitUsageError
	}

	initial, max := cfg.HistoryBackoff()
	fetcher := history.New(client, history.Config{
		MaxRetries:     cfg.History.MaxRetries,
		InitialBackoff: initial,
		MaxBackoff:     max,
		Logger:         log,
	})

	series, err := fetcher.Fetch(ctx, args[0], interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
		return exitDataError
	}

	fmt.Printf("%s %s: %d bars in %d windows (%s)\n",
		series.Coin, series.Interval, len(series.Candles), series.Windows, series.Status)
	for i := range series.Candles {
		c := &series.Candles[i]
		tag := ""
		if c.IsSynthetic {
			tag = "  [synthetic]"
		}
		fmt.Printf("%s  O:%s H:%s L:%s C:%s V:%s N:%d%s\n",
			c.OpenTimeUTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount, tag)
	}
	for _, g := range series.Gaps {
		fmt.Printf("gap: %d missing %s bars between %s and %s\n",
			g.MissingCount, g.Interval,
			time.UnixMilli(g.FromTime).UTC().Format(time.RFC3339),
			time.UnixMilli(g.ToTime).UTC().Format(time.RFC3339))
	}
	for _, w := range series.Warnings {
		fmt.Printf("warning: %v\n", w)
	}
	return exitSuccess
}
