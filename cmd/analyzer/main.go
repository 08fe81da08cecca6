package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/config"
	"stocksignal/internal/cache"
	"stocksignal/internal/controller"
	"stocksignal/internal/fetcher"
	"stocksignal/internal/sentiment"
	"stocksignal/internal/transport"
)

// One-shot batch analysis: analyze the tickers given on the command
// line and print the results, no server.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel)

	tickers := os.Args[1:]
	if len(tickers) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyzer TICKER [TICKER...]")
		os.Exit(2)
	}

	// 2. Build the pipeline
	tr := transport.Resolve(transport.Options{
		Timeout:        cfg.RequestTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
		ProxyBaseURL:   cfg.ProxyBaseURL,
	})
	f := fetcher.New(tr, cache.New(cfg.CacheTTL()), fetcher.Options{
		LookbackDays: cfg.LookbackDays,
		MinPoints:    cfg.Settings().MinDataPoints(),
	})
	ctrl, err := controller.New(f, cfg.Settings(), controller.Options{
		TickerDelay:    cfg.TickerDelay(),
		RateLimitTries: cfg.RateLimitTries,
		RateLimitWait:  cfg.RateLimitWait(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build controller")
	}

	// 3. Stop the run on interrupt
	setupSignalHandling(ctrl, cancel)

	// 4. Run the batch
	log.Info().Int("tickers", len(tickers)).Msg("Starting analysis")
	if err := ctrl.Start(tickers); err != nil {
		log.Fatal().Err(err).Msg("Failed to start analysis")
	}
	ctrl.Wait()

	// 5. Print results
	printResults(ctrl)

	// 6. Market sentiment footer
	printSentiment(ctx, tr)
}

func setupSignalHandling(ctrl *controller.Controller, cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, stopping run...")
		ctrl.Stop()
		cancel()
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

func printResults(ctrl *controller.Controller) {
	fmt.Println("\n===== ANALYSIS RESULTS =====")
	fmt.Printf("%-10s %8s %8s %10s %10s %8s  %s\n",
		"TICKER", "RSI", "MFI", "PRICE", "BB LOWER", "TOUCH", "ALERT")

	for _, r := range ctrl.Results() {
		if r.Error != "" {
			fmt.Printf("%-10s  error: %s\n", r.Ticker, r.Error)
			continue
		}
		alert := ""
		if r.Alert {
			alert = "TRIPLE SIGNAL"
		}
		fmt.Printf("%-10s %8.2f %8.2f %10.2f %10.2f %8v  %s\n",
			r.Ticker, r.RSI, r.MFI, r.Price, r.BBLower, r.BBTouch, alert)
	}

	if failed := ctrl.FailedTickers(); len(failed) > 0 {
		fmt.Printf("\nFailed: %s\n", strings.Join(failed, ", "))
	}
}

func printSentiment(ctx context.Context, tr transport.Transport) {
	ind, err := sentiment.New(tr, sentiment.Options{}).Fetch(ctx)
	if err != nil {
		return
	}
	fmt.Println("\n===== MARKET SENTIMENT =====")
	fmt.Printf("Fear & Greed: %d (%s)\n", ind.FearAndGreed.Score, ind.FearAndGreed.Rating)
	fmt.Printf("VIX: %.2f (%s, 50-day avg %.2f)\n", ind.VIX.Current, ind.VIX.Rating, ind.VIX.FiftyDayAvg)
	fmt.Printf("Put/Call: %.2f (%s)\n", ind.PutCallRatio.Current, ind.PutCallRatio.Rating)
}
