package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/config"
	"stocksignal/internal/cache"
	"stocksignal/internal/controller"
	"stocksignal/internal/fetcher"
	"stocksignal/internal/metrics"
	"stocksignal/internal/notifier"
	"stocksignal/internal/scheduler"
	"stocksignal/internal/sentiment"
	"stocksignal/internal/server"
	"stocksignal/internal/store"
	"stocksignal/internal/transport"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting stocksignal server")
	printConfig(cfg)

	// 3. Transport: direct by default, relayed when a proxy is set
	tr := transport.Resolve(transport.Options{
		Timeout:        cfg.RequestTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
		ProxyBaseURL:   cfg.ProxyBaseURL,
	})

	// 4. Analysis pipeline
	seriesCache := cache.New(cfg.CacheTTL())
	f := fetcher.New(tr, seriesCache, fetcher.Options{
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

	// 5. Watchlist store
	var watchlist store.TickerStore
	if cfg.DBDriver == "memory" {
		watchlist = store.NewMemoryStore()
	} else {
		watchlist, err = store.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open watchlist store")
		}
	}
	defer watchlist.Close()

	// 6. Metrics observer
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	metricEvents, unsubMetrics := ctrl.Subscribe()
	defer unsubMetrics()
	go m.Observe(metricEvents)

	// 7. Telegram alerts (optional)
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notifier.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("Telegram notifier disabled")
		} else {
			alertEvents, unsubAlerts := ctrl.Subscribe()
			defer unsubAlerts()
			go tg.Observe(alertEvents)
			log.Info().Msg("Telegram alerts enabled")
		}
	}

	// 8. Scheduled watchlist runs (optional)
	if cfg.AnalysisCron != "" {
		sched, err := scheduler.New(cfg.AnalysisCron, ctrl, watchlist)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build scheduler")
		}
		sched.Start()
		defer sched.Stop()
	}

	// 9. WebSocket hub and HTTP API
	hub := server.NewHub(ctrl)
	go hub.Run(ctx)

	srv := server.New(server.Options{
		Controller:     ctrl,
		Watchlist:      watchlist,
		Sentiment:      sentiment.New(tr, sentiment.Options{TTL: cfg.CacheTTL()}),
		Hub:            hub,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// 10. Graceful shutdown
	waitForShutdown(cancel)
	ctrl.Stop()
	ctrl.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// waitForShutdown blocks until an interrupt or termination signal.
func waitForShutdown(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("Shutdown signal received, exiting...")
	cancel()
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

// printConfig outputs the current configuration
func printConfig(cfg *config.Config) {
	log.Info().
		Str("ListenAddr", cfg.ListenAddr).
		Int("RequestTimeout", cfg.RequestTimeout).
		Int("RequestsPerSec", cfg.RequestsPerSec).
		Int("LookbackDays", cfg.LookbackDays).
		Int("CacheTTLMinutes", cfg.CacheTTLMinutes).
		Int("TickerDelayMs", cfg.TickerDelayMs).
		Int("RSIPeriod", cfg.RSIPeriod).
		Float64("RSITripleSignal", cfg.RSITripleSignal).
		Int("MFIPeriod", cfg.MFIPeriod).
		Float64("MFITripleSignal", cfg.MFITripleSignal).
		Int("BBPeriod", cfg.BBPeriod).
		Float64("BBStdDev", cfg.BBStdDev).
		Str("DBDriver", cfg.DBDriver).
		Bool("ProxyEnabled", cfg.ProxyBaseURL != "").
		Msg("Configuration loaded")
}
