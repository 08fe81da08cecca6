package controller

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/fetcher"
	"stocksignal/internal/indicator"
	"stocksignal/internal/signal"
	"stocksignal/models"
)

// Analyzer turns one ticker into one AnalysisResult. The error return
// carries the failure kind for the controller's retry policy; the
// result itself is always complete (error results carry zero numeric
// fields and Alert false).
type Analyzer interface {
	Analyze(ctx context.Context, ticker string) (models.AnalysisResult, error)
}

// SeriesSource is the slice of the fetcher the analyzer needs.
type SeriesSource interface {
	Fetch(ctx context.Context, ticker string) (*fetcher.FetchResult, error)
}

// TickerAnalyzer is the production pipeline: fetch, compute indicators
// over adjusted closes, classify. Settings are fixed at construction;
// the controller builds a fresh analyzer per run so a run never sees a
// settings change mid-flight.
type TickerAnalyzer struct {
	source   SeriesSource
	settings models.AnalysisSettings
	logger   zerolog.Logger
}

// NewTickerAnalyzer builds an analyzer bound to the given settings.
func NewTickerAnalyzer(source SeriesSource, settings models.AnalysisSettings) *TickerAnalyzer {
	return &TickerAnalyzer{
		source:   source,
		settings: settings,
		logger:   log.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze fetches and scores a single ticker. Fetch failures become
// error-carrying results; the raw error is also returned so the caller
// can distinguish rate limiting from the rest.
func (a *TickerAnalyzer) Analyze(ctx context.Context, ticker string) (models.AnalysisResult, error) {
	symbol := models.NormalizeTicker(ticker)
	result := models.AnalysisResult{Ticker: symbol}

	res, err := a.source.Fetch(ctx, symbol)
	if err != nil {
		result.Error = err.Error()
		if res != nil {
			result.Cached = res.FromCache
			result.ResolvedSymbol = res.ResolvedSymbol
		}
		a.logger.Debug().Str("ticker", symbol).Err(err).Msg("analysis failed")
		return result, err
	}

	series := res.Series
	snap := models.IndicatorSnapshot{
		RSI: indicator.RSI(series.AdjCloses, a.settings.RSIPeriod),
		MFI: indicator.MFI(series.Highs, series.Lows, series.AdjCloses, series.Volumes, a.settings.MFIPeriod),
	}
	bands := indicator.BollingerBands(series.AdjCloses, a.settings.BBPeriod, a.settings.BBStdDev)
	snap.BBLower, snap.BBMiddle, snap.BBUpper = bands.Lower, bands.Middle, bands.Upper

	if math.IsNaN(snap.RSI) || math.IsNaN(snap.MFI) || math.IsNaN(snap.BBLower) {
		err := errors.New("insufficient data for indicator lookback")
		result.Error = err.Error()
		result.Cached = res.FromCache
		return result, err
	}

	c := signal.Classify(snap, series.LatestAdjClose(), a.settings)

	result.RSI = snap.RSI
	result.MFI = snap.MFI
	result.BBLower = snap.BBLower
	result.BBMiddle = snap.BBMiddle
	result.BBUpper = snap.BBUpper
	result.Price = series.LatestClose()
	result.AdjClose = series.LatestAdjClose()
	result.BBTouch = c.BBTouch
	result.Alert = c.Alert
	result.Cached = res.FromCache
	result.ResolvedSymbol = res.ResolvedSymbol

	return result, nil
}
