// Package fetcher normalizes ticker symbols, pulls daily price history
// through the transport (consulting the shared series cache first), and
// aligns the returned arrays so nothing downstream ever sees a
// partially null row.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/cache"
	"stocksignal/internal/transport"
	"stocksignal/models"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Options configures a Fetcher.
type Options struct {
	BaseURL      string
	LookbackDays int // 0 means 180
	MinPoints    int // 0 means 21: max(default periods) + 1
}

// FetchResult is the outcome of one fetch.
type FetchResult struct {
	Series         *models.RawSeries
	FromCache      bool
	ResolvedSymbol string // which symbol variant actually resolved
}

// Fetcher resolves a ticker to an aligned price series.
type Fetcher struct {
	transport    transport.Transport
	cache        *cache.SeriesCache
	baseURL      string
	lookbackDays int
	minPoints    int
	logger       zerolog.Logger
}

// New creates a Fetcher on top of the given transport and cache.
func New(t transport.Transport, c *cache.SeriesCache, opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.LookbackDays == 0 {
		opts.LookbackDays = 180
	}
	if opts.MinPoints == 0 {
		opts.MinPoints = models.DefaultSettings().MinDataPoints()
	}
	return &Fetcher{
		transport:    t,
		cache:        c,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		lookbackDays: opts.LookbackDays,
		minPoints:    opts.MinPoints,
		logger:       log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch returns the aligned series for ticker, from cache when fresh.
// When the upstream has nothing for the exact symbol and it contains a
// literal dot, the dot-to-dash exchange-suffix variant is tried once
// (BRK.B -> BRK-B); ResolvedSymbol records which form answered.
//
// ErrInsufficientData is returned together with the partial result:
// the series was fetched, aligned, and cached, but is shorter than the
// longest indicator lookback.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (*FetchResult, error) {
	symbol := models.NormalizeTicker(ticker)

	if series, resolved, ok := f.cache.Get(symbol); ok {
		if resolved == "" {
			resolved = symbol
		}
		f.logger.Debug().Str("ticker", symbol).Msg("cache hit")
		return f.withLengthCheck(&FetchResult{
			Series:         series,
			FromCache:      true,
			ResolvedSymbol: resolved,
		})
	}

	chart, resolved, err := f.fetchChart(ctx, symbol)
	if err != nil {
		return nil, err
	}

	series, err := alignSeries(chart)
	if err != nil {
		return nil, err
	}

	f.cache.Put(symbol, series, resolved)
	f.logger.Debug().
		Str("ticker", symbol).
		Str("resolved", resolved).
		Int("points", series.Len()).
		Msg("fetched and aligned series")

	return f.withLengthCheck(&FetchResult{
		Series:         series,
		ResolvedSymbol: resolved,
	})
}

func (f *Fetcher) withLengthCheck(res *FetchResult) (*FetchResult, error) {
	if res.Series.Len() < f.minPoints {
		return res, fmt.Errorf("%w: %d of %d points", ErrInsufficientData, res.Series.Len(), f.minPoints)
	}
	return res, nil
}

// fetchChart requests the chart for symbol, falling back once to the
// dash variant when the exact symbol has no result.
func (f *Fetcher) fetchChart(ctx context.Context, symbol string) (*models.ChartResult, string, error) {
	chart, err := f.requestChart(ctx, symbol)
	if err != nil {
		return nil, "", err
	}

	if !chart.HasData() && strings.Contains(symbol, ".") {
		variant := strings.ReplaceAll(symbol, ".", "-")
		f.logger.Debug().Str("ticker", symbol).Str("variant", variant).Msg("retrying with dash variant")

		chart, err = f.requestChart(ctx, variant)
		if err != nil {
			return nil, "", err
		}
		if chart.HasData() {
			return &chart.Chart.Result[0], variant, nil
		}
		return nil, "", fmt.Errorf("%w: %s (also tried %s)", ErrNotFound, symbol, variant)
	}

	if !chart.HasData() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	return &chart.Chart.Result[0], symbol, nil
}

func (f *Fetcher) requestChart(ctx context.Context, symbol string) (*models.ChartResponse, error) {
	end := time.Now().Unix()
	start := end - int64(f.lookbackDays)*24*60*60

	u := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d&events=div%%2Csplit",
		f.baseURL, url.PathEscape(symbol), start, end)

	resp, err := f.transport.Request(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("chart request for %s: %w", symbol, err)
	}

	if resp.Status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, symbol)
	}

	var chart models.ChartResponse
	if err := json.Unmarshal(resp.Body, &chart); err != nil {
		return nil, fmt.Errorf("decoding chart for %s: %w", symbol, err)
	}

	// Not-found often arrives as a 404 with a chart error object; both
	// collapse into the same empty-result shape handled by the caller.
	if chart.Chart.Error != nil && chart.HasData() {
		return nil, fmt.Errorf("upstream error for %s: %s", symbol, chart.Chart.Error.Description)
	}

	return &chart, nil
}

// alignSeries projects all arrays onto the index set where every OHLCV
// component is non-null. Adjusted closes fall back to raw closes when
// the upstream omits them (or a single entry is null).
func alignSeries(result *models.ChartResult) (*models.RawSeries, error) {
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: missing quote block", ErrEmptyData)
	}
	quote := result.Indicators.Quote[0]

	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	series := &models.RawSeries{}
	for i := range result.Timestamp {
		if i >= len(quote.Close) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Volume) {
			break
		}
		if quote.Close[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Volume[i] == nil {
			continue
		}

		adj := *quote.Close[i]
		if i < len(adjCloses) && adjCloses[i] != nil {
			adj = *adjCloses[i]
		}

		series.Timestamps = append(series.Timestamps, result.Timestamp[i])
		series.Closes = append(series.Closes, *quote.Close[i])
		series.AdjCloses = append(series.AdjCloses, adj)
		series.Highs = append(series.Highs, *quote.High[i])
		series.Lows = append(series.Lows, *quote.Low[i])
		series.Volumes = append(series.Volumes, *quote.Volume[i])
	}

	if series.Len() == 0 {
		return nil, ErrEmptyData
	}
	return series, nil
}
