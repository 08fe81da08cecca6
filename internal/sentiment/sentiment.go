// Package sentiment aggregates broad market mood around the per-ticker
// analysis: the CNN Fear & Greed index (with its put/call ratio series)
// and the VIX, the latter read from the same chart endpoint the fetcher
// uses. Every component degrades to a neutral default, so a partial
// upstream outage never blanks the market panel.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/transport"
	"stocksignal/models"
)

const (
	fearGreedURL = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"
	vixSymbol    = "%5EVIX"
)

// Indicators is the market sentiment snapshot served at /api/market.
type Indicators struct {
	FearAndGreed FearAndGreed `json:"fear_and_greed"`
	VIX          VIX          `json:"vix"`
	PutCallRatio PutCallRatio `json:"put_call_ratio"`
	FetchedAt    time.Time    `json:"fetched_at"`
}

type FearAndGreed struct {
	Score         int    `json:"score"`
	Rating        string `json:"rating"`
	PreviousClose int    `json:"previous_close"`
}

type VIX struct {
	Current     float64 `json:"current"`
	FiftyDayAvg float64 `json:"fifty_day_avg"`
	Rating      string  `json:"rating"`
}

type PutCallRatio struct {
	Current float64 `json:"current"`
	Rating  string  `json:"rating"`
}

// graphData is the slice of the CNN payload we consume.
type graphData struct {
	FearAndGreed struct {
		Score         float64 `json:"score"`
		Rating        string  `json:"rating"`
		PreviousClose float64 `json:"previous_close"`
	} `json:"fear_and_greed"`
	PutCallOptions struct {
		Rating string `json:"rating"`
		Data   []struct {
			Y float64 `json:"y"`
		} `json:"data"`
	} `json:"put_call_options"`
}

// Service fetches and briefly caches the sentiment snapshot.
type Service struct {
	transport transport.Transport
	chartBase string
	ttl       time.Duration
	logger    zerolog.Logger

	mu          sync.Mutex
	cached      *Indicators
	cachedUntil time.Time
}

// Options configures the sentiment Service.
type Options struct {
	ChartBaseURL string        // Yahoo chart base for the VIX series
	TTL          time.Duration // snapshot cache, default 5 minutes
}

func New(t transport.Transport, opts Options) *Service {
	if opts.ChartBaseURL == "" {
		opts.ChartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	return &Service{
		transport: t,
		chartBase: opts.ChartBaseURL,
		ttl:       opts.TTL,
		logger:    log.With().Str("component", "sentiment").Logger(),
	}
}

// neutral is the baseline snapshot used when upstream data is missing.
func neutral() Indicators {
	return Indicators{
		FearAndGreed: FearAndGreed{Score: 50, Rating: "Neutral", PreviousClose: 50},
		VIX:          VIX{Current: 20, FiftyDayAvg: 20, Rating: "Neutral"},
		PutCallRatio: PutCallRatio{Current: 0.70, Rating: "Neutral"},
	}
}

// Fetch returns the current sentiment snapshot. Upstream failures are
// logged and absorbed into neutral defaults; Fetch itself only fails on
// context cancellation.
//
// The lock covers only the cache, never the upstream calls: concurrent
// misses may both fetch and the last write wins, same contract as the
// series cache.
func (s *Service) Fetch(ctx context.Context) (*Indicators, error) {
	s.mu.Lock()
	if s.cached != nil && time.Now().Before(s.cachedUntil) {
		out := *s.cached
		s.mu.Unlock()
		return &out, nil
	}
	s.mu.Unlock()

	ind := neutral()
	ind.FetchedAt = time.Now().UTC()

	if err := s.fetchFearGreed(ctx, &ind); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("fear & greed fetch failed, using defaults")
	}
	if err := s.fetchVIX(ctx, &ind); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("vix fetch failed, using defaults")
	}

	s.mu.Lock()
	s.cached = &ind
	s.cachedUntil = time.Now().Add(s.ttl)
	s.mu.Unlock()

	out := ind
	return &out, nil
}

func (s *Service) fetchFearGreed(ctx context.Context, ind *Indicators) error {
	resp, err := s.transport.Request(ctx, fearGreedURL)
	if err != nil {
		return fmt.Errorf("fear & greed request: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("fear & greed returned status %d", resp.Status)
	}

	var data graphData
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return fmt.Errorf("decoding fear & greed: %w", err)
	}

	if data.FearAndGreed.Score > 0 {
		ind.FearAndGreed.Score = int(math.Round(data.FearAndGreed.Score))
		ind.FearAndGreed.PreviousClose = ind.FearAndGreed.Score
		if data.FearAndGreed.Rating != "" {
			ind.FearAndGreed.Rating = data.FearAndGreed.Rating
		}
		if data.FearAndGreed.PreviousClose > 0 {
			ind.FearAndGreed.PreviousClose = int(math.Round(data.FearAndGreed.PreviousClose))
		}
	}

	if n := len(data.PutCallOptions.Data); n > 0 {
		ind.PutCallRatio.Current = round2(data.PutCallOptions.Data[n-1].Y)
		if data.PutCallOptions.Rating != "" {
			ind.PutCallRatio.Rating = data.PutCallOptions.Rating
		}
	}
	return nil
}

// fetchVIX pulls 180 days of daily VIX closes and derives the current
// level plus a 50-day average (or the full-window average when fewer
// than 50 closes are available).
func (s *Service) fetchVIX(ctx context.Context, ind *Indicators) error {
	end := time.Now().Unix()
	start := end - 180*24*60*60
	u := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d", s.chartBase, vixSymbol, start, end)

	resp, err := s.transport.Request(ctx, u)
	if err != nil {
		return fmt.Errorf("vix request: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("vix chart returned status %d", resp.Status)
	}

	var chart models.ChartResponse
	if err := json.Unmarshal(resp.Body, &chart); err != nil {
		return fmt.Errorf("decoding vix chart: %w", err)
	}
	if !chart.HasData() || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return fmt.Errorf("vix chart empty")
	}

	var closes []float64
	for _, c := range chart.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	if len(closes) == 0 {
		return fmt.Errorf("vix chart has no valid closes")
	}

	current := closes[len(closes)-1]
	window := closes
	if len(closes) >= 50 {
		window = closes[len(closes)-50:]
	}
	var sum float64
	for _, v := range window {
		sum += v
	}

	ind.VIX.Current = round2(current)
	ind.VIX.FiftyDayAvg = round2(sum / float64(len(window)))
	ind.VIX.Rating = vixRating(current)
	return nil
}

func vixRating(vix float64) string {
	switch {
	case vix < 15:
		return "Low"
	case vix < 20:
		return "Neutral"
	case vix < 30:
		return "Elevated"
	default:
		return "High"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
