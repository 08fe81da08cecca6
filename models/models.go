package models

import (
	"fmt"
	"strings"
)

// RawSeries holds aligned daily OHLCV data plus adjusted closes for one
// ticker. All slices have equal length and share the same index set;
// rows with any null component are dropped before alignment, so no
// entry downstream is ever partially null.
type RawSeries struct {
	Timestamps []int64   `json:"timestamps"`
	Closes     []float64 `json:"closes"`
	AdjCloses  []float64 `json:"adj_closes"`
	Highs      []float64 `json:"highs"`
	Lows       []float64 `json:"lows"`
	Volumes    []float64 `json:"volumes"`
}

// Len returns the number of aligned data points.
func (s *RawSeries) Len() int {
	return len(s.Closes)
}

// LatestClose returns the most recent raw close, used for display.
func (s *RawSeries) LatestClose() float64 {
	if len(s.Closes) == 0 {
		return 0
	}
	return s.Closes[len(s.Closes)-1]
}

// LatestAdjClose returns the most recent adjusted close, used for all
// indicator math and the band-touch check.
func (s *RawSeries) LatestAdjClose() float64 {
	if len(s.AdjCloses) == 0 {
		return 0
	}
	return s.AdjCloses[len(s.AdjCloses)-1]
}

// IndicatorSnapshot holds the computed indicator values for one ticker.
// NaN marks an indicator that could not be computed from the available
// data; snapshots with NaN values are never serialized into results.
type IndicatorSnapshot struct {
	RSI      float64 `json:"rsi"`
	MFI      float64 `json:"mfi"`
	BBLower  float64 `json:"bb_lower"`
	BBMiddle float64 `json:"bb_middle"`
	BBUpper  float64 `json:"bb_upper"`
}

// AnalysisResult is the per-ticker outcome of one analysis pass.
// When Error is set, all numeric fields are zero and Alert is false.
type AnalysisResult struct {
	Ticker         string  `json:"ticker"`
	Alert          bool    `json:"alert"`
	RSI            float64 `json:"rsi"`
	MFI            float64 `json:"mfi"`
	BBTouch        bool    `json:"bb_touch"`
	BBLower        float64 `json:"bb_lower"`
	BBMiddle       float64 `json:"bb_middle"`
	BBUpper        float64 `json:"bb_upper"`
	Price          float64 `json:"price"`
	AdjClose       float64 `json:"adj_close"`
	Error          string  `json:"error,omitempty"`
	Cached         bool    `json:"cached,omitempty"`
	ResolvedSymbol string  `json:"resolved_symbol,omitempty"`
}

// AnalysisSettings holds the user-tunable thresholds and periods.
// It is an immutable input to classification: a settings change
// re-labels existing results without a new fetch. Period changes for
// Bollinger Bands cannot be honored without a re-fetch; that limitation
// is surfaced to the caller, not silently worked around.
type AnalysisSettings struct {
	RSIPeriod       int     `json:"rsi_period"`
	RSITripleSignal float64 `json:"rsi_triple_signal"`
	MFIPeriod       int     `json:"mfi_period"`
	MFITripleSignal float64 `json:"mfi_triple_signal"`
	BBPeriod        int     `json:"bb_period"`
	BBStdDev        float64 `json:"bb_std_dev"`
}

// DefaultSettings returns the stock defaults: 14-period RSI/MFI with a
// triple-signal threshold of 30, and 20-period Bollinger Bands at one
// standard deviation.
func DefaultSettings() AnalysisSettings {
	return AnalysisSettings{
		RSIPeriod:       14,
		RSITripleSignal: 30,
		MFIPeriod:       14,
		MFITripleSignal: 30,
		BBPeriod:        20,
		BBStdDev:        1,
	}
}

// Validate reports malformed settings. Unlike per-ticker fetch errors,
// a settings violation is a programming-contract failure and is fatal
// to the controller.
func (s AnalysisSettings) Validate() error {
	if s.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be >= 2, got %d", s.RSIPeriod)
	}
	if s.MFIPeriod < 2 {
		return fmt.Errorf("mfi_period must be >= 2, got %d", s.MFIPeriod)
	}
	if s.BBPeriod < 2 {
		return fmt.Errorf("bb_period must be >= 2, got %d", s.BBPeriod)
	}
	if s.BBStdDev <= 0 {
		return fmt.Errorf("bb_std_dev must be > 0, got %v", s.BBStdDev)
	}
	if s.RSITripleSignal <= 0 || s.RSITripleSignal >= 100 {
		return fmt.Errorf("rsi_triple_signal must be in (0, 100), got %v", s.RSITripleSignal)
	}
	if s.MFITripleSignal <= 0 || s.MFITripleSignal >= 100 {
		return fmt.Errorf("mfi_triple_signal must be in (0, 100), got %v", s.MFITripleSignal)
	}
	return nil
}

// MinDataPoints returns the minimum aligned series length required by
// the indicator with the longest lookback.
func (s AnalysisSettings) MinDataPoints() int {
	n := s.BBPeriod
	if s.RSIPeriod > n {
		n = s.RSIPeriod
	}
	if s.MFIPeriod > n {
		n = s.MFIPeriod
	}
	return n + 1
}

// Progress describes how far a batch run has advanced.
type Progress struct {
	Current       int    `json:"current"`
	Total         int    `json:"total"`
	CurrentTicker string `json:"current_ticker"`
}

// NormalizeTicker canonicalizes a user-supplied symbol. The normalized
// form is the identity key for queueing, caching, and result upsert.
func NormalizeTicker(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
