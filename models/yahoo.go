package models

// ChartResponse mirrors the Yahoo Finance v8 chart API payload. Quote
// arrays are nullable per index (holidays, halts), hence the pointer
// element types.
type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

// ChartError is the upstream error object attached to a chart response.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ChartResult is a single symbol's chart data.
type ChartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// HasData reports whether the response carries at least one usable
// chart result. An empty result set for a symbol (even after the
// dot-to-dash retry) is the NotFound condition.
func (r *ChartResponse) HasData() bool {
	return len(r.Chart.Result) > 0 && len(r.Chart.Result[0].Timestamp) > 0
}
