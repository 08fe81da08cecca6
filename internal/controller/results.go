package controller

import (
	"stocksignal/internal/signal"
	"stocksignal/models"
)

// resultSet stores AnalysisResults upserted by ticker key. First-seen
// order is preserved so a UI sees a stable list; the value for a ticker
// is always the most recently completed analysis, regardless of which
// run produced it.
type resultSet struct {
	order    []string
	byTicker map[string]models.AnalysisResult
}

func newResultSet() *resultSet {
	return &resultSet{byTicker: make(map[string]models.AnalysisResult)}
}

func (rs *resultSet) upsert(r models.AnalysisResult) {
	if _, seen := rs.byTicker[r.Ticker]; !seen {
		rs.order = append(rs.order, r.Ticker)
	}
	rs.byTicker[r.Ticker] = r
}

func (rs *resultSet) remove(ticker string) bool {
	key := models.NormalizeTicker(ticker)
	if _, ok := rs.byTicker[key]; !ok {
		return false
	}
	delete(rs.byTicker, key)
	for i, t := range rs.order {
		if t == key {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
	return true
}

func (rs *resultSet) list() []models.AnalysisResult {
	out := make([]models.AnalysisResult, 0, len(rs.order))
	for _, t := range rs.order {
		out = append(out, rs.byTicker[t])
	}
	return out
}

func (rs *resultSet) clear() {
	rs.order = nil
	rs.byTicker = make(map[string]models.AnalysisResult)
}

// reapply re-labels every stored result under new settings and returns
// the updated list in order.
func (rs *resultSet) reapply(settings models.AnalysisSettings) []models.AnalysisResult {
	for t, r := range rs.byTicker {
		rs.byTicker[t] = signal.Reapply(r, settings)
	}
	return rs.list()
}
