// Package signal applies user-configurable thresholds to computed
// indicator values. Classification is pure: the UI can change
// thresholds and re-label every existing result without a fetch.
package signal

import (
	"math"

	"stocksignal/models"
)

// Classification is the outcome of applying thresholds to a snapshot.
type Classification struct {
	BBTouch bool `json:"bb_touch"`
	Alert   bool `json:"alert"`
}

// Classify decides the band-touch and triple-signal flags for one
// snapshot. BBTouch means the latest adjusted close sits at or below
// the lower Bollinger band; Alert additionally requires RSI and MFI
// below their triple-signal thresholds.
func Classify(snap models.IndicatorSnapshot, latestAdjClose float64, settings models.AnalysisSettings) Classification {
	if math.IsNaN(snap.RSI) || math.IsNaN(snap.MFI) || math.IsNaN(snap.BBLower) {
		return Classification{}
	}

	touch := latestAdjClose <= snap.BBLower
	alert := snap.RSI < settings.RSITripleSignal &&
		snap.MFI < settings.MFITripleSignal &&
		touch

	return Classification{BBTouch: touch, Alert: alert}
}

// Reapply re-derives BBTouch and Alert for an already-computed result
// under new settings, without fetching. Band values themselves come
// from the stored snapshot: BBPeriod/BBStdDev changes only take effect
// on the next fetch. Error-carrying results pass through unchanged.
func Reapply(result models.AnalysisResult, settings models.AnalysisSettings) models.AnalysisResult {
	if result.Error != "" {
		return result
	}

	c := Classify(models.IndicatorSnapshot{
		RSI:      result.RSI,
		MFI:      result.MFI,
		BBLower:  result.BBLower,
		BBMiddle: result.BBMiddle,
		BBUpper:  result.BBUpper,
	}, result.AdjClose, settings)

	result.BBTouch = c.BBTouch
	result.Alert = c.Alert
	return result
}
