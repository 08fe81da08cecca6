// Package metrics exposes Prometheus metrics for the analysis engine.
// An Observer drains the controller's event stream so the controller
// itself stays metrics-free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"stocksignal/internal/controller"
)

// Metrics holds all Prometheus metrics for the analysis engine.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec // labels: outcome=completed|stopped
	AnalysesTotal  *prometheus.CounterVec // labels: status=ok|error
	CacheHitsTotal prometheus.Counter
	AlertsTotal    prometheus.Counter
	RunActive      prometheus.Gauge
	RunProgress    prometheus.Gauge
	WatchlistSize  prometheus.Gauge
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stocksignal_runs_total",
			Help: "Analysis runs finished, by outcome",
		}, []string{"outcome"}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stocksignal_analyses_total",
			Help: "Per-ticker analyses recorded, by status",
		}, []string{"status"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stocksignal_cache_hits_total",
			Help: "Analyses served from the series cache",
		}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stocksignal_alerts_total",
			Help: "Triple-signal alerts recorded",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stocksignal_run_active",
			Help: "1 while a run is active (running or paused)",
		}),
		RunProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stocksignal_run_progress",
			Help: "Current ticker index within the active run",
		}),
		WatchlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stocksignal_watchlist_size",
			Help: "Tickers currently on the watchlist",
		}),
	}

	reg.MustRegister(
		m.RunsTotal, m.AnalysesTotal, m.CacheHitsTotal, m.AlertsTotal,
		m.RunActive, m.RunProgress, m.WatchlistSize,
	)
	return m
}

// Observe consumes controller events until the channel closes. Run it
// on its own goroutine with a dedicated subscription.
func (m *Metrics) Observe(events <-chan controller.Event) {
	for ev := range events {
		switch ev.Type {
		case controller.EventState:
			switch ev.State {
			case controller.StateRunning:
				m.RunActive.Set(1)
			case controller.StateCompleted:
				m.RunActive.Set(0)
				m.RunsTotal.WithLabelValues("completed").Inc()
			case controller.StateStopped:
				m.RunActive.Set(0)
				m.RunsTotal.WithLabelValues("stopped").Inc()
			}
		case controller.EventProgress:
			if ev.Progress != nil {
				m.RunProgress.Set(float64(ev.Progress.Current))
			}
		case controller.EventResult:
			if ev.Result == nil {
				continue
			}
			if ev.Result.Error != "" {
				m.AnalysesTotal.WithLabelValues("error").Inc()
			} else {
				m.AnalysesTotal.WithLabelValues("ok").Inc()
			}
			if ev.Result.Cached {
				m.CacheHitsTotal.Inc()
			}
			if ev.Result.Alert {
				m.AlertsTotal.Inc()
			}
		}
	}
}
