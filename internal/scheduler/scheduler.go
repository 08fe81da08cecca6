// Package scheduler triggers periodic full-watchlist analysis runs on
// a cron expression.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/controller"
	"stocksignal/internal/store"
)

// Scheduler kicks off a run over the whole watchlist on each tick of
// the cron expression. A tick that lands while a run is active is
// skipped, not queued.
type Scheduler struct {
	cron      *cron.Cron
	ctrl      *controller.Controller
	watchlist store.TickerStore
	logger    zerolog.Logger
}

// New registers the analysis job on spec (standard 5-field cron).
func New(spec string, ctrl *controller.Controller, watchlist store.TickerStore) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		ctrl:      ctrl,
		watchlist: watchlist,
		logger:    log.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.runWatchlist); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the cron loop on its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts the cron loop. A run already started keeps going; only
// future triggers are cancelled.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runWatchlist() {
	tickers, err := s.watchlist.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("loading watchlist for scheduled run")
		return
	}
	if len(tickers) == 0 {
		s.logger.Debug().Msg("watchlist empty, skipping scheduled run")
		return
	}

	if err := s.ctrl.Start(tickers); err != nil {
		if errors.Is(err, controller.ErrRunActive) {
			s.logger.Warn().Msg("run already active, skipping scheduled run")
			return
		}
		s.logger.Error().Err(err).Msg("starting scheduled run")
		return
	}
	s.logger.Info().Int("tickers", len(tickers)).Msg("scheduled run started")
}
