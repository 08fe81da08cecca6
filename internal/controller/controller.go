// Package controller drives a queue of tickers through the
// fetch -> indicators -> classify pipeline with pause/resume/stop
// control and a user-triggered retry path for rate-limited tickers.
//
// A single logical worker processes one ticker at a time: the upstream
// rate-limits aggressively, so there is deliberately no fan-out. The
// only suspension points are the pause wait and the network call.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/fetcher"
	"stocksignal/models"
)

// RunState is the externally visible controller state.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StatePaused    RunState = "paused"
	StateStopping  RunState = "stopping"
	StateCompleted RunState = "completed"
	StateStopped   RunState = "stopped"
)

// EventType discriminates the controller's event stream.
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventState    EventType = "state"
)

// Event is a side-effect notification pushed to subscribers (websocket
// hub, metrics observer, notifier).
type Event struct {
	Type     EventType              `json:"type"`
	Progress *models.Progress       `json:"progress,omitempty"`
	Result   *models.AnalysisResult `json:"result,omitempty"`
	State    RunState               `json:"state,omitempty"`
}

var (
	// ErrRunActive is returned by Start while a run is in flight. Runs
	// are serialized: results are upserted by ticker key so overlapping
	// runs would be benign for data, but a single active run keeps
	// pause/stop semantics unambiguous.
	ErrRunActive = errors.New("a run is already active")

	// ErrNoTickers is returned by Start for an empty queue.
	ErrNoTickers = errors.New("no tickers to analyze")

	// ErrNothingToRetry is returned by RetryFailed when the last run
	// left no failed tickers behind.
	ErrNothingToRetry = errors.New("no failed tickers to retry")
)

// Options tunes the controller's pacing and retry policy.
type Options struct {
	TickerDelay    time.Duration // fixed inter-ticker delay, default 300ms
	RateLimitTries int           // attempts per ticker on 429, default 3
	RateLimitWait  time.Duration // base wait between those attempts, default 3s
}

// Controller owns the execution state of a batch run for its lifetime.
type Controller struct {
	newAnalyzer func(models.AnalysisSettings) Analyzer
	opts        Options
	logger      zerolog.Logger

	mu       sync.Mutex
	settings models.AnalysisSettings
	results  *resultSet
	failed   []string
	progress *models.Progress
	running  bool
	paused   bool
	stopping bool
	outcome  RunState // Idle until a run finishes, then Completed/Stopped
	resume   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	subs     map[chan Event]struct{}
}

// New creates a controller over the production analyzer pipeline.
// Malformed settings are a contract violation and fail construction.
func New(source SeriesSource, settings models.AnalysisSettings, opts Options) (*Controller, error) {
	return NewWithAnalyzer(func(s models.AnalysisSettings) Analyzer {
		return NewTickerAnalyzer(source, s)
	}, settings, opts)
}

// NewWithAnalyzer creates a controller with a custom analyzer factory.
// The factory runs once per Start so each run sees frozen settings.
func NewWithAnalyzer(factory func(models.AnalysisSettings) Analyzer, settings models.AnalysisSettings, opts Options) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if opts.TickerDelay <= 0 {
		opts.TickerDelay = 300 * time.Millisecond
	}
	if opts.RateLimitTries <= 0 {
		opts.RateLimitTries = 3
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = 3 * time.Second
	}
	return &Controller{
		newAnalyzer: factory,
		opts:        opts,
		logger:      log.With().Str("component", "controller").Logger(),
		settings:    settings,
		results:     newResultSet(),
		outcome:     StateIdle,
		subs:        make(map[chan Event]struct{}),
	}, nil
}

// Start begins a new run over the given tickers. Prior failures are
// cleared, the cursor resets, and the loop runs on its own goroutine.
func (c *Controller) Start(tickers []string) error {
	queue := normalizeQueue(tickers)
	if len(queue) == 0 {
		return ErrNoTickers
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunActive
	}
	c.running = true
	c.paused = false
	c.stopping = false
	c.failed = nil
	c.resume = nil
	c.progress = &models.Progress{Current: 0, Total: len(queue)}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	analyzer := c.newAnalyzer(c.settings)

	c.emitLocked(Event{Type: EventState, State: StateRunning})
	c.mu.Unlock()

	c.logger.Info().Int("tickers", len(queue)).Msg("run started")
	go c.run(ctx, analyzer, queue, done)
	return nil
}

// RetryFailed starts a new run scoped to the previous run's failed
// tickers. Results outside that scope are left untouched.
func (c *Controller) RetryFailed() error {
	c.mu.Lock()
	failed := append([]string(nil), c.failed...)
	c.mu.Unlock()

	if len(failed) == 0 {
		return ErrNothingToRetry
	}
	c.logger.Info().Int("tickers", len(failed)).Msg("retrying failed tickers")
	return c.Start(failed)
}

// Pause suspends the loop before the next ticker. A no-op unless a run
// is active and not already pausing or stopping.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused || c.stopping {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
	c.emitLocked(Event{Type: EventState, State: StatePaused})
	c.logger.Info().Msg("paused")
}

// Resume releases a paused loop. Closing the resume channel wakes the
// single waiting iteration exactly once; there is no wakeup to lose.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	if c.resume != nil {
		close(c.resume)
		c.resume = nil
	}
	c.emitLocked(Event{Type: EventState, State: StateRunning})
	c.logger.Info().Msg("resumed")
}

// Stop terminates the run: it cancels the in-flight request, releases
// a paused wait, and guarantees the loop observes the stop before the
// next ticker. The controller never remains Paused after Stop. A new
// Start is required afterward.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	c.paused = false
	if c.resume != nil {
		close(c.resume)
		c.resume = nil
	}
	cancel := c.cancel
	c.emitLocked(Event{Type: EventState, State: StateStopping})
	c.mu.Unlock()

	c.logger.Info().Msg("stop requested")
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run's loop has exited. Returns
// immediately when no run is active.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// UpdateSettings validates and stores new settings for the next run,
// and re-labels the existing result set without fetching. Band values
// themselves only change on the next fetch (BBPeriod/BBStdDev
// limitation).
func (c *Controller) UpdateSettings(s models.AnalysisSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.settings = s
	updated := c.results.reapply(s)
	for i := range updated {
		r := updated[i]
		c.emitLocked(Event{Type: EventResult, Result: &r})
	}
	c.mu.Unlock()

	c.logger.Info().Msg("settings updated, results re-labeled")
	return nil
}

// Settings returns the settings the next run will use.
func (c *Controller) Settings() models.AnalysisSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Results returns the current result set in first-seen order.
func (c *Controller) Results() []models.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results.list()
}

// RemoveResult drops one ticker's result.
func (c *Controller) RemoveResult(ticker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results.remove(ticker)
}

// ClearResults empties the result set, typically before a full
// watchlist run.
func (c *Controller) ClearResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results.clear()
}

// FailedTickers returns the tickers collected for the retry path.
func (c *Controller) FailedTickers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.failed...)
}

// Progress returns the current run progress, or nil before any run.
func (c *Controller) Progress() *models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == nil {
		return nil
	}
	p := *c.progress
	return &p
}

// State reports the externally visible run state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopping:
		return StateStopping
	case c.paused:
		return StatePaused
	case c.running:
		return StateRunning
	default:
		return c.outcome
	}
}

// Subscribe registers an event channel. Slow subscribers drop events
// rather than stall the loop. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// run is the per-run loop. Exactly one AnalysisResult is upserted per
// processed ticker; no per-ticker error escapes past this boundary.
func (c *Controller) run(ctx context.Context, analyzer Analyzer, queue []string, done chan struct{}) {
	defer close(done)

	stopped := false
	for i, ticker := range queue {
		if c.isStopping() {
			stopped = true
			break
		}
		if !c.waitIfPaused(ctx) {
			stopped = true
			break
		}
		if c.isStopping() {
			stopped = true
			break
		}

		c.setProgress(i+1, len(queue), ticker)

		result := c.analyzeWithRetry(ctx, analyzer, ticker)

		// A stop mid-request cancels the fetch; the aborted attempt
		// must not surface as a result.
		if c.isStopping() {
			stopped = true
			break
		}

		c.record(result)

		if i < len(queue)-1 && !c.sleep(ctx, c.opts.TickerDelay) {
			stopped = true
			break
		}
	}

	c.finish(stopped)
}

// analyzeWithRetry applies the bounded rate-limit retry policy: up to
// RateLimitTries attempts with a linearly growing wait. Other errors
// are returned on the first attempt.
func (c *Controller) analyzeWithRetry(ctx context.Context, analyzer Analyzer, ticker string) models.AnalysisResult {
	var result models.AnalysisResult
	for attempt := 0; attempt < c.opts.RateLimitTries; attempt++ {
		var err error
		result, err = analyzer.Analyze(ctx, ticker)
		if err == nil || !errors.Is(err, fetcher.ErrRateLimited) {
			return result
		}
		if attempt < c.opts.RateLimitTries-1 {
			wait := c.opts.RateLimitWait * time.Duration(attempt+1)
			c.logger.Warn().Str("ticker", ticker).Dur("wait", wait).Msg("rate limited, backing off")
			if !c.sleep(ctx, wait) {
				return result
			}
		}
	}
	return result
}

func (c *Controller) record(result models.AnalysisResult) {
	c.mu.Lock()
	c.results.upsert(result)
	if result.Error != "" {
		c.failed = append(c.failed, result.Ticker)
	}
	r := result
	c.emitLocked(Event{Type: EventResult, Result: &r})
	c.mu.Unlock()
}

func (c *Controller) setProgress(current, total int, ticker string) {
	c.mu.Lock()
	c.progress = &models.Progress{Current: current, Total: total, CurrentTicker: ticker}
	p := *c.progress
	c.emitLocked(Event{Type: EventProgress, Progress: &p})
	c.mu.Unlock()
}

func (c *Controller) finish(stopped bool) {
	c.mu.Lock()
	c.running = false
	c.paused = false
	c.stopping = false
	c.resume = nil
	c.cancel = nil
	if stopped {
		c.outcome = StateStopped
	} else {
		c.outcome = StateCompleted
	}
	c.emitLocked(Event{Type: EventState, State: c.outcome})
	c.mu.Unlock()

	c.logger.Info().Bool("stopped", stopped).Msg("run finished")
}

func (c *Controller) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// waitIfPaused blocks on the resume channel while paused. This is the
// loop's single suspension point. Returns false when the wait ended
// because of a stop or cancellation.
func (c *Controller) waitIfPaused(ctx context.Context) bool {
	c.mu.Lock()
	ch := c.resume
	paused := c.paused
	c.mu.Unlock()

	if !paused || ch == nil {
		return true
	}

	select {
	case <-ch:
		return !c.isStopping()
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d unless the run context is cancelled first.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitLocked fans an event out to all subscribers. Callers hold c.mu;
// sends never block.
func (c *Controller) emitLocked(ev Event) {
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func normalizeQueue(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	queue := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := models.NormalizeTicker(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		queue = append(queue, n)
	}
	return queue
}
