package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stocksignal/internal/fetcher"
	"stocksignal/models"
)

// fakeAnalyzer scripts per-ticker outcomes and optionally gates each
// call so tests can pause or stop the loop at a known point.
type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error
	started chan string   // receives the ticker when an Analyze begins, if non-nil
	proceed chan struct{} // each Analyze waits for one receive, if non-nil
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ticker string) (models.AnalysisResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ticker)
	err := f.errs[ticker]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- ticker
	}
	if f.proceed != nil {
		select {
		case <-f.proceed:
		case <-ctx.Done():
			return models.AnalysisResult{Ticker: ticker, Error: ctx.Err().Error()}, ctx.Err()
		}
	}

	if err != nil {
		return models.AnalysisResult{Ticker: ticker, Error: err.Error()}, err
	}
	return models.AnalysisResult{Ticker: ticker, RSI: 50, MFI: 50, Price: 100}, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestController(t *testing.T, fa *fakeAnalyzer) *Controller {
	t.Helper()
	c, err := NewWithAnalyzer(func(models.AnalysisSettings) Analyzer { return fa },
		models.DefaultSettings(),
		Options{
			TickerDelay:    time.Millisecond,
			RateLimitTries: 3,
			RateLimitWait:  time.Millisecond,
		})
	if err != nil {
		t.Fatalf("NewWithAnalyzer: %v", err)
	}
	return c
}

func waitForState(t *testing.T, c *Controller, want RunState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, c.State())
}

func waitForResults(t *testing.T, c *Controller, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Results()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never saw %d results, have %d", n, len(c.Results()))
}

func TestRunProcessesAllTickersInOrder(t *testing.T) {
	fa := &fakeAnalyzer{}
	c := newTestController(t, fa)

	if err := c.Start([]string{"aapl", "MSFT", " goog "}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	if got := c.State(); got != StateCompleted {
		t.Errorf("expected completed state, got %s", got)
	}
	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"AAPL", "MSFT", "GOOG"}
	for i, r := range results {
		if r.Ticker != want[i] {
			t.Errorf("result %d: expected %s, got %s", i, want[i], r.Ticker)
		}
	}
	if p := c.Progress(); p == nil || p.Current != 3 || p.Total != 3 {
		t.Errorf("unexpected final progress: %+v", p)
	}
}

func TestStartDeduplicatesAndRejectsEmptyQueue(t *testing.T) {
	fa := &fakeAnalyzer{}
	c := newTestController(t, fa)

	if err := c.Start(nil); !errors.Is(err, ErrNoTickers) {
		t.Errorf("empty queue: expected ErrNoTickers, got %v", err)
	}
	if err := c.Start([]string{"AAPL", "aapl", "", "AAPL"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	if fa.callCount() != 1 {
		t.Errorf("duplicates must collapse to one analysis, got %d", fa.callCount())
	}
}

func TestStartWhileRunningReturnsBusy(t *testing.T) {
	fa := &fakeAnalyzer{proceed: make(chan struct{}), started: make(chan string, 1)}
	c := newTestController(t, fa)

	if err := c.Start([]string{"AAPL"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-fa.started

	if err := c.Start([]string{"MSFT"}); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}

	fa.proceed <- struct{}{}
	c.Wait()
}

func TestPauseResumeProcessesEachTickerExactlyOnce(t *testing.T) {
	fa := &fakeAnalyzer{proceed: make(chan struct{}), started: make(chan string, 2)}
	c := newTestController(t, fa)

	if err := c.Start([]string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Pause while the first ticker is in flight: the in-flight analysis
	// completes and records, then the loop parks before the second.
	<-fa.started
	c.Pause()
	fa.proceed <- struct{}{}

	waitForResults(t, c, 1)
	time.Sleep(20 * time.Millisecond) // past the inter-ticker delay
	if fa.callCount() != 1 {
		t.Fatalf("second ticker must not start while paused, got %d calls", fa.callCount())
	}

	c.Resume()
	<-fa.started
	fa.proceed <- struct{}{}
	c.Wait()

	if fa.callCount() != 2 {
		t.Errorf("expected exactly 2 analyses after resume, got %d", fa.callCount())
	}
	if got := len(c.Results()); got != 2 {
		t.Errorf("expected 2 results, got %d", got)
	}
	if got := c.State(); got != StateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestStopDiscardsInFlightAndAllowsFreshStart(t *testing.T) {
	fa := &fakeAnalyzer{proceed: make(chan struct{}), started: make(chan string, 1)}
	c := newTestController(t, fa)

	if err := c.Start([]string{"AAPL", "MSFT", "GOOG"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-fa.started
	c.Stop() // cancels the in-flight fetch; the aborted attempt is discarded
	c.Wait()

	if got := c.State(); got != StateStopped {
		t.Errorf("expected stopped, got %s", got)
	}
	if got := len(c.Results()); got != 0 {
		t.Errorf("aborted in-flight analysis must not surface, got %d results", got)
	}
	if fa.callCount() != 1 {
		t.Errorf("no ticker may start after stop, got %d calls", fa.callCount())
	}

	// The same controller accepts a fresh run without any reset call.
	if err := c.Start([]string{"MSFT"}); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	<-fa.started
	fa.proceed <- struct{}{}
	c.Wait()

	if got := c.State(); got != StateCompleted {
		t.Errorf("restarted run: expected completed, got %s", got)
	}
	if fa.callCount() != 2 {
		t.Errorf("restarted run must analyze its ticker, got %d calls total", fa.callCount())
	}
	results := c.Results()
	if len(results) != 1 || results[0].Ticker != "MSFT" {
		t.Errorf("restarted run results = %+v", results)
	}
}

func TestStopWhilePausedDoesNotStayPaused(t *testing.T) {
	fa := &fakeAnalyzer{proceed: make(chan struct{}), started: make(chan string, 1)}
	c := newTestController(t, fa)

	if err := c.Start([]string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-fa.started
	c.Pause()
	fa.proceed <- struct{}{}
	waitForState(t, c, StatePaused)

	c.Stop()
	c.Wait()

	if got := c.State(); got != StateStopped {
		t.Errorf("stop during pause must end stopped, got %s", got)
	}
}

func TestFailedTickersCollectedAndRetryScoped(t *testing.T) {
	fa := &fakeAnalyzer{errs: map[string]error{
		"BAD": fmt.Errorf("%w: BAD", fetcher.ErrNotFound),
	}}
	c := newTestController(t, fa)

	if err := c.Start([]string{"AAPL", "BAD", "MSFT"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	failed := c.FailedTickers()
	if len(failed) != 1 || failed[0] != "BAD" {
		t.Fatalf("expected failed tickers [BAD], got %v", failed)
	}
	if got := len(c.Results()); got != 3 {
		t.Fatalf("error results still belong in the set, got %d", got)
	}

	// Retry re-analyzes only the failed ticker; this time it succeeds
	// and replaces the error-carrying entry in place.
	fa.mu.Lock()
	fa.errs = nil
	fa.calls = nil
	fa.mu.Unlock()

	if err := c.RetryFailed(); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	c.Wait()

	if fa.callCount() != 1 {
		t.Errorf("retry must cover only failed tickers, got %d calls", fa.callCount())
	}
	if failed := c.FailedTickers(); len(failed) != 0 {
		t.Errorf("expected failures cleared after successful retry, got %v", failed)
	}
	for _, r := range c.Results() {
		if r.Ticker == "BAD" && r.Error != "" {
			t.Errorf("retried ticker still carries error: %s", r.Error)
		}
	}

	if err := c.RetryFailed(); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("expected ErrNothingToRetry, got %v", err)
	}
}

func TestRateLimitRetriesBounded(t *testing.T) {
	fa := &fakeAnalyzer{errs: map[string]error{
		"HOT": fmt.Errorf("%w: HOT", fetcher.ErrRateLimited),
	}}
	c := newTestController(t, fa)

	if err := c.Start([]string{"HOT"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	if fa.callCount() != 3 {
		t.Errorf("expected 3 rate-limit attempts, got %d", fa.callCount())
	}
	failed := c.FailedTickers()
	if len(failed) != 1 || failed[0] != "HOT" {
		t.Errorf("exhausted retries must land in failed tickers, got %v", failed)
	}
}

func TestNonRateLimitErrorsDoNotRetry(t *testing.T) {
	fa := &fakeAnalyzer{errs: map[string]error{
		"GONE": fmt.Errorf("%w: GONE", fetcher.ErrNotFound),
	}}
	c := newTestController(t, fa)

	if err := c.Start([]string{"GONE"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	if fa.callCount() != 1 {
		t.Errorf("not-found must fail on the first attempt, got %d calls", fa.callCount())
	}
}

func TestUpdateSettingsRelabelsStoredResults(t *testing.T) {
	c := newTestController(t, &fakeAnalyzer{})

	// Seed a borderline result directly: oversold under looser
	// thresholds, not under the defaults.
	c.mu.Lock()
	c.results.upsert(models.AnalysisResult{
		Ticker:   "EDGE",
		RSI:      32,
		MFI:      31,
		BBLower:  95,
		BBMiddle: 100,
		BBUpper:  105,
		Price:    94,
		AdjClose: 94,
		BBTouch:  true,
	})
	c.mu.Unlock()

	loose := models.DefaultSettings()
	loose.RSITripleSignal = 35
	loose.MFITripleSignal = 35
	if err := c.UpdateSettings(loose); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if r := c.Results()[0]; !r.Alert {
		t.Error("looser thresholds must flag the stored result")
	}

	if err := c.UpdateSettings(models.DefaultSettings()); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if r := c.Results()[0]; r.Alert {
		t.Error("default thresholds must clear the flag again")
	}

	bad := models.DefaultSettings()
	bad.RSIPeriod = 0
	if err := c.UpdateSettings(bad); err == nil {
		t.Error("invalid settings must be rejected")
	}
}

func TestSubscribeReceivesResultAndStateEvents(t *testing.T) {
	fa := &fakeAnalyzer{}
	c := newTestController(t, fa)

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	if err := c.Start([]string{"AAPL"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	var sawResult, sawCompleted bool
	deadline := time.After(time.Second)
	for !(sawResult && sawCompleted) {
		select {
		case ev := <-events:
			switch {
			case ev.Type == EventResult && ev.Result.Ticker == "AAPL":
				sawResult = true
			case ev.Type == EventState && ev.State == StateCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatalf("missing events: result=%v completed=%v", sawResult, sawCompleted)
		}
	}
}

func TestRemoveAndClearResults(t *testing.T) {
	c := newTestController(t, &fakeAnalyzer{})

	if err := c.Start([]string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Wait()

	if !c.RemoveResult("aapl") {
		t.Error("removing an existing ticker must report true")
	}
	if c.RemoveResult("AAPL") {
		t.Error("removing twice must report false")
	}
	if got := len(c.Results()); got != 1 {
		t.Errorf("expected 1 result after removal, got %d", got)
	}

	c.ClearResults()
	if got := len(c.Results()); got != 0 {
		t.Errorf("expected empty set after clear, got %d", got)
	}
}
