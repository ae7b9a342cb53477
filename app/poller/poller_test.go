package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fetchResult struct {
	status string
	err    error
}

type scriptedFetcher struct {
	mu       sync.Mutex
	script   []fetchResult
	fallback fetchResult
	calls    int
}

func (f *scriptedFetcher) FetchStatus(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.script) > 0 {
		next := f.script[0]
		f.script = f.script[1:]
		return next.status, next.err
	}
	return f.fallback.status, f.fallback.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) SetFallback(result fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = result
}

func fastConfig() Config {
	return Config{
		InitialDelay:  time.Millisecond,
		Interval:      time.Millisecond,
		MaxAttempts:   40,
		RedirectDelay: 2 * time.Millisecond,
	}
}

func waitFor(t *testing.T, p *Poller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state := p.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("poller did not stop in time, state=%s attempts=%d", state, p.Attempts())
	}
	return state
}

func pendingScript(n int) []fetchResult {
	script := make([]fetchResult, n)
	for i := range script {
		script[i] = fetchResult{status: StatusPending}
	}
	return script
}

func TestPollerConfirmsOnLastAttempt(t *testing.T) {
	fetcher := &scriptedFetcher{
		script:   pendingScript(39),
		fallback: fetchResult{status: StatusConfirmed},
	}
	var redirects int32
	p := New(fetcher, fastConfig(), func() { atomic.AddInt32(&redirects, 1) })

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", state)
	}
	if fetcher.Calls() != 40 || p.Attempts() != 40 {
		t.Fatalf("expected 40 fetches, got calls=%d attempts=%d", fetcher.Calls(), p.Attempts())
	}
	if got := atomic.LoadInt32(&redirects); got != 1 {
		t.Fatalf("expected exactly one redirect, got %d", got)
	}

	p.CheckNow()
	time.Sleep(10 * time.Millisecond)
	if p.State() != StateConfirmed || fetcher.Calls() != 40 {
		t.Fatalf("expected confirmed poller to ignore CheckNow, state=%s calls=%d", p.State(), fetcher.Calls())
	}
	if got := atomic.LoadInt32(&redirects); got != 1 {
		t.Fatalf("expected redirect to stay at one, got %d", got)
	}
}

func TestPollerTimesOutThenCheckNowRestarts(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{status: StatusPending}}
	var redirects int32
	p := New(fetcher, fastConfig(), func() { atomic.AddInt32(&redirects, 1) })

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", state)
	}
	if fetcher.Calls() != 40 {
		t.Fatalf("expected exactly 40 fetches, got %d", fetcher.Calls())
	}
	if atomic.LoadInt32(&redirects) != 0 {
		t.Fatal("expected no redirect on timeout")
	}

	fetcher.SetFallback(fetchResult{status: StatusConfirmed})
	p.CheckNow()
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed after manual check, got %s", state)
	}
	if p.Attempts() != 1 {
		t.Fatalf("expected attempt counter reset to 1, got %d", p.Attempts())
	}
	if atomic.LoadInt32(&redirects) != 1 {
		t.Fatalf("expected one redirect, got %d", redirects)
	}
}

// onMessageHook runs fn once, from the logging goroutine, when message is logged.
type onMessageHook struct {
	message string
	once    sync.Once
	fn      func()
}

func (h *onMessageHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *onMessageHook) Fire(entry *logrus.Entry) error {
	if entry.Message == h.message {
		h.once.Do(h.fn)
	}
	return nil
}

func TestPollerCheckNowRightAfterTimeoutResumes(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{status: StatusPending}}
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	p := New(fetcher, cfg, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(&onMessageHook{
		message: "payment status polling timed out",
		fn: func() {
			fetcher.SetFallback(fetchResult{status: StatusConfirmed})
			p.CheckNow()
		},
	})
	p.logger = logger

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed after check during timeout, got %s", state)
	}
	if fetcher.Calls() != 3 {
		t.Fatalf("expected 3 fetches, got %d", fetcher.Calls())
	}
	if p.Attempts() != 1 {
		t.Fatalf("expected attempt counter reset to 1, got %d", p.Attempts())
	}
}

func TestPollerStopsOnUnknownStatus(t *testing.T) {
	fetcher := &scriptedFetcher{
		script:   pendingScript(2),
		fallback: fetchResult{status: "canceled"},
	}
	var redirects int32
	p := New(fetcher, fastConfig(), func() { atomic.AddInt32(&redirects, 1) })

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateError {
		t.Fatalf("expected error state, got %s", state)
	}
	if p.LastStatus() != "canceled" || fetcher.Calls() != 3 {
		t.Fatalf("unexpected last status %q after %d calls", p.LastStatus(), fetcher.Calls())
	}
	if atomic.LoadInt32(&redirects) != 0 {
		t.Fatal("expected no redirect on error")
	}
}

func TestPollerStopsOnMalformedResponse(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{err: ErrMalformedStatus}}
	p := New(fetcher, fastConfig(), nil)

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateError {
		t.Fatalf("expected error state, got %s", state)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected malformed response to stop immediately, got %d calls", fetcher.Calls())
	}
}

func TestPollerRetriesTransportErrors(t *testing.T) {
	transport := errors.New("connection reset")
	fetcher := &scriptedFetcher{
		script: []fetchResult{
			{err: transport},
			{status: StatusPending},
			{err: transport},
		},
		fallback: fetchResult{status: StatusConfirmed},
	}
	p := New(fetcher, fastConfig(), nil)

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", state)
	}
	if fetcher.Calls() != 4 {
		t.Fatalf("expected 4 fetches, got %d", fetcher.Calls())
	}
}

func TestPollerTransportErrorsCountTowardsCeiling(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{err: errors.New("dns failure")}}
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	p := New(fetcher, cfg, nil)

	p.Start(context.Background())
	if state := waitFor(t, p); state != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", state)
	}
	if fetcher.Calls() != 5 {
		t.Fatalf("expected 5 fetches, got %d", fetcher.Calls())
	}
}

func TestPollerHonoursInitialDelay(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{status: StatusConfirmed}}
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour
	p := New(fetcher, cfg, nil)

	if p.State() != StateIdle {
		t.Fatalf("expected idle before start, got %s", p.State())
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	if p.State() != StatePolling || fetcher.Calls() != 0 {
		t.Fatalf("expected polling with no fetch yet, state=%s calls=%d", p.State(), fetcher.Calls())
	}

	p.CheckNow()
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected manual check to confirm, got %s", state)
	}
	cancel()
}

func TestPollerCheckNowBeforeStart(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{status: StatusConfirmed}}
	p := New(fetcher, fastConfig(), nil)

	p.CheckNow()
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", state)
	}

	p.Start(context.Background())
	if p.State() != StateConfirmed {
		t.Fatalf("expected Start on a finished poller to be a no-op, got %s", p.State())
	}
}

func TestPollerStopsWhenContextCanceled(t *testing.T) {
	fetcher := &scriptedFetcher{fallback: fetchResult{status: StatusPending}}
	var redirects int32
	p := New(fetcher, fastConfig(), func() { atomic.AddInt32(&redirects, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	waitFor(t, p)
	calls := fetcher.Calls()
	time.Sleep(10 * time.Millisecond)
	if fetcher.Calls() != calls {
		t.Fatalf("expected no fetches after cancel, got %d then %d", calls, fetcher.Calls())
	}
	if atomic.LoadInt32(&redirects) != 0 {
		t.Fatal("expected no redirect")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Interval != DefaultInterval || cfg.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	def := DefaultConfig()
	if def.InitialDelay != 3*time.Second || def.Interval != 3*time.Second || def.MaxAttempts != 40 || def.RedirectDelay != 2*time.Second {
		t.Fatalf("unexpected default config: %+v", def)
	}
}
