package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-solana-pay/app/factory"
)

type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateConfirmed State = "confirmed"
	StateTimedOut  State = "timed_out"
	StateError     State = "error"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

const (
	DefaultInitialDelay  = 3 * time.Second
	DefaultInterval      = 3 * time.Second
	DefaultMaxAttempts   = 40
	DefaultRedirectDelay = 2 * time.Second
)

// ErrMalformedStatus marks a status response that could be fetched but not
// understood. It ends polling instead of being retried.
var ErrMalformedStatus = errors.New("malformed payment status response")

type StatusFetcher interface {
	FetchStatus(ctx context.Context) (string, error)
}

type Config struct {
	InitialDelay  time.Duration
	Interval      time.Duration
	MaxAttempts   int
	RedirectDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialDelay:  DefaultInitialDelay,
		Interval:      DefaultInterval,
		MaxAttempts:   DefaultMaxAttempts,
		RedirectDelay: DefaultRedirectDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RedirectDelay < 0 {
		c.RedirectDelay = 0
	}
	return c
}

// Poller asks a StatusFetcher for the payment status on a fixed interval until
// the payment is confirmed, the attempt ceiling is hit or the status is not
// understood. OnConfirmed runs at most once, RedirectDelay after confirmation.
type Poller struct {
	fetcher     StatusFetcher
	cfg         Config
	onConfirmed func()
	logger      logrus.FieldLogger

	mu         sync.Mutex
	ctx        context.Context
	state      State
	attempts   int
	lastStatus string
	running    bool
	done       chan struct{}
	wake       chan struct{}
	redirect   sync.Once
}

func New(fetcher StatusFetcher, cfg Config, onConfirmed func()) *Poller {
	done := make(chan struct{})
	close(done)
	return &Poller{
		fetcher:     fetcher,
		cfg:         cfg.withDefaults(),
		onConfirmed: onConfirmed,
		logger:      factory.NewModuleLogger("payment-status-poller"),
		ctx:         context.Background(),
		state:       StateIdle,
		done:        done,
		wake:        make(chan struct{}, 1),
	}
}

// Start begins polling after the initial delay. It only acts on an idle poller.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return
	}
	p.ctx = ctx
	p.launchLocked(p.cfg.InitialDelay)
}

// CheckNow resets the attempt counter and polls immediately. A confirmed
// poller ignores it; a timed out or failed one starts polling again.
func (p *Poller) CheckNow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateConfirmed {
		return
	}
	p.attempts = 0
	if p.running {
		select {
		case p.wake <- struct{}{}:
		default:
		}
		return
	}
	select {
	case <-p.wake:
	default:
	}
	p.launchLocked(0)
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Poller) LastStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStatus
}

// Wait blocks until the current polling run stops or ctx is done and returns
// the state at that point.
func (p *Poller) Wait(ctx context.Context) State {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return p.State()
}

func (p *Poller) launchLocked(delay time.Duration) {
	p.state = StatePolling
	p.running = true
	p.done = make(chan struct{})
	go p.run(p.ctx, delay, p.done)
}

func (p *Poller) run(ctx context.Context, delay time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stop(ctx)
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}

		if p.tick(ctx) {
			timer.Reset(p.cfg.Interval)
			continue
		}
		if !p.stop(ctx) {
			return
		}
		timer.Reset(0)
	}
}

// stop ends the run unless a CheckNow arrived after tick gave up, in which case
// polling resumes and stop reports true. running is only cleared here so that
// CheckNow either wakes this run or starts a new one.
func (p *Poller) stop(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.wake:
		if ctx.Err() == nil && p.state != StateConfirmed {
			p.state = StatePolling
			return true
		}
	default:
	}
	p.running = false
	return false
}

// tick runs one attempt and reports whether another one should be scheduled.
func (p *Poller) tick(ctx context.Context) bool {
	p.mu.Lock()
	if p.attempts >= p.cfg.MaxAttempts {
		p.state = StateTimedOut
		attempts := p.attempts
		p.mu.Unlock()
		p.logger.WithField("attempts", attempts).Info("payment status polling timed out")
		return false
	}
	p.attempts++
	attempt := p.attempts
	p.mu.Unlock()

	status, err := p.fetcher.FetchStatus(ctx)
	entry := p.logger.WithField("attempt", attempt)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrMalformedStatus) {
			p.finish(StateError, "")
			entry.WithError(err).Warn("payment status response not understood")
			return false
		}
		entry.WithError(err).Debug("payment status fetch failed, retrying")
		return true
	}

	switch status {
	case StatusPending:
		p.setLastStatus(status)
		return true
	case StatusConfirmed:
		p.finish(StateConfirmed, status)
		entry.Info("payment confirmed")
		p.scheduleRedirect(ctx)
		return false
	default:
		p.finish(StateError, status)
		entry.WithField("status", status).Warn("payment status polling stopped")
		return false
	}
}

func (p *Poller) finish(state State, status string) {
	p.mu.Lock()
	p.state = state
	p.lastStatus = status
	p.mu.Unlock()
}

func (p *Poller) setLastStatus(status string) {
	p.mu.Lock()
	p.lastStatus = status
	p.mu.Unlock()
}

func (p *Poller) scheduleRedirect(ctx context.Context) {
	if p.onConfirmed == nil {
		return
	}
	if p.cfg.RedirectDelay > 0 {
		timer := time.NewTimer(p.cfg.RedirectDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	p.redirect.Do(p.onConfirmed)
}
