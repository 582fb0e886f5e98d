// Package poller periodically checks the backend and the session in the
// background and reports when either changes state.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/parkdesk/auth-go/notify"
)

// Checker is the part of auth.Client the poller drives.
type Checker interface {
	Health(ctx context.Context) error
	Verify(ctx context.Context) (bool, error)
}

type State string

const (
	StateUnknown State = "unknown"
	StateUp      State = "up"
	StateDown    State = "down"
)

// Status is the last observed state of the backend and the session.
type Status struct {
	Backend  State
	Session  State
	LastSeen time.Time
}

type Poller struct {
	checker        Checker
	notifier       notify.Notifier
	healthInterval time.Duration
	verifyInterval time.Duration
	timeout        time.Duration

	scheduler *gocron.Scheduler

	mux    sync.Mutex
	status Status
}

type PollerOption func(*Poller) error

// WithHealthInterval calls the health endpoint every d. Zero disables it.
func WithHealthInterval(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d < 0 {
			return fmt.Errorf("invalid health interval %s", d)
		}
		p.healthInterval = d
		return nil
	}
}

// WithVerifyInterval verifies the session every d. Zero disables it.
func WithVerifyInterval(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d < 0 {
			return fmt.Errorf("invalid verify interval %s", d)
		}
		p.verifyInterval = d
		return nil
	}
}

func WithNotifier(n notify.Notifier) PollerOption {
	return func(p *Poller) error {
		p.notifier = n
		return nil
	}
}

// WithCheckTimeout bounds a single check. Defaults to 30 seconds.
func WithCheckTimeout(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("invalid check timeout %s", d)
		}
		p.timeout = d
		return nil
	}
}

func NewPoller(checker Checker, options ...PollerOption) (*Poller, error) {
	p := &Poller{
		checker:  checker,
		notifier: notify.Discard,
		timeout:  30 * time.Second,
		status:   Status{Backend: StateUnknown, Session: StateUnknown},
	}
	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.checker == nil {
		return nil, fmt.Errorf("checker not initialized")
	}
	if p.healthInterval == 0 && p.verifyInterval == 0 {
		return nil, fmt.Errorf("at least one of the health or verify intervals must be set")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if p.healthInterval > 0 {
		_, err := s.Every(p.healthInterval).DoWithJobDetails(func(job gocron.Job) {
			p.checkHealth(job.Context())
		})
		if err != nil {
			return nil, err
		}
	}
	if p.verifyInterval > 0 {
		_, err := s.Every(p.verifyInterval).DoWithJobDetails(func(job gocron.Job) {
			p.checkSession(job.Context())
		})
		if err != nil {
			return nil, err
		}
	}
	p.scheduler = s
	return p, nil
}

// Start runs every check once right away and then on its interval.
func (p *Poller) Start() {
	slog.Info("POLLER", "message", "starting", "health", p.healthInterval, "verify", p.verifyInterval)
	p.scheduler.StartAsync()
}

// Stop waits for running checks to finish.
func (p *Poller) Stop() {
	p.scheduler.Stop()
	slog.Info("POLLER", "message", "stopped")
}

func (p *Poller) Status() Status {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.status
}

func (p *Poller) checkHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	state := StateUp
	if err := p.checker.Health(ctx); err != nil {
		slog.Warn("POLLER", "message", "health check failed", "error", err)
		state = StateDown
	}

	if prev := p.setBackend(state); prev != state {
		switch {
		case state == StateDown:
			p.notifier.Notify("The parking backend is unreachable.", notify.Error)
		case prev == StateDown:
			p.notifier.Notify("The parking backend is reachable again.", notify.Success)
		}
	}
}

func (p *Poller) checkSession(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ok, err := p.checker.Verify(ctx)
	if err != nil {
		// Transport or server trouble says nothing about the session.
		slog.Warn("POLLER", "message", "session check failed", "error", err)
		return
	}
	state := StateUp
	if !ok {
		state = StateDown
	}
	if prev := p.setSession(state); prev == StateUp && state == StateDown {
		p.notifier.Notify("Your session has expired. Please log in again.", notify.Info)
	}
}

func (p *Poller) setBackend(state State) State {
	p.mux.Lock()
	defer p.mux.Unlock()
	prev := p.status.Backend
	p.status.Backend = state
	if state == StateUp {
		p.status.LastSeen = time.Now()
	}
	return prev
}

func (p *Poller) setSession(state State) State {
	p.mux.Lock()
	defer p.mux.Unlock()
	prev := p.status.Session
	p.status.Session = state
	return prev
}
