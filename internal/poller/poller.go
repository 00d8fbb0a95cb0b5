// Package poller submits a research job and follows it to a terminal state.
//
// A Poller is a small state machine:
//
//	Idle -> Submitting -> Polling -> Succeeded | Failed | TimedOut
//
// Polls back off exponentially up to a cap. Transient poll failures are
// retried and count against the attempt budget; any other error ends the run.
// A single owned context governs every wait, so nothing is scheduled after
// the run returns.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/market-research/internal/client"
	"github.com/suPer8Hu/market-research/internal/jobs"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

var (
	ErrEmptyTarget    = errors.New("target must not be empty")
	ErrAlreadyStarted = errors.New("poller already started")
	ErrCancelled      = errors.New("polling cancelled")
	ErrTimedOut       = errors.New("poll attempt budget exhausted")
	ErrJobFailed      = errors.New("job failed")
)

// Backend is what the poller drives; *client.Client implements it.
type Backend interface {
	Submit(ctx context.Context, req client.SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (*jobs.View, error)
}

type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

func DefaultConfig() Config {
	return Config{
		InitialInterval: 10 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		MaxAttempts:     60,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Event is reported on every transition and every poll.
type Event struct {
	State   State
	JobID   string
	Attempt int
	View    *jobs.View
	Err     error
}

type Observer func(Event)

type Result struct {
	State    State
	JobID    string
	View     *jobs.View
	Attempts int
}

type Poller struct {
	backend Backend
	cfg     Config
	observe Observer

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cancelled bool
}

func New(b Backend, cfg Config, observe Observer) *Poller {
	if observe == nil {
		observe = func(Event) {}
	}
	return &Poller{backend: b, cfg: cfg.withDefaults(), observe: observe, state: StateIdle}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel stops a running poller. It is safe to call at any time; a Run
// started after Cancel returns ErrCancelled without submitting.
func (p *Poller) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run submits req and polls until the job is terminal, the budget runs out
// or ctx (or Cancel) stops it. A Poller runs once.
func (p *Poller) Run(ctx context.Context, req client.SubmitRequest) (*Result, error) {
	if strings.TrimSpace(req.Target) == "" {
		return nil, ErrEmptyTarget
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if p.cancelled {
		p.state = StateFailed
		p.mu.Unlock()
		res := &Result{State: StateFailed}
		p.observe(Event{State: StateFailed, Err: ErrCancelled})
		return res, ErrCancelled
	}
	p.state = StateSubmitting
	p.cancel = cancel
	p.mu.Unlock()

	res := &Result{State: StateSubmitting}
	p.observe(Event{State: StateSubmitting})

	id, err := p.backend.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			err = ErrCancelled
		}
		p.transition(res, Event{State: StateFailed, Err: err})
		return res, fmt.Errorf("submit: %w", err)
	}
	res.JobID = id
	p.transition(res, Event{State: StatePolling, JobID: id})

	return p.poll(ctx, res)
}

func (p *Poller) poll(ctx context.Context, res *Result) (*Result, error) {
	interval := p.cfg.InitialInterval
	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		view, err := p.backend.Status(ctx, res.JobID)

		switch {
		case err != nil && ctx.Err() != nil:
			p.transition(res, Event{State: StateFailed, JobID: res.JobID, Attempt: attempt, Err: ErrCancelled})
			return res, ErrCancelled
		case err != nil && !client.IsTransient(err):
			p.transition(res, Event{State: StateFailed, JobID: res.JobID, Attempt: attempt, Err: err})
			return res, fmt.Errorf("status: %w", err)
		case err != nil:
			p.observe(Event{State: StatePolling, JobID: res.JobID, Attempt: attempt, Err: err})
		default:
			res.View = view
			switch view.Status {
			case jobs.StatusCompleted:
				p.transition(res, Event{State: StateSucceeded, JobID: res.JobID, Attempt: attempt, View: view})
				return res, nil
			case jobs.StatusFailed:
				jerr := fmt.Errorf("%w: %s", ErrJobFailed, view.Error)
				p.transition(res, Event{State: StateFailed, JobID: res.JobID, Attempt: attempt, View: view, Err: jerr})
				return res, jerr
			}
			p.observe(Event{State: StatePolling, JobID: res.JobID, Attempt: attempt, View: view})
		}

		if attempt >= p.cfg.MaxAttempts {
			p.transition(res, Event{State: StateTimedOut, JobID: res.JobID, Attempt: attempt, Err: ErrTimedOut})
			return res, ErrTimedOut
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			p.transition(res, Event{State: StateFailed, JobID: res.JobID, Attempt: attempt, Err: ErrCancelled})
			return res, ErrCancelled
		case <-timer.C:
		}
		interval = next(interval, p.cfg)
	}
}

func next(d time.Duration, cfg Config) time.Duration {
	n := time.Duration(float64(d) * cfg.Multiplier)
	if n > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return n
}

func (p *Poller) transition(res *Result, ev Event) {
	p.mu.Lock()
	p.state = ev.State
	p.mu.Unlock()
	res.State = ev.State
	p.observe(ev)
}
