package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/market-research/internal/ai"
	"github.com/suPer8Hu/market-research/internal/common"
	"github.com/suPer8Hu/market-research/internal/research"
	"github.com/suPer8Hu/market-research/internal/telemetry"
)

const DefaultTimeout = 20 * time.Minute

// terminal writes get their own budget so they land even after the run ctx is gone
const finalizeTimeout = 10 * time.Second

var errJobDeleted = errors.New("job deleted")

// Task is the unit handed to a Dispatcher. Credentials travel with the task
// and are never written to the store.
type Task struct {
	JobID       string        `json:"job_id"`
	Target      string        `json:"target"`
	Mode        research.Mode `json:"mode"`
	Credentials string        `json:"credentials"`
}

// Dispatcher hands a task to whatever executes it (local pool, broker).
// Dispatch must not block for the duration of the research.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

type SubmitRequest struct {
	Target      string
	Mode        string
	Credentials string
}

type Runner struct {
	store      Store
	researcher research.Researcher
	dispatcher Dispatcher

	timeout time.Duration
	metrics *telemetry.Metrics
	log     *slog.Logger
	now     func() time.Time
	newID   func() (string, error)

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Runner) { r.metrics = m } }

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func WithIDGenerator(f func() (string, error)) Option { return func(r *Runner) { r.newID = f } }

func NewRunner(store Store, researcher research.Researcher, dispatcher Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		researcher: researcher,
		dispatcher: dispatcher,
		timeout:    DefaultTimeout,
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      common.NewULID,
		active:     make(map[string]context.CancelCauseFunc),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetDispatcher wires the dispatcher after construction, for dispatchers that
// need the runner themselves (the local worker pool).
func (r *Runner) SetDispatcher(d Dispatcher) { r.dispatcher = d }

// Submit validates the request, records the job and hands it off for
// execution. It returns as soon as the job is dispatched.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, &ValidationError{Field: "target", Message: "must not be empty"}
	}
	creds := strings.TrimSpace(req.Credentials)
	if creds == "" {
		return nil, &ValidationError{Field: "credentials", Message: "must not be empty"}
	}
	mode, err := research.ParseMode(req.Mode)
	if err != nil {
		return nil, &ValidationError{Field: "mode", Message: err.Error()}
	}

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("new job id: %w", err)
	}

	// 1) record the job as pending
	now := r.now()
	job := &Job{
		ID:        id,
		Status:    StatusPending,
		Target:    target,
		Mode:      mode,
		Progress:  &Progress{Stage: "initializing"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	// 2) mark running before the worker can observe it
	running := job.Clone()
	running.Status = StatusRunning
	running.Progress = &Progress{Stage: "queued"}
	running.UpdatedAt = r.now()
	if err := r.store.Update(ctx, running); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	r.metrics.JobSubmitted(ctx, string(mode))

	// 3) hand off
	task := Task{JobID: id, Target: target, Mode: mode, Credentials: creds}
	if err := r.dispatcher.Dispatch(ctx, task); err != nil {
		r.log.Error("dispatch failed", "job_id", id, "err", err)
		if ferr := r.finish(ctx, running, nil, fmt.Errorf("dispatch failed: %w", err)); ferr != nil {
			r.log.Error("mark job failed", "job_id", id, "err", ferr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	r.log.Info("job submitted", "job_id", id, "target", target, "mode", mode)
	return running, nil
}

// Execute runs the research for a dispatched task and records the terminal
// state. Upstream failures end up on the job; the returned error is reserved
// for store failures the caller may want to retry or dead-letter.
func (r *Runner) Execute(ctx context.Context, task Task) error {
	job, err := r.store.Get(ctx, task.JobID)
	if errors.Is(err, ErrNotFound) {
		r.log.Info("job gone before execution", "job_id", task.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", task.JobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.Status == StatusPending {
		job = job.Clone()
		job.Status = StatusRunning
		job.UpdatedAt = r.now()
		if err := r.store.Update(ctx, job); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return fmt.Errorf("mark running %s: %w", job.ID, err)
		}
	}

	cancelCtx, cancel := context.WithCancelCause(ctx)
	timeoutErr := fmt.Errorf("research timed out after %s", r.timeout)
	runCtx, stop := context.WithTimeoutCause(cancelCtx, r.timeout, timeoutErr)
	defer stop()
	r.track(job.ID, cancel)
	defer r.untrack(job.ID)
	defer cancel(nil)

	var (
		mu      sync.Mutex
		current = job
		closed  bool
	)
	progress := func(stage string, step, steps int) {
		mu.Lock()
		defer mu.Unlock()
		if closed || runCtx.Err() != nil {
			return
		}
		next := current.Clone()
		next.Progress = &Progress{Stage: stage, Step: step, Steps: steps}
		next.UpdatedAt = r.now()
		if err := r.store.Update(runCtx, next); err != nil {
			if errors.Is(err, ErrNotFound) {
				cancel(errJobDeleted)
				return
			}
			r.log.Warn("progress update failed", "job_id", job.ID, "err", err)
			return
		}
		current = next
	}

	started := time.Now()
	report, err := r.callResearcher(runCtx, research.Request{
		Target:      job.Target,
		Mode:        job.Mode,
		Credentials: task.Credentials,
	}, progress)
	took := time.Since(started)

	if errors.Is(context.Cause(cancelCtx), errJobDeleted) {
		r.log.Info("job deleted while running", "job_id", job.ID)
		return nil
	}
	if err == nil && (report == nil || strings.TrimSpace(report.NarrativeText) == "") {
		err = &UpstreamError{Kind: UpstreamMalformed, Err: research.ErrMalformed}
	}
	if err != nil {
		err = r.classify(runCtx, ctx, timeoutErr, err)
	}

	mu.Lock()
	closed = true
	last := current
	mu.Unlock()

	if ferr := r.finish(ctx, last, report, err); ferr != nil {
		return ferr
	}

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		r.log.Warn("job failed", "job_id", job.ID, "took", took, "err", err)
	} else {
		r.log.Info("job completed", "job_id", job.ID, "took", took)
	}
	r.metrics.JobFinished(ctx, string(job.Mode), string(status), took)
	return nil
}

// Cancel stops an in-flight run of id without recording a terminal state.
// It reports whether a run was active.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		cancel(errJobDeleted)
	}
	return ok
}

// Running returns the number of jobs currently executing in this process.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) track(id string, cancel context.CancelCauseFunc) {
	r.mu.Lock()
	r.active[id] = cancel
	r.mu.Unlock()
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// callResearcher bounds the research call by ctx even when the researcher
// ignores it. An abandoned call keeps running until it returns on its own;
// its result is dropped.
func (r *Runner) callResearcher(ctx context.Context, req research.Request, progress research.ProgressFunc) (*research.Report, error) {
	type outcome struct {
		report *research.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if p := recover(); p != nil {
				out = outcome{err: fmt.Errorf("research panicked: %v", p)}
			}
			done <- out
		}()
		out.report, out.err = r.researcher.Research(ctx, req, progress)
	}()

	select {
	case out := <-done:
		return out.report, out.err
	case <-ctx.Done():
		r.log.Warn("abandoning research call", "target", req.Target, "cause", context.Cause(ctx))
		return nil, context.Cause(ctx)
	}
}

func (r *Runner) classify(runCtx, parent context.Context, timeoutErr, err error) error {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up
	}
	if errors.Is(context.Cause(runCtx), timeoutErr) {
		return &UpstreamError{Kind: UpstreamTimeout, Err: timeoutErr}
	}
	if parent.Err() != nil {
		return &UpstreamError{Kind: UpstreamFailed, Err: errors.New("interrupted by shutdown")}
	}
	if errors.Is(err, research.ErrMalformed) {
		return &UpstreamError{Kind: UpstreamMalformed, Err: err}
	}
	if errors.Is(err, ai.ErrCredentialsRequired) || errors.Is(err, ai.ErrAPIKeyNotSet) {
		return &UpstreamError{Kind: UpstreamAuth, Err: err}
	}
	var se *ai.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return &UpstreamError{Kind: UpstreamAuth, Err: err}
		case se.StatusCode == 429 || se.StatusCode == 402:
			return &UpstreamError{Kind: UpstreamQuota, Err: err}
		}
	}
	return &UpstreamError{Kind: UpstreamFailed, Err: err}
}

// finish writes the terminal record. A job deleted in the meantime stays deleted.
func (r *Runner) finish(ctx context.Context, job *Job, report *research.Report, runErr error) error {
	next := job.Clone()
	now := r.now()
	if runErr == nil {
		next.Status = StatusCompleted
		next.Result = report.Clone()
		next.Error = nil
		next.Progress = &Progress{Stage: "completed"}
		if job.Progress != nil && job.Progress.Steps > 0 {
			next.Progress.Step = job.Progress.Steps
			next.Progress.Steps = job.Progress.Steps
		}
	} else {
		msg := runErr.Error()
		next.Status = StatusFailed
		next.Result = nil
		next.Error = &msg
		next.Progress = &Progress{Stage: "failed"}
	}
	next.UpdatedAt = now
	next.CompletedAt = &now

	if !job.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next.Status)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := r.store.Update(wctx, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("store result %s: %w", job.ID, err)
	}
	return nil
}
