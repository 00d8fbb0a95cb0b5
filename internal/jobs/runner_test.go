package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/ai"
	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/logger"
	"github.com/suPer8Hu/market-research/internal/research"
	"github.com/suPer8Hu/market-research/internal/store/memstore"
)

type fakeResearcher struct {
	fn func(ctx context.Context, req research.Request, progress research.ProgressFunc) (*research.Report, error)
}

func (f fakeResearcher) Research(ctx context.Context, req research.Request, progress research.ProgressFunc) (*research.Report, error) {
	return f.fn(ctx, req, progress)
}

// goDispatcher runs each task on its own goroutine.
type goDispatcher struct {
	runner *jobs.Runner
	wg     sync.WaitGroup
}

func (d *goDispatcher) Dispatch(_ context.Context, task jobs.Task) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.runner.Execute(context.Background(), task)
	}()
	return nil
}

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, jobs.Task) error {
	return errors.New("queue full")
}

// recordingStore remembers every status written per job.
type recordingStore struct {
	*memstore.Store
	mu      sync.Mutex
	history map[string][]jobs.Status
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memstore.New(), history: map[string][]jobs.Status{}}
}

func (s *recordingStore) Put(ctx context.Context, j *jobs.Job) error {
	s.record(j)
	return s.Store.Put(ctx, j)
}

func (s *recordingStore) Update(ctx context.Context, j *jobs.Job) error {
	err := s.Store.Update(ctx, j)
	if err == nil {
		s.record(j)
	}
	return err
}

func (s *recordingStore) record(j *jobs.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[j.ID]
	if len(h) == 0 || h[len(h)-1] != j.Status {
		s.history[j.ID] = append(h, j.Status)
	}
}

func (s *recordingStore) statuses(id string) []jobs.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobs.Status(nil), s.history[id]...)
}

func newRunner(t *testing.T, store jobs.Store, r research.Researcher, opts ...jobs.Option) (*jobs.Runner, *goDispatcher) {
	t.Helper()
	d := &goDispatcher{}
	opts = append([]jobs.Option{jobs.WithLogger(logger.Discard())}, opts...)
	runner := jobs.NewRunner(store, r, d, opts...)
	d.runner = runner
	return runner, d
}

func okReport(ctx context.Context, req research.Request, progress research.ProgressFunc) (*research.Report, error) {
	progress("web_research", 1, 2)
	progress("report_generation", 2, 2)
	return &research.Report{NarrativeText: "# Report on " + req.Target, Summary: "fine"}, nil
}

func waitTerminal(t *testing.T, store jobs.Store, id string) *jobs.Job {
	t.Helper()
	var job *jobs.Job
	require.Eventually(t, func() bool {
		j, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmit_Validation(t *testing.T) {
	store := memstore.New()
	runner, _ := newRunner(t, store, fakeResearcher{fn: okReport})

	cases := []struct {
		name  string
		req   jobs.SubmitRequest
		field string
	}{
		{"empty target", jobs.SubmitRequest{Target: "  ", Credentials: "k"}, "target"},
		{"empty credentials", jobs.SubmitRequest{Target: "Slack"}, "credentials"},
		{"bad mode", jobs.SubmitRequest{Target: "Slack", Credentials: "k", Mode: "deep"}, "mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runner.Submit(context.Background(), tc.req)
			var ve *jobs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_CompletesAndProjects(t *testing.T) {
	store := newRecordingStore()
	var gotCreds string
	runner, d := newRunner(t, store, fakeResearcher{fn: func(ctx context.Context, req research.Request, p research.ProgressFunc) (*research.Report, error) {
		gotCreds = req.Credentials
		return okReport(ctx, req, p)
	}})

	job, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: " Slack ", Credentials: "sk-1"})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, job.Status)
	assert.Equal(t, "Slack", job.Target)
	assert.Equal(t, research.ModeQuick, job.Mode)
	assert.Len(t, job.ID, 26)

	done := waitTerminal(t, store, job.ID)
	d.wg.Wait()

	assert.Equal(t, jobs.StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "# Report on Slack", done.Result.NarrativeText)
	assert.Nil(t, done.Error)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "sk-1", gotCreds)
	assert.Equal(t, 2, done.Progress.Step)

	assert.Equal(t, []jobs.Status{jobs.StatusPending, jobs.StatusRunning, jobs.StatusCompleted}, store.statuses(job.ID))

	svc := jobs.NewService(store, runner)
	view, err := svc.Query(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotNil(t, view.Result)
	assert.Empty(t, view.Error)
}

func TestExecute_FailureKinds(t *testing.T) {
	cases := []struct {
		name    string
		fn      func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error)
		opts    []jobs.Option
		wantErr string
	}{
		{
			name: "auth",
			fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
				return nil, &ai.StatusError{Provider: "openrouter", StatusCode: 401, Message: "bad key"}
			},
			wantErr: "rejected the credentials",
		},
		{
			name: "missing provider key",
			fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
				return nil, fmt.Errorf("openrouter: %w", ai.ErrCredentialsRequired)
			},
			wantErr: "rejected the credentials",
		},
		{
			name: "quota",
			fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
				return nil, &ai.StatusError{Provider: "openai", StatusCode: 429, Message: "slow down"}
			},
			wantErr: "quota",
		},
		{
			name: "empty narrative",
			fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
				return &research.Report{NarrativeText: "  "}, nil
			},
			wantErr: "unusable content",
		},
		{
			name: "panic",
			fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
				panic("boom")
			},
			wantErr: "panicked: boom",
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, _ research.Request, _ research.ProgressFunc) (*research.Report, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			opts:    []jobs.Option{jobs.WithTimeout(30 * time.Millisecond)},
			wantErr: "research timed out after 30ms",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newRecordingStore()
			runner, d := newRunner(t, store, fakeResearcher{fn: tc.fn}, tc.opts...)

			job, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: "Slack", Credentials: "k", Mode: "detailed"})
			require.NoError(t, err)

			done := waitTerminal(t, store, job.ID)
			d.wg.Wait()
			assert.Equal(t, jobs.StatusFailed, done.Status)
			assert.Nil(t, done.Result)
			require.NotNil(t, done.Error)
			assert.Contains(t, *done.Error, tc.wantErr)
			assert.Equal(t, []jobs.Status{jobs.StatusPending, jobs.StatusRunning, jobs.StatusFailed}, store.statuses(job.ID))

			view := jobs.NewView(done)
			assert.Nil(t, view.Result)
			assert.NotEmpty(t, view.Error)
		})
	}
}

func TestExecute_TimeoutWhenResearcherIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	store := newRecordingStore()
	runner, d := newRunner(t, store, fakeResearcher{fn: func(_ context.Context, _ research.Request, progress research.ProgressFunc) (*research.Report, error) {
		defer close(returned)
		<-release
		progress("report_generation", 5, 5)
		return &research.Report{NarrativeText: "late"}, nil
	}}, jobs.WithTimeout(50*time.Millisecond))

	job, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: "Slack", Credentials: "k"})
	require.NoError(t, err)

	done := waitTerminal(t, store, job.ID)
	d.wg.Wait()
	assert.Equal(t, jobs.StatusFailed, done.Status)
	require.NotNil(t, done.Error)
	assert.Equal(t, "research timed out after 50ms", *done.Error)
	assert.Equal(t, 0, runner.Running())

	// the abandoned call finishing later must not touch the terminal record
	close(release)
	<-returned
	after, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, after.Status)
	assert.Nil(t, after.Result)
	assert.Equal(t, "failed", after.Progress.Stage)
}

func TestSubmit_DispatchFailureMarksFailed(t *testing.T) {
	store := memstore.New()
	runner := jobs.NewRunner(store, fakeResearcher{fn: okReport}, failingDispatcher{}, jobs.WithLogger(logger.Discard()))

	_, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: "Slack", Credentials: "k"})
	require.ErrorIs(t, err, jobs.ErrDispatch)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, jobs.StatusFailed, list[0].Status)
	assert.Contains(t, *list[0].Error, "queue full")
}

func TestDelete_WhileRunning(t *testing.T) {
	store := newRecordingStore()
	started := make(chan struct{})
	stopped := make(chan struct{})
	runner, d := newRunner(t, store, fakeResearcher{fn: func(ctx context.Context, _ research.Request, _ research.ProgressFunc) (*research.Report, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	}})
	svc := jobs.NewService(store, runner)

	job, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: "Slack", Credentials: "k"})
	require.NoError(t, err)
	<-started
	assert.Equal(t, 1, runner.Running())

	require.NoError(t, svc.Delete(context.Background(), job.ID))
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("research was not cancelled")
	}
	d.wg.Wait()

	_, err = store.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.Equal(t, 0, runner.Running())
	assert.ErrorIs(t, svc.Delete(context.Background(), job.ID), jobs.ErrNotFound)
}

func TestExecute_SkipsUnknownAndTerminal(t *testing.T) {
	store := memstore.New()
	called := false
	runner, _ := newRunner(t, store, fakeResearcher{fn: func(context.Context, research.Request, research.ProgressFunc) (*research.Report, error) {
		called = true
		return &research.Report{NarrativeText: "x"}, nil
	}})

	require.NoError(t, runner.Execute(context.Background(), jobs.Task{JobID: "missing"}))

	now := time.Now()
	require.NoError(t, store.Put(context.Background(), &jobs.Job{ID: "done", Status: jobs.StatusCompleted, CompletedAt: &now}))
	require.NoError(t, runner.Execute(context.Background(), jobs.Task{JobID: "done"}))
	assert.False(t, called)
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, jobs.StatusPending.CanTransition(jobs.StatusRunning))
	assert.True(t, jobs.StatusPending.CanTransition(jobs.StatusFailed))
	assert.False(t, jobs.StatusPending.CanTransition(jobs.StatusCompleted))
	assert.True(t, jobs.StatusRunning.CanTransition(jobs.StatusRunning))
	assert.True(t, jobs.StatusRunning.CanTransition(jobs.StatusCompleted))
	assert.False(t, jobs.StatusRunning.CanTransition(jobs.StatusPending))
	assert.False(t, jobs.StatusCompleted.CanTransition(jobs.StatusFailed))
	assert.False(t, jobs.StatusFailed.CanTransition(jobs.StatusRunning))
}

func TestService_ListAndStats(t *testing.T) {
	store := memstore.New()
	runner, d := newRunner(t, store, fakeResearcher{fn: okReport})
	svc := jobs.NewService(store, runner)

	for _, target := range []string{"Slack", "Notion"} {
		_, err := runner.Submit(context.Background(), jobs.SubmitRequest{Target: target, Credentials: "k"})
		require.NoError(t, err)
	}
	d.wg.Wait()

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Notion", list[0].Target)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats[jobs.StatusCompleted])

	_, err = svc.Query(context.Background(), "")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestRunEvictor(t *testing.T) {
	store := memstore.New()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.Put(context.Background(), &jobs.Job{ID: "old", Status: jobs.StatusCompleted, CompletedAt: &old}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.RunEvictor(ctx, store, time.Minute, 5*time.Millisecond, logger.Discard())

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "old")
		return errors.Is(err, jobs.ErrNotFound)
	}, time.Second, 5*time.Millisecond)
}
