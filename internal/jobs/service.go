package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Service is the read and delete side of the job API.
type Service struct {
	store  Store
	runner *Runner
}

func NewService(store Store, runner *Runner) *Service {
	return &Service{store: store, runner: runner}
}

// Query returns the client projection of a job.
func (s *Service) Query(ctx context.Context, id string) (View, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(job), nil
}

// Get returns the raw record, for exporters.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.lookup(ctx, id)
}

// List returns every known job, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, j := range all {
		out = append(out, Summary{
			ID:          j.ID,
			Status:      j.Status,
			Target:      j.Target,
			Mode:        j.Mode,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
		})
	}
	return out, nil
}

// Delete removes the job and stops its run if it is executing here.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if s.runner != nil {
		s.runner.Cancel(id)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Stats counts jobs per status.
func (s *Service) Stats(ctx context.Context) (map[Status]int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := map[Status]int{}
	for _, j := range all {
		out[j.Status]++
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// RunEvictor periodically drops terminal jobs older than ttl, until ctx ends.
// Stores that do not implement Evictor are left alone.
func RunEvictor(ctx context.Context, store Store, ttl, interval time.Duration, log *slog.Logger) {
	ev, ok := store.(Evictor)
	if !ok || ttl <= 0 || interval <= 0 {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := ev.EvictBefore(ctx, time.Now().UTC().Add(-ttl))
			if err != nil {
				log.Warn("evict jobs", "err", err)
				continue
			}
			if n > 0 {
				log.Info("evicted jobs", "count", n)
			}
		}
	}
}
