package jobs

import (
	"context"
	"time"
)

// Store holds job records. Implementations must be safe for concurrent use
// and must never expose a partially written record.
type Store interface {
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Job, error)
	// Put creates or replaces the whole record.
	Put(ctx context.Context, job *Job) error
	// Update replaces an existing record and returns ErrNotFound if it is gone,
	// so a deleted job is never brought back by a late writer.
	Update(ctx context.Context, job *Job) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)
}

// Evictor is implemented by stores that can drop old terminal jobs.
type Evictor interface {
	EvictBefore(ctx context.Context, cutoff time.Time) (int, error)
}
