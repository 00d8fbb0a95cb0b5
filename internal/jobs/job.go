package jobs

import (
	"time"

	"github.com/suPer8Hu/market-research/internal/research"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record in state s may be replaced by one in
// state to. Lifecycle order is pending -> running -> completed|failed; a
// non-terminal state may be rewritten in place (progress updates).
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusPending || to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusRunning || to.Terminal()
	default:
		return false
	}
}

// Progress is advisory; stage names come from the runner or the research team.
type Progress struct {
	Stage string `json:"stage"`
	Step  int    `json:"step,omitempty"`
	Steps int    `json:"steps,omitempty"`
}

// Job is one research request and its lifecycle. Records are replaced
// wholesale on every change, never mutated in place once stored.
type Job struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Target      string           `json:"target"`
	Mode        research.Mode    `json:"mode"`
	Progress    *Progress        `json:"progress,omitempty"`
	Result      *research.Report `json:"result,omitempty"`
	Error       *string          `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	out.Result = j.Result.Clone()
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// View is the read projection served to clients: Result only when
// completed, Error only when failed.
type View struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Target      string           `json:"target"`
	Mode        research.Mode    `json:"mode"`
	Progress    *Progress        `json:"progress,omitempty"`
	Result      *research.Report `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func NewView(j *Job) View {
	c := j.Clone()
	v := View{
		ID:          c.ID,
		Status:      c.Status,
		Target:      c.Target,
		Mode:        c.Mode,
		Progress:    c.Progress,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
	}
	switch c.Status {
	case StatusCompleted:
		v.Result = c.Result
	case StatusFailed:
		if c.Error != nil {
			v.Error = *c.Error
		}
	}
	return v
}

// Summary is the list form of a job.
type Summary struct {
	ID          string        `json:"id"`
	Status      Status        `json:"status"`
	Target      string        `json:"target"`
	Mode        research.Mode `json:"mode"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
