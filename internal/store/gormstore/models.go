package gormstore

import (
	"time"

	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/research"
)

type jobRow struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	Status string `gorm:"type:varchar(16);index;not null"`
	Target string `gorm:"type:varchar(255);not null"`
	Mode   string `gorm:"type:varchar(16);not null"`

	Progress *jobs.Progress `gorm:"type:text;serializer:json"`

	// Filled when completed
	Result *research.Report `gorm:"type:longtext;serializer:json"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt   time.Time  `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime:false"`
	CompletedAt *time.Time `gorm:"index"`
}

func (jobRow) TableName() string { return "research_jobs" }

func toRow(j *jobs.Job) *jobRow {
	c := j.Clone()
	return &jobRow{
		ID:          c.ID,
		Status:      string(c.Status),
		Target:      c.Target,
		Mode:        string(c.Mode),
		Progress:    c.Progress,
		Result:      c.Result,
		Error:       c.Error,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
	}
}

func (r *jobRow) toJob() *jobs.Job {
	return &jobs.Job{
		ID:          r.ID,
		Status:      jobs.Status(r.Status),
		Target:      r.Target,
		Mode:        research.Mode(r.Mode),
		Progress:    r.Progress,
		Result:      r.Result,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
