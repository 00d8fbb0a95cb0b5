// Package gormstore persists jobs in a SQL database through gorm.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

type Store struct {
	db *gorm.DB
}

// New migrates the jobs table and returns a store on db.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&jobRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	var r jobRow
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jobs.ErrNotFound
		}
		return nil, err
	}
	return r.toJob(), nil
}

func (s *Store) Put(ctx context.Context, job *jobs.Job) error {
	return s.db.WithContext(ctx).Save(toRow(job)).Error
}

// Update rewrites every column of an existing row.
func (s *Store) Update(ctx context.Context, job *jobs.Job) error {
	res := s.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ?", job.ID).
		Select("*").
		Updates(toRow(job))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// mysql reports 0 rows for an update that changed nothing
	var n int64
	if err := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", job.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&jobRow{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) List(ctx context.Context) ([]*jobs.Job, error) {
	var rows []jobRow
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*jobs.Job, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toJob())
	}
	return out, nil
}

func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?", []string{string(jobs.StatusCompleted), string(jobs.StatusFailed)}, cutoff).
		Delete(&jobRow{})
	return int(res.RowsAffected), res.Error
}
