package repositories

import (
	"context"
	"errors"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/models/gorm"

	gormlib "gorm.io/gorm"
)

// SyncRunRepo handles sync history operations
type SyncRunRepo struct {
	db *gormlib.DB
}

// NewSyncRunRepo creates a new sync history repository
func NewSyncRunRepo(db *gormlib.DB) *SyncRunRepo {
	return &SyncRunRepo{db: db}
}

// RecordRun stores the outcome of one full-sync attempt
func (r *SyncRunRepo) RecordRun(ctx context.Context, run *gorm.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// LastRun returns the most recent sync attempt for an event, or nil if none ran yet
func (r *SyncRunRepo) LastRun(ctx context.Context, event string) (*gorm.SyncRun, error) {
	var run gorm.SyncRun

	err := r.db.WithContext(ctx).
		Where("event = ?", event).
		Order("started_at DESC").
		First(&run).Error

	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil // No sync history found
		}
		return nil, err
	}

	return &run, nil
}

// LastSuccessfulSyncTime returns when the store was last fully mirrored
func (r *SyncRunRepo) LastSuccessfulSyncTime(ctx context.Context, event string) (*time.Time, error) {
	var run gorm.SyncRun

	err := r.db.WithContext(ctx).
		Where("event = ? AND status = ?", event, constants.SyncStatusSucceeded).
		Order("finished_at DESC").
		First(&run).Error

	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return run.FinishedAt, nil
}
