package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fit-analyse/dashboard/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityStore is the local mirror of the remote activity collection.
// UpsertMany is all-or-nothing; readers never observe a partially applied batch.
type ActivityStore interface {
	UpsertMany(ctx context.Context, records []gorm.Activity) error
	QueryByType(ctx context.Context, activityType string) ([]gorm.Activity, error)
	QueryAll(ctx context.Context) ([]gorm.Activity, error)
	Count(ctx context.Context) (int64, error)
}

// ActivityEditor applies user edits to an already mirrored record
type ActivityEditor interface {
	UpdateFields(ctx context.Context, activityID string, name *string, date *time.Time, tags []string) (bool, error)
	Delete(ctx context.Context, activityID string) error
}

// upsertBatchSize keeps each INSERT under SQLite's bound-variable limit
const upsertBatchSize = 100

// ActivityRepo handles activities table operations
type ActivityRepo struct {
	db *gormlib.DB
}

var (
	_ ActivityStore  = (*ActivityRepo)(nil)
	_ ActivityEditor = (*ActivityRepo)(nil)
)

// NewActivityRepo creates a new activity repository
func NewActivityRepo(db *gormlib.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// UpsertMany inserts or fully overwrites records by activity_id in one transaction
// ON CONFLICT (activity_id) DO UPDATE SET <every column>
func (r *ActivityRepo) UpsertMany(ctx context.Context, records []gorm.Activity) error {
	if len(records) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		return tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "activity_id"}},
				UpdateAll: true,
			}).
			CreateInBatches(&records, upsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d activities: %w", len(records), err)
	}
	return nil
}

// QueryByType returns every mirrored activity of the given type, unordered
func (r *ActivityRepo) QueryByType(ctx context.Context, activityType string) ([]gorm.Activity, error) {
	var activities []gorm.Activity

	err := r.db.WithContext(ctx).
		Where("activity_type = ?", activityType).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query activities of type %s: %w", activityType, err)
	}

	return activities, nil
}

// QueryAll returns every mirrored activity, unordered
func (r *ActivityRepo) QueryAll(ctx context.Context) ([]gorm.Activity, error) {
	var activities []gorm.Activity

	if err := r.db.WithContext(ctx).Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	return activities, nil
}

// Count returns the number of mirrored activities
func (r *ActivityRepo) Count(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&gorm.Activity{}).
		Count(&count).Error

	return count, err
}

// FindByID finds a mirrored activity, returning nil when it is not in the store
func (r *ActivityRepo) FindByID(ctx context.Context, activityID string) (*gorm.Activity, error) {
	var activity gorm.Activity

	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		First(&activity).Error

	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &activity, nil
}

// UpdateFields applies an edit to the local copy. Records that were never
// mirrored are left alone and reported with false.
func (r *ActivityRepo) UpdateFields(ctx context.Context, activityID string, name *string, date *time.Time, tags []string) (bool, error) {
	activity, err := r.FindByID(ctx, activityID)
	if err != nil {
		return false, fmt.Errorf("failed to load activity %s: %w", activityID, err)
	}
	if activity == nil {
		return false, nil
	}

	columns := make([]string, 0, 3)
	if name != nil {
		activity.Name = *name
		columns = append(columns, "name")
	}
	if date != nil {
		activity.Date = *date
		columns = append(columns, "date")
	}
	if tags != nil {
		activity.Tags = tags
		columns = append(columns, "tags")
	}
	if len(columns) == 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).
		Model(activity).
		Select(columns).
		Updates(activity).Error
	if err != nil {
		return false, fmt.Errorf("failed to update activity %s: %w", activityID, err)
	}
	return true, nil
}

// Delete removes the local copy of an activity; a missing record is not an error
func (r *ActivityRepo) Delete(ctx context.Context, activityID string) error {
	return r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Delete(&gorm.Activity{}).Error
}
