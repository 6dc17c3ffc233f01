package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fit-analyse/dashboard/internal/common"
	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"

	"golang.org/x/sync/singleflight"
)

// FeedUpdater is the part of the feed that reflects edits and deletes
type FeedUpdater interface {
	ApplyEdit(activityID string, name *string, date *time.Time, tags []string) bool
	Remove(activityID string) bool
}

// ActivityService handles single-activity reads and edits
type ActivityService struct {
	source  providers.ActivitySource
	editor  repositories.ActivityEditor
	feed    FeedUpdater
	cache   common.CacheInterface
	metrics *metrics.MetricsRegistry
	ttl     time.Duration

	group singleflight.Group
}

// NewActivityService creates the service; feed and m may be nil
func NewActivityService(
	source providers.ActivitySource,
	editor repositories.ActivityEditor,
	feed FeedUpdater,
	cache common.CacheInterface,
	m *metrics.MetricsRegistry,
	ttl time.Duration,
) *ActivityService {
	return &ActivityService{
		source:  source,
		editor:  editor,
		feed:    feed,
		cache:   cache,
		metrics: m,
		ttl:     ttl,
	}
}

func detailKey(activityID string) string {
	return string(constants.CachePrefixActivityDetail) + activityID
}

func curveKey(activityID string) string {
	return string(constants.CachePrefixPowerCurve) + activityID
}

// GetActivity returns the detail view, from cache when possible.
// Concurrent requests for the same id share one remote call.
func (s *ActivityService) GetActivity(ctx context.Context, activityID string) (*dtos.ActivityDetailResponse, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, &providers.ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Activity ID cannot be empty",
		}
	}

	key := detailKey(activityID)
	if cached, found := common.GetJSON[dtos.ActivityDetailResponse](ctx, s.cache, s.metrics, key); found {
		return &cached, nil
	}

	// Shared by every waiter, so detached from the first caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	val, err, shared := s.group.Do(key, func() (interface{}, error) {
		detail, err := s.source.GetActivity(fetchCtx, activityID)
		if err != nil {
			return nil, err
		}
		common.SetJSON(fetchCtx, s.cache, key, detail, s.ttl)
		return detail, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("Coalesced activity detail fetch", "activity_id", activityID)
	}
	return val.(*dtos.ActivityDetailResponse), nil
}

// GetPowerCurve returns the activity's power curve; a failed fetch yields an empty curve
func (s *ActivityService) GetPowerCurve(ctx context.Context, activityID string) []dtos.PowerCurvePoint {
	key := curveKey(activityID)
	if cached, found := common.GetJSON[[]dtos.PowerCurvePoint](ctx, s.cache, s.metrics, key); found {
		return cached
	}

	fetchCtx := context.WithoutCancel(ctx)
	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		curve, err := s.source.GetPowerCurve(fetchCtx, activityID)
		if err != nil {
			return nil, err
		}
		if curve == nil {
			curve = []dtos.PowerCurvePoint{}
		}
		common.SetJSON(fetchCtx, s.cache, key, curve, s.ttl)
		return curve, nil
	})
	if err != nil {
		logging.Warn("Failed to fetch power curve", "activity_id", activityID, "error", err)
		return []dtos.PowerCurvePoint{}
	}
	return val.([]dtos.PowerCurvePoint)
}

// UpdateActivity edits name, date and tags. Nil fields are left unchanged.
// On success the local copy, the feed entry and the cache follow the edit.
func (s *ActivityService) UpdateActivity(ctx context.Context, activityID string, name *string, date *time.Time, tags []string) (*gormModels.Activity, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, &providers.ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Activity name cannot be empty",
		}
	}

	updated, err := s.source.UpdateActivity(ctx, activityID, dtos.ActivityUpdateRequest{
		Name: name,
		Date: date,
		Tags: tags,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = &gormModels.Activity{ActivityID: activityID}
	}

	name, date, tags = mergeEdit(updated, name, date, tags)
	if name != nil {
		updated.Name = *name
	}
	if date != nil {
		updated.Date = *date
	}
	if tags != nil {
		updated.Tags = tags
	}

	if s.editor != nil {
		mirrored, err := s.editor.UpdateFields(ctx, activityID, name, date, tags)
		if err != nil {
			logging.Warn("Failed to apply edit to local store", "activity_id", activityID, "error", err)
		} else if !mirrored {
			logging.Debug("Edited activity not mirrored locally yet", "activity_id", activityID)
		}
	}
	if s.feed != nil {
		s.feed.ApplyEdit(activityID, name, date, tags)
	}
	s.invalidate(ctx, activityID)

	logging.Info("Activity updated", "activity_id", activityID)
	return updated, nil
}

// mergeEdit resolves the edited fields. The PATCH response may be a partial
// record, so a value it carries wins and a missing one keeps what was sent.
// Fields that were not sent stay nil.
func mergeEdit(updated *gormModels.Activity, name *string, date *time.Time, tags []string) (*string, *time.Time, []string) {
	if name != nil && updated.Name != "" {
		n := updated.Name
		name = &n
	}
	if date != nil && !updated.Date.IsZero() {
		d := updated.Date
		date = &d
	}
	if tags != nil && updated.Tags != nil {
		tags = append([]string{}, updated.Tags...)
	}
	return name, date, tags
}

// DeleteActivity removes the activity remotely, then locally on a best-effort basis
func (s *ActivityService) DeleteActivity(ctx context.Context, activityID string) error {
	if err := s.source.DeleteActivity(ctx, activityID); err != nil {
		return err
	}

	if s.editor != nil {
		if err := s.editor.Delete(ctx, activityID); err != nil {
			logging.Warn("Failed to delete local copy", "activity_id", activityID, "error", err)
		}
	}
	if s.feed != nil {
		s.feed.Remove(activityID)
	}
	s.invalidate(ctx, activityID)

	logging.Info("Activity deleted", "activity_id", activityID)
	return nil
}

func (s *ActivityService) invalidate(ctx context.Context, activityID string) {
	s.cache.Delete(ctx, detailKey(activityID))
	s.cache.Delete(ctx, curveKey(activityID))
}

// ParseEditDate accepts the date formats the edit form sends
func ParseEditDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := gormModels.ParseTimestamp(*raw)
	if err != nil || t.IsZero() {
		return nil, &providers.ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: fmt.Sprintf("invalid date %q", *raw),
			Err:     err,
		}
	}
	return &t, nil
}
