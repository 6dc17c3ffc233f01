package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"
)

// DefaultSyncPageSize is larger than the feed page size to keep round trips down
const DefaultSyncPageSize = 50

// SyncRunRecorder persists the outcome of each run
type SyncRunRecorder interface {
	RecordRun(ctx context.Context, run *gormModels.SyncRun) error
}

// SyncResult summarises one drain
type SyncResult struct {
	Pages   int
	Records int
}

// FullSyncJob mirrors the whole remote activity collection into the local store
type FullSyncJob struct {
	source   providers.ActivitySource
	store    repositories.ActivityStore
	runs     SyncRunRecorder
	metrics  *metrics.MetricsRegistry
	pageSize int

	inProgress atomic.Bool
}

// NewFullSyncJob creates a new full sync job. runs and m may be nil.
func NewFullSyncJob(
	source providers.ActivitySource,
	store repositories.ActivityStore,
	runs SyncRunRecorder,
	m *metrics.MetricsRegistry,
	pageSize int,
) *FullSyncJob {
	if pageSize <= 0 {
		pageSize = DefaultSyncPageSize
	}
	return &FullSyncJob{
		source:   source,
		store:    store,
		runs:     runs,
		metrics:  m,
		pageSize: pageSize,
	}
}

// InProgress reports whether a drain is currently running
func (j *FullSyncJob) InProgress() bool {
	return j.inProgress.Load()
}

// Run drains every page, then writes the accumulated set in a single upsert.
// Any error aborts before the write so the store keeps its last good state.
func (j *FullSyncJob) Run(ctx context.Context, sessionID string) (SyncResult, error) {
	if !j.inProgress.CompareAndSwap(false, true) {
		return SyncResult{}, fmt.Errorf("full sync already running")
	}
	defer j.inProgress.Store(false)

	if j.metrics != nil {
		j.metrics.SyncInProgress.Set(1)
		defer j.metrics.SyncInProgress.Set(0)
	}

	log := logging.WithComponent("full_sync").With("session_id", sessionID)
	start := time.Now()
	log.Infow("Starting full sync", "page_size", j.pageSize)

	records, pages, err := j.drain(ctx, log.Debugw)
	if err == nil {
		err = j.store.UpsertMany(ctx, records)
	}

	result := SyncResult{Pages: pages}
	status := constants.SyncStatusSucceeded
	if err != nil {
		status = constants.SyncStatusFailed
		log.Errorw("Full sync aborted, local store left untouched",
			"pages", pages,
			"error", err,
		)
	} else {
		result.Records = len(records)
		log.Infow("Completed full sync",
			"pages", pages,
			"records", len(records),
			"duration", time.Since(start).Truncate(time.Millisecond).String(),
		)
	}

	j.observe(status, start, result)
	j.record(ctx, sessionID, status, start, result, err)

	return result, err
}

// drain walks the unfiltered collection until a short page
func (j *FullSyncJob) drain(ctx context.Context, debugf func(string, ...interface{})) ([]gormModels.Activity, int, error) {
	var (
		all    []gormModels.Activity
		cursor dtos.Cursor
		pages  int
	)

	for {
		page, err := j.source.ListActivities(ctx, dtos.ListParams{
			Limit:  j.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, pages, fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}
		pages++
		all = append(all, page...)
		debugf("Fetched sync page", "page", pages, "records", len(page))

		if len(page) < j.pageSize {
			break
		}
		cursor = dtos.CursorAfter(page)
	}

	return all, pages, nil
}

func (j *FullSyncJob) observe(status string, start time.Time, result SyncResult) {
	if j.metrics == nil {
		return
	}
	j.metrics.SyncJobDuration.WithLabelValues(constants.SyncEventFullSync, status).Observe(time.Since(start).Seconds())
	j.metrics.SyncPagesFetched.Add(float64(result.Pages))
	if status == constants.SyncStatusFailed {
		j.metrics.SyncFailuresTotal.Inc()
		return
	}
	j.metrics.SyncRecordsUpserted.Add(float64(result.Records))
}

func (j *FullSyncJob) record(ctx context.Context, sessionID, status string, start time.Time, result SyncResult, runErr error) {
	if j.runs == nil {
		return
	}
	run := &gormModels.SyncRun{
		SessionID:       sessionID,
		Event:           constants.SyncEventFullSync,
		Status:          status,
		PagesFetched:    result.Pages,
		RecordsUpserted: result.Records,
		StartedAt:       start,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Recorded even when the caller has gone away
	if err := j.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Warn("Failed to record sync run", "session_id", sessionID, "error", err)
	}
}
