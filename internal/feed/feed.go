// Package feed keeps the user-visible activity list: one filter context at a
// time, paged by a (date, activity_id) cursor, served from the activity
// service with the local store as fallback.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"
)

const (
	DefaultPageLimit         = 10
	DefaultPrefetchThreshold = 100
)

// Page sources
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// ErrStaleResponse is returned when a page arrived after the filter changed
// and was dropped
var ErrStaleResponse = errors.New("feed: response belongs to a previous filter")

// ErrInvalidTab is returned for a tab other than recorded or route
var ErrInvalidTab = errors.New("feed: unknown tab")

// SyncStatus reports whether a full sync is currently draining the service
type SyncStatus interface {
	InProgress() bool
}

// Filter is the tab and search query of a filter context
type Filter struct {
	Tab         constants.ActivityType `json:"tab"`
	SearchQuery string                 `json:"search_query"`
}

// Feed is safe for concurrent use
type Feed struct {
	source    providers.ActivitySource
	store     repositories.ActivityStore
	sync      SyncStatus
	metrics   *metrics.MetricsRegistry
	limit     int
	threshold int

	mu         sync.Mutex
	filter     Filter
	activities []gormModels.Activity
	cursor     dtos.Cursor
	hasMore    bool
	isLoading  bool
	generation uint64
	lastSource string
}

// Options tunes a Feed; zero values use the defaults
type Options struct {
	PageLimit         int
	PrefetchThreshold int
	Sync              SyncStatus
	Metrics           *metrics.MetricsRegistry
}

// New creates a feed on the recorded tab with nothing loaded yet
func New(source providers.ActivitySource, store repositories.ActivityStore, opts Options) *Feed {
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	if opts.PrefetchThreshold <= 0 {
		opts.PrefetchThreshold = DefaultPrefetchThreshold
	}
	return &Feed{
		source:    source,
		store:     store,
		sync:      opts.Sync,
		metrics:   opts.Metrics,
		limit:     opts.PageLimit,
		threshold: opts.PrefetchThreshold,
		filter:    Filter{Tab: constants.ActivityTypeRecorded},
		hasMore:   true,
	}
}

// SetSync attaches the sync job once it exists
func (f *Feed) SetSync(s SyncStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync = s
}

// Limit is the page size
func (f *Feed) Limit() int {
	return f.limit
}

// Snapshot returns the current state
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// ChangeFilter starts a new filter context: any in-flight page of the previous
// context is dropped, the list is reset and the first page is fetched.
func (f *Feed) ChangeFilter(ctx context.Context, filter Filter) (Snapshot, error) {
	filter.Tab = constants.ActivityType(strings.ToLower(string(filter.Tab)))
	if !filter.Tab.Valid() {
		return f.Snapshot(), fmt.Errorf("%w %q", ErrInvalidTab, filter.Tab)
	}

	f.mu.Lock()
	f.generation++
	gen := f.generation
	f.filter = filter
	f.activities = nil
	f.cursor = dtos.Cursor{}
	f.hasMore = true
	f.isLoading = true
	params := f.paramsLocked()
	f.mu.Unlock()

	page, source, err := f.fetch(ctx, params)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		f.staleLocked(gen)
		return f.snapshotLocked(), ErrStaleResponse
	}
	if err != nil {
		// Nothing loaded yet; the next LoadNextPage fetches the first page again
		f.isLoading = false
		return f.snapshotLocked(), err
	}
	f.activities = page
	f.advanceLocked(page, source)
	return f.snapshotLocked(), nil
}

// SetTab switches tab keeping the search query
func (f *Feed) SetTab(ctx context.Context, tab string) (Snapshot, error) {
	f.mu.Lock()
	filter := f.filter
	f.mu.Unlock()

	filter.Tab = constants.ActivityType(tab)
	return f.ChangeFilter(ctx, filter)
}

// SetSearch changes the search query keeping the tab
func (f *Feed) SetSearch(ctx context.Context, query string) (Snapshot, error) {
	f.mu.Lock()
	filter := f.filter
	f.mu.Unlock()

	filter.SearchQuery = query
	return f.ChangeFilter(ctx, filter)
}

// LoadNextPage appends the page after the cursor. It does nothing while a
// fetch is running or once the end of the collection was reached.
func (f *Feed) LoadNextPage(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.isLoading || !f.hasMore {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, nil
	}
	f.isLoading = true
	gen := f.generation
	params := f.paramsLocked()
	f.mu.Unlock()

	page, source, err := f.fetch(ctx, params)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		// isLoading now belongs to the newer context
		f.staleLocked(gen)
		return f.snapshotLocked(), ErrStaleResponse
	}
	if err != nil {
		f.isLoading = false
		return f.snapshotLocked(), err
	}
	f.activities = append(f.activities, page...)
	f.advanceLocked(page, source)
	return f.snapshotLocked(), nil
}

// ApplyEdit updates the edited fields of an entry in place. Nil fields and
// nil tags are left as they are.
func (f *Feed) ApplyEdit(activityID string, name *string, date *time.Time, tags []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.activities {
		if f.activities[i].ActivityID != activityID {
			continue
		}
		if name != nil {
			f.activities[i].Name = *name
		}
		if date != nil {
			f.activities[i].Date = *date
			f.activities[i].RawDate = ""
		}
		if tags != nil {
			f.activities[i].Tags = append([]string{}, tags...)
		}
		return true
	}
	return false
}

// Remove drops a deleted activity from the list
func (f *Feed) Remove(activityID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.activities {
		if f.activities[i].ActivityID == activityID {
			f.activities = append(f.activities[:i], f.activities[i+1:]...)
			return true
		}
	}
	return false
}

// fetch only fails when ctx is done: remote errors and sync-time reads fall
// back to the store. A page read under a dead context is never returned.
func (f *Feed) fetch(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, string, error) {
	page, source := f.fetchPage(ctx, params)
	if err := ctx.Err(); err != nil {
		logging.Debug("Feed fetch abandoned by caller",
			"cursor_id", params.Cursor.ActivityID,
			"error", err,
		)
		return nil, "", err
	}
	return page, source, nil
}

func (f *Feed) fetchPage(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, string) {
	if err := ctx.Err(); err != nil {
		return nil, ""
	}
	if f.preferLocal(ctx) {
		return FallbackPage(ctx, f.store, params), SourceLocal
	}

	page, err := f.source.ListActivities(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ""
		}
		// 401s have already been reported to the session hook by the provider
		logging.Warn("Activity service unavailable, serving page from local store",
			"activity_type", params.ActivityType,
			"search_query", params.SearchQuery,
			"cursor_id", params.Cursor.ActivityID,
			"unauthorized", providers.IsUnauthorized(err),
			"error", err,
		)
		return FallbackPage(ctx, f.store, params), SourceLocal
	}
	if page == nil {
		page = []gormModels.Activity{}
	}
	return page, SourceRemote
}

// preferLocal skips the remote call while a sync drains the service, as long
// as a previous mirror exists to read from
func (f *Feed) preferLocal(ctx context.Context) bool {
	f.mu.Lock()
	s := f.sync
	f.mu.Unlock()

	if s == nil || !s.InProgress() {
		return false
	}
	count, err := f.store.Count(ctx)
	return err == nil && count > 0
}

func (f *Feed) paramsLocked() dtos.ListParams {
	return dtos.ListParams{
		Limit:        f.limit,
		ActivityType: string(f.filter.Tab),
		SearchQuery:  f.filter.SearchQuery,
		Cursor:       f.cursor,
	}
}

func (f *Feed) advanceLocked(page []gormModels.Activity, source string) {
	if len(page) > 0 {
		f.cursor = dtos.CursorAfter(page)
	}
	f.hasMore = len(page) == f.limit
	f.isLoading = false
	f.lastSource = source
	if f.metrics != nil {
		f.metrics.FeedPagesServed.WithLabelValues(source).Inc()
	}
}

func (f *Feed) staleLocked(gen uint64) {
	logging.Debug("Discarding stale feed page",
		"generation", gen,
		"current_generation", f.generation,
	)
	if f.metrics != nil {
		f.metrics.FeedStaleResponses.Inc()
	}
}

func (f *Feed) snapshotLocked() Snapshot {
	activities := make([]gormModels.Activity, len(f.activities))
	copy(activities, f.activities)
	return Snapshot{
		Filter:     f.filter,
		Activities: activities,
		Cursor:     f.cursor,
		HasMore:    f.hasMore,
		IsLoading:  f.isLoading,
		Source:     f.lastSource,
		Generation: f.generation,
	}
}
