// Package providertest provides an in-memory activity service for tests.
package providertest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"
)

// FakeSource serves a collection with the same ordering and cursor contract
// as the real service. Hook fields override individual calls.
type FakeSource struct {
	mu         sync.Mutex
	activities []gormModels.Activity
	hashes     []string

	ListCalls   []dtos.ListParams
	UploadNames []string

	ListFunc   func(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, error)
	HashesFunc func(ctx context.Context) ([]string, error)
	UploadFunc func(ctx context.Context, filename string, content []byte) (*gormModels.Activity, error)
	UpdateFunc func(ctx context.Context, activityID string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error)
	DeleteFunc func(ctx context.Context, activityID string) error
	DetailFunc func(ctx context.Context, activityID string) (*dtos.ActivityDetailResponse, error)
	CurveFunc  func(ctx context.Context, activityID string) ([]dtos.PowerCurvePoint, error)
}

var _ providers.ActivitySource = (*FakeSource)(nil)

// NewFakeSource creates a fake holding a copy of activities
func NewFakeSource(activities ...gormModels.Activity) *FakeSource {
	f := &FakeSource{}
	f.activities = append(f.activities, activities...)
	return f
}

// SetHashes replaces the known hash list
func (f *FakeSource) SetHashes(hashes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes = append([]string(nil), hashes...)
}

// Calls returns a copy of every ListActivities call made so far
func (f *FakeSource) Calls() []dtos.ListParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dtos.ListParams(nil), f.ListCalls...)
}

// Uploads returns the filenames posted so far
func (f *FakeSource) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.UploadNames...)
}

func (f *FakeSource) ListActivities(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, error) {
	f.mu.Lock()
	f.ListCalls = append(f.ListCalls, params)
	fn := f.ListFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, params)
	}
	return f.Page(params), nil
}

// Page computes a page the way the service does
func (f *FakeSource) Page(params dtos.ListParams) []gormModels.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]gormModels.Activity, 0, len(f.activities))
	for i := range f.activities {
		a := f.activities[i]
		if params.ActivityType != "" && a.ActivityType != params.ActivityType {
			continue
		}
		if !a.MatchesQuery(params.SearchQuery) {
			continue
		}
		matched = append(matched, a)
	}
	SortDesc(matched)

	startIdx := 0
	if !params.Cursor.IsZero() {
		startIdx = len(matched)
		for i := range matched {
			if After(matched[i], params.Cursor) {
				startIdx = i
				break
			}
		}
	}
	end := startIdx + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]gormModels.Activity(nil), matched[startIdx:end]...)
}

func (f *FakeSource) FetchKnownHashes(ctx context.Context) ([]string, error) {
	if f.HashesFunc != nil {
		return f.HashesFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hashes...), nil
}

func (f *FakeSource) UploadActivity(ctx context.Context, filename string, content io.Reader) (*gormModels.Activity, error) {
	body, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.UploadNames = append(f.UploadNames, filename)
	fn := f.UploadFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, filename, body)
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	created := gormModels.Activity{
		ActivityID:   fmt.Sprintf("upload-%s", hash[:12]),
		Name:         strings.TrimSuffix(filename, ".fit"),
		ActivityType: string(constants.ActivityTypeRecorded),
		Date:         time.Now().UTC(),
		ValHash:      hash,
	}

	f.mu.Lock()
	f.activities = append(f.activities, created)
	f.hashes = append(f.hashes, hash)
	f.mu.Unlock()

	return &created, nil
}

func (f *FakeSource) UpdateActivity(ctx context.Context, activityID string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error) {
	if f.UpdateFunc != nil {
		return f.UpdateFunc(ctx, activityID, update)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.activities {
		if f.activities[i].ActivityID != activityID {
			continue
		}
		if update.Name != nil {
			f.activities[i].Name = *update.Name
		}
		if update.Date != nil {
			f.activities[i].Date = *update.Date
		}
		if update.Tags != nil {
			f.activities[i].Tags = update.Tags
		}
		updated := f.activities[i]
		return &updated, nil
	}
	return nil, notFound(activityID)
}

func (f *FakeSource) DeleteActivity(ctx context.Context, activityID string) error {
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, activityID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.activities {
		if f.activities[i].ActivityID == activityID {
			f.activities = append(f.activities[:i], f.activities[i+1:]...)
			return nil
		}
	}
	return notFound(activityID)
}

func (f *FakeSource) GetActivity(ctx context.Context, activityID string) (*dtos.ActivityDetailResponse, error) {
	if f.DetailFunc != nil {
		return f.DetailFunc(ctx, activityID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.activities {
		if f.activities[i].ActivityID == activityID {
			base := f.activities[i]
			return &dtos.ActivityDetailResponse{ActivityBase: &base}, nil
		}
	}
	return nil, notFound(activityID)
}

func (f *FakeSource) GetPowerCurve(ctx context.Context, activityID string) ([]dtos.PowerCurvePoint, error) {
	if f.CurveFunc != nil {
		return f.CurveFunc(ctx, activityID)
	}
	return []dtos.PowerCurvePoint{}, nil
}

// SortDesc orders activities by date then activity_id, newest first
func SortDesc(activities []gormModels.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].Date.Equal(activities[j].Date) {
			return activities[i].Date.After(activities[j].Date)
		}
		return activities[i].ActivityID > activities[j].ActivityID
	})
}

// After reports whether a sorts strictly after the cursor position
func After(a gormModels.Activity, c dtos.Cursor) bool {
	if !a.Date.Equal(c.Date) {
		return a.Date.Before(c.Date)
	}
	return a.ActivityID < c.ActivityID
}

// Activities builds n activities of one type, one day apart, newest first
func Activities(prefix string, activityType constants.ActivityType, n int, newest time.Time) []gormModels.Activity {
	out := make([]gormModels.Activity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, gormModels.Activity{
			ActivityID:   fmt.Sprintf("%s-%03d", prefix, i),
			Name:         fmt.Sprintf("%s activity %d", prefix, i),
			ActivityType: string(activityType),
			Date:         newest.Add(-time.Duration(i) * 24 * time.Hour),
			Tags:         []string{},
		})
	}
	return out
}

func notFound(activityID string) error {
	return &providers.ProviderError{
		Code:       constants.ErrCodeActivityNotFound,
		Message:    fmt.Sprintf("activity %s not found", activityID),
		StatusCode: 404,
	}
}
