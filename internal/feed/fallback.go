package feed

import (
	"context"
	"sort"

	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
)

// FallbackPage computes from the local store the page the activity service
// would have returned for params. A cursor that is not in the filtered set
// yields an empty page, as does a failed store read.
func FallbackPage(ctx context.Context, store repositories.ActivityStore, params dtos.ListParams) []gormModels.Activity {
	var (
		all []gormModels.Activity
		err error
	)
	if params.ActivityType != "" {
		all, err = store.QueryByType(ctx, params.ActivityType)
	} else {
		all, err = store.QueryAll(ctx)
	}
	if err != nil {
		logging.Warn("Local store read failed, serving empty page",
			"activity_type", params.ActivityType,
			"error", err,
		)
		return []gormModels.Activity{}
	}

	matched := all[:0]
	for i := range all {
		if all[i].MatchesQuery(params.SearchQuery) {
			matched = append(matched, all[i])
		}
	}
	SortNewestFirst(matched)

	start := 0
	if !params.Cursor.IsZero() {
		start = -1
		for i := range matched {
			if matched[i].ActivityID == params.Cursor.ActivityID && matched[i].Date.Equal(params.Cursor.Date) {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return []gormModels.Activity{}
		}
	}

	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]gormModels.Activity, end-start)
	copy(page, matched[start:end])
	return page
}

// SortNewestFirst orders by date descending, ties broken by activity_id descending
func SortNewestFirst(activities []gormModels.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].Date.Equal(activities[j].Date) {
			return activities[i].Date.After(activities[j].Date)
		}
		return activities[i].ActivityID > activities[j].ActivityID
	})
}
