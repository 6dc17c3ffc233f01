package dtos

import (
	"time"

	gormModels "fit-analyse/dashboard/internal/models/gorm"
)

// Cursor is the compound (date, activity_id) position of the last record of
// the previous page. Ties on date are broken by activity_id.
type Cursor struct {
	Date       time.Time `json:"cursor_date"`
	ActivityID string    `json:"cursor_id"`

	// RawDate, when set, is sent verbatim as cursor_date
	RawDate string `json:"-"`
}

// DateParam is the cursor_date query value
func (c Cursor) DateParam() string {
	if c.RawDate != "" {
		return c.RawDate
	}
	return c.Date.Format(time.RFC3339Nano)
}

// IsZero reports whether the cursor points at the start of the collection
func (c Cursor) IsZero() bool {
	return c.ActivityID == "" && c.Date.IsZero()
}

// CursorAfter returns the cursor positioned on the last record of page,
// or the zero cursor for an empty page.
func CursorAfter(page []gormModels.Activity) Cursor {
	if len(page) == 0 {
		return Cursor{}
	}
	last := page[len(page)-1]
	return Cursor{Date: last.Date, ActivityID: last.ActivityID, RawDate: last.RawDate}
}

// ListParams are the query parameters of GET /activities
type ListParams struct {
	Limit        int
	ActivityType string
	SearchQuery  string
	Cursor       Cursor
}
