package gorm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Activity is one mirrored activity record, keyed by activity_id.
// Data, LapsData, FitFile and StaticMap are opaque payloads passed through verbatim.
type Activity struct {
	ActivityID      string         `gorm:"column:activity_id;primaryKey;type:varchar(64)" json:"activity_id"`
	Name            string         `gorm:"column:name" json:"name"`
	OwnerID         int64          `gorm:"column:owner_id;index" json:"owner_id"`
	ActivityType    string         `gorm:"column:activity_type;type:varchar(16);index" json:"activity_type"`
	Date            time.Time      `gorm:"column:date;index" json:"date"`
	Distance        float64        `gorm:"column:distance" json:"distance"`
	ActiveTime      float64        `gorm:"column:active_time" json:"active_time"`
	ElevationGain   float64        `gorm:"column:elevation_gain" json:"elevation_gain"`
	Tags            []string       `gorm:"column:tags;serializer:json" json:"tags"`
	ValHash         string         `gorm:"column:val_hash;type:varchar(64);index" json:"val_hash,omitempty"`
	LastModified    time.Time      `gorm:"column:last_modified" json:"last_modified"`
	FitFileParsedAt *time.Time     `gorm:"column:fit_file_parsed_at" json:"fit_file_parsed_at,omitempty"`
	Data            datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	LapsData        datatypes.JSON `gorm:"column:laps_data" json:"laps_data,omitempty"`
	FitFile         datatypes.JSON `gorm:"column:fit_file" json:"fit_file,omitempty"`
	StaticMap       datatypes.JSON `gorm:"column:static_map" json:"static_map,omitempty"`

	// RawDate is the date exactly as the service sent it, echoed back in cursors
	RawDate string `gorm:"-" json:"-"`
}

// TableName specifies the table name for GORM
func (Activity) TableName() string {
	return "activities"
}

// UnmarshalJSON accepts the service's timestamps with or without a zone offset
func (a *Activity) UnmarshalJSON(b []byte) error {
	type alias Activity
	aux := struct {
		*alias
		Date            string  `json:"date"`
		LastModified    string  `json:"last_modified"`
		FitFileParsedAt *string `json:"fit_file_parsed_at"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	var err error
	if a.Date, err = ParseTimestamp(aux.Date); err != nil {
		return fmt.Errorf("activity %s: date: %w", a.ActivityID, err)
	}
	a.RawDate = aux.Date
	if a.LastModified, err = ParseTimestamp(aux.LastModified); err != nil {
		return fmt.Errorf("activity %s: last_modified: %w", a.ActivityID, err)
	}
	a.FitFileParsedAt = nil
	if aux.FitFileParsedAt != nil && *aux.FitFileParsedAt != "" {
		t, err := ParseTimestamp(*aux.FitFileParsedAt)
		if err != nil {
			return fmt.Errorf("activity %s: fit_file_parsed_at: %w", a.ActivityID, err)
		}
		a.FitFileParsedAt = &t
	}
	return nil
}

// MatchesQuery reports whether query is a case-insensitive substring of the
// name or of any tag. An empty query matches everything.
func (a *Activity) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(a.Name), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without an offset are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
