package dtos

import (
	"encoding/json"
	"time"

	gormModels "fit-analyse/dashboard/internal/models/gorm"
)

// ActivityUpdateRequest is the PATCH /activity/{id} body
type ActivityUpdateRequest struct {
	Name *string    `json:"name,omitempty"`
	Date *time.Time `json:"date,omitempty"`
	Tags []string   `json:"tags,omitempty"`
}

// ActivityDetailResponse is returned by GET /activity/{id}.
// The analysis block is rendered by the charts and passed through untouched.
type ActivityDetailResponse struct {
	ActivityBase     *gormModels.Activity `json:"activity_base"`
	ActivityAnalysis json.RawMessage      `json:"activity_analysis,omitempty"`
	ActivityData     *string              `json:"activity_data,omitempty"`
}

// PowerCurvePoint is one entry of GET /activity/{id}/power-curve
type PowerCurvePoint map[string]float64
