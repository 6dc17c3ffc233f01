package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
)

// ActivitySource is the remote activity service as seen by the sync engine,
// the feed, the uploader and the activity service.
type ActivitySource interface {
	// ListActivities returns at most params.Limit activities ordered by
	// (date, activity_id) descending, strictly after params.Cursor.
	ListActivities(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, error)

	// FetchKnownHashes returns the content hashes of every uploaded file
	FetchKnownHashes(ctx context.Context) ([]string, error)

	// UploadActivity submits one .fit/.gpx file and returns the created summary
	UploadActivity(ctx context.Context, filename string, content io.Reader) (*gormModels.Activity, error)

	// UpdateActivity edits name, date and tags
	UpdateActivity(ctx context.Context, activityID string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error)

	// DeleteActivity removes an activity server-side
	DeleteActivity(ctx context.Context, activityID string) error

	// GetActivity fetches the detail view of one activity
	GetActivity(ctx context.Context, activityID string) (*dtos.ActivityDetailResponse, error)

	// GetPowerCurve fetches the power curve of one activity
	GetPowerCurve(ctx context.Context, activityID string) ([]dtos.PowerCurvePoint, error)
}

// ProviderError represents a failed call to the activity service
type ProviderError struct {
	Code       string
	Message    string
	Details    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a rejected session token (HTTP 401)
func IsUnauthorized(err error) bool {
	return hasCode(err, constants.ErrCodeAuthenticationFailed)
}

// IsNotFound reports whether err is a 404 for the requested activity
func IsNotFound(err error) bool {
	return hasCode(err, constants.ErrCodeActivityNotFound)
}

func hasCode(err error, code string) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == code
	}
	return false
}

// UnauthorizedHook is called whenever the service rejects a token, with the
// token that was sent
type UnauthorizedHook func(token string, err error)
