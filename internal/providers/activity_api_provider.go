package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"

	"golang.org/x/time/rate"
)

// HTTPActivitySource implements ActivitySource against the activity service REST API
type HTTPActivitySource struct {
	BaseURL string
	Client  *http.Client

	// Limiter throttles outgoing calls; nil disables throttling
	Limiter *rate.Limiter
	// Metrics is optional
	Metrics *metrics.MetricsRegistry
	// OnUnauthorized is called on every 401
	OnUnauthorized UnauthorizedHook

	mu    sync.RWMutex
	token string
}

var _ ActivitySource = (*HTTPActivitySource)(nil)

// NewHTTPActivitySource creates a client for the activity service
func NewHTTPActivitySource(baseURL, token string, timeout time.Duration, rps float64, burst int) *HTTPActivitySource {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &HTTPActivitySource{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
		Limiter: limiter,
		token:   token,
	}
}

// SetToken swaps the bearer token, e.g. on a new session
func (p *HTTPActivitySource) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

// Token returns the current bearer token
func (p *HTTPActivitySource) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// ============================================================================
// Activity collection
// ============================================================================

// ListActivities fetches one page of GET /activities
func (p *HTTPActivitySource) ListActivities(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, error) {
	if params.Limit <= 0 {
		return nil, &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "limit must be greater than 0",
		}
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(params.Limit))
	if params.ActivityType != "" {
		query.Set("activity_type", params.ActivityType)
	}
	if params.SearchQuery != "" {
		query.Set("search_query", params.SearchQuery)
	}
	if !params.Cursor.IsZero() {
		query.Set("cursor_date", params.Cursor.DateParam())
		query.Set("cursor_id", params.Cursor.ActivityID)
	}

	var page []gormModels.Activity
	if err := p.doJSON(ctx, "list_activities", http.MethodGet, "/activities?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// FetchKnownHashes fetches GET /activities/hashes
func (p *HTTPActivitySource) FetchKnownHashes(ctx context.Context) ([]string, error) {
	var hashes []string
	if err := p.doJSON(ctx, "fetch_hashes", http.MethodGet, "/activities/hashes", nil, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

// ============================================================================
// Single activity
// ============================================================================

// UploadActivity posts a multipart file to /upload_activity
func (p *HTTPActivitySource) UploadActivity(ctx context.Context, filename string, content io.Reader) (*gormModels.Activity, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Failed to build multipart body",
			Err:     err,
		}
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: fmt.Sprintf("Failed to read %s", filename),
			Err:     err,
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Failed to finalise multipart body",
			Err:     err,
		}
	}

	var created gormModels.Activity
	if err := p.do(ctx, "upload_activity", http.MethodPost, "/upload_activity", &body, writer.FormDataContentType(), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateActivity sends PATCH /activity/{id}
func (p *HTTPActivitySource) UpdateActivity(ctx context.Context, activityID string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error) {
	if activityID == "" {
		return nil, &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Activity ID cannot be empty",
		}
	}

	var updated gormModels.Activity
	if err := p.doJSON(ctx, "update_activity", http.MethodPatch, "/activity/"+url.PathEscape(activityID), update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteActivity sends DELETE /activity/{id}
func (p *HTTPActivitySource) DeleteActivity(ctx context.Context, activityID string) error {
	if activityID == "" {
		return &ProviderError{
			Code:    constants.ErrCodeInvalidDataFormat,
			Message: "Activity ID cannot be empty",
		}
	}
	return p.doJSON(ctx, "delete_activity", http.MethodDelete, "/activity/"+url.PathEscape(activityID), nil, nil)
}

// GetActivity fetches GET /activity/{id}
func (p *HTTPActivitySource) GetActivity(ctx context.Context, activityID string) (*dtos.ActivityDetailResponse, error) {
	var detail dtos.ActivityDetailResponse
	if err := p.doJSON(ctx, "get_activity", http.MethodGet, "/activity/"+url.PathEscape(activityID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetPowerCurve fetches GET /activity/{id}/power-curve
func (p *HTTPActivitySource) GetPowerCurve(ctx context.Context, activityID string) ([]dtos.PowerCurvePoint, error) {
	var curve []dtos.PowerCurvePoint
	if err := p.doJSON(ctx, "get_power_curve", http.MethodGet, "/activity/"+url.PathEscape(activityID)+"/power-curve", nil, &curve); err != nil {
		return nil, err
	}
	return curve, nil
}

// ============================================================================
// HTTP Helper Methods
// ============================================================================

// doJSON performs a request with an optional JSON payload
func (p *HTTPActivitySource) doJSON(ctx context.Context, operation, method, endpoint string, payload interface{}, result interface{}) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return &ProviderError{
				Code:    constants.ErrCodeInvalidDataFormat,
				Message: "Failed to marshal request body",
				Err:     err,
			}
		}
		body = bytes.NewReader(payloadBytes)
		contentType = "application/json"
	}
	return p.do(ctx, operation, method, endpoint, body, contentType, result)
}

// do performs an authenticated request and decodes a 2xx body into result
func (p *HTTPActivitySource) do(ctx context.Context, operation, method, endpoint string, body io.Reader, contentType string, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		p.observe(operation, start, err)
	}()

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return &ProviderError{
				Code:    constants.ErrCodeNetworkError,
				Message: "Request cancelled while waiting for rate limiter",
				Err:     err,
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+endpoint, body)
	if err != nil {
		return &ProviderError{
			Code:    constants.ErrCodeNetworkError,
			Message: "Failed to create request",
			Err:     err,
		}
	}

	// Set headers
	token := p.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	// Execute request
	resp, err := p.Client.Do(req)
	if err != nil {
		return &ProviderError{
			Code:    constants.ErrCodeNetworkError,
			Message: constants.GetErrorMessage(constants.ErrCodeNetworkError),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &ProviderError{
			Code:       constants.ErrCodeNetworkError,
			Message:    "Failed to read response body",
			StatusCode: resp.StatusCode,
			Err:        readErr,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := p.buildHTTPError(resp.StatusCode, endpoint, string(bodyBytes))
		if resp.StatusCode == http.StatusUnauthorized && p.OnUnauthorized != nil {
			p.OnUnauthorized(token, httpErr)
		}
		return httpErr
	}

	if result == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		return &ProviderError{
			Code:       constants.ErrCodeInvalidDataFormat,
			Message:    "Failed to decode response",
			Details:    string(bodyBytes),
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	return nil
}

// buildHTTPError creates appropriate error based on status code
func (p *HTTPActivitySource) buildHTTPError(statusCode int, endpoint string, body string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &ProviderError{
			Code:       constants.ErrCodeAuthenticationFailed,
			Message:    fmt.Sprintf("Authentication failed for endpoint %s", endpoint),
			Details:    body,
			StatusCode: statusCode,
		}
	case http.StatusForbidden:
		return &ProviderError{
			Code:       constants.ErrCodeForbidden,
			Message:    constants.GetErrorMessage(constants.ErrCodeForbidden),
			Details:    body,
			StatusCode: statusCode,
		}
	case http.StatusNotFound:
		return &ProviderError{
			Code:       constants.ErrCodeActivityNotFound,
			Message:    fmt.Sprintf("Resource not found: %s", endpoint),
			Details:    body,
			StatusCode: statusCode,
		}
	case http.StatusTooManyRequests:
		return &ProviderError{
			Code:       constants.ErrCodeRateLimited,
			Message:    constants.GetErrorMessage(constants.ErrCodeRateLimited),
			Details:    body,
			StatusCode: statusCode,
		}
	case http.StatusBadRequest:
		return &ProviderError{
			Code:       constants.ErrCodeInvalidDataFormat,
			Message:    fmt.Sprintf("Bad request to %s", endpoint),
			Details:    body,
			StatusCode: statusCode,
		}
	default:
		return &ProviderError{
			Code:       constants.ErrCodeRemoteError,
			Message:    fmt.Sprintf("HTTP %d from %s", statusCode, endpoint),
			Details:    body,
			StatusCode: statusCode,
		}
	}
}

func (p *HTTPActivitySource) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if provErr, ok := err.(*ProviderError); ok {
			outcome = provErr.Code
		}
		logging.Debug("Activity service call failed",
			"operation", operation,
			"error", err.Error(),
		)
	}
	if p.Metrics == nil {
		return
	}
	p.Metrics.RemoteRequestsTotal.WithLabelValues(operation, outcome).Inc()
	p.Metrics.RemoteRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
