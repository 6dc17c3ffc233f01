package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/models/dtos/responses"
	"fit-analyse/dashboard/internal/providers"
	"fit-analyse/dashboard/internal/session"
	"fit-analyse/dashboard/internal/upload"
)

func respondWithSuccess[T any](w http.ResponseWriter, statusCode int, data *T) {
	resp := responses.APIResponse[T]{
		Status:    string(constants.APIStatusOk),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	resp := responses.APIResponse[any]{
		Status:    string(constants.APIStatusError),
		Timestamp: time.Now().UTC(),
		Error:     message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(resp)
}

// respondWithServiceError maps domain errors to HTTP responses
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feed.ErrInvalidTab):
		respondWithError(w, http.StatusBadRequest, constants.GetErrorMessage(constants.ErrCodeInvalidTab))
		return
	case errors.Is(err, upload.ErrBatchRunning):
		respondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrNoToken):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.Debug("Request abandoned before completion", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Request cancelled")
		return
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		respondWithError(w, mapErrorCodeToHTTPStatus(provErr.Code), provErr.Message)
		return
	}

	logging.Error("Unhandled error", "error", err)
	respondWithError(w, http.StatusInternalServerError, "An unexpected error occurred")
}

// mapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func mapErrorCodeToHTTPStatus(errorCode string) int {
	switch errorCode {
	// 400 Bad Request - Client errors (user action required)
	case constants.ErrCodeInvalidDataFormat, constants.ErrCodeInvalidTab, constants.ErrCodeUnsupportedUpload:
		return http.StatusBadRequest

	// 401/403 - Session rejected by the activity service
	case constants.ErrCodeAuthenticationFailed:
		return http.StatusUnauthorized
	case constants.ErrCodeForbidden:
		return http.StatusForbidden

	// 404 Not Found - Resource doesn't exist
	case constants.ErrCodeActivityNotFound:
		return http.StatusNotFound

	// 429 Too Many Requests
	case constants.ErrCodeRateLimited:
		return http.StatusTooManyRequests

	// 502 Bad Gateway - Activity service unreachable or failing
	case constants.ErrCodeNetworkError, constants.ErrCodeRemoteError:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
