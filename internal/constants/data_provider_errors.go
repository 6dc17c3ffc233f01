package constants

// Activity service error codes
// These constants define the failure classes a remote call can end in

// Transport and auth errors
const (
	ErrCodeNetworkError         = "NETWORK_ERROR"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeRemoteError          = "REMOTE_ERROR"
)

// Resource errors
const (
	ErrCodeActivityNotFound  = "ACTIVITY_NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnsupportedUpload = "UNSUPPORTED_UPLOAD"
)

// Data validation errors
const (
	ErrCodeInvalidDataFormat = "INVALID_DATA_FORMAT"
	ErrCodeInvalidTab        = "INVALID_TAB"
)

// Error Messages
// Human-readable messages corresponding to error codes

var DataProviderErrorMessages = map[string]string{
	ErrCodeNetworkError:         "Unable to reach the activity service. Serving locally cached activities",
	ErrCodeAuthenticationFailed: "The session token was rejected by the activity service",
	ErrCodeRateLimited:          "Rate limit exceeded. Please try again later",
	ErrCodeRemoteError:          "The activity service returned an unexpected error",

	ErrCodeActivityNotFound:  "The activity was not found",
	ErrCodeForbidden:         "You don't own this activity",
	ErrCodeUnsupportedUpload: "Unsupported file type. Please upload a .fit or .gpx file",

	ErrCodeInvalidDataFormat: "The data format is invalid",
	ErrCodeInvalidTab:        "Activity type must be 'recorded' or 'route'",
}

// GetErrorMessage returns the human-readable message for an error code
func GetErrorMessage(code string) string {
	if msg, exists := DataProviderErrorMessages[code]; exists {
		return msg
	}
	return "An unknown error occurred"
}
