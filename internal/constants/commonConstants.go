package constants

type (
	ActivityType string
	APIStatus    string
	CachePrefix  string
)

const (
	ActivityTypeRecorded ActivityType = "recorded"
	ActivityTypeRoute    ActivityType = "route"

	APIStatusOk    APIStatus = "success"
	APIStatusError APIStatus = "error"

	CachePrefixActivityDetail CachePrefix = "ACTIVITY_"
	CachePrefixPowerCurve     CachePrefix = "POWER_CURVE_"
)

// Valid reports whether t is one of the two tabs the feed can show
func (t ActivityType) Valid() bool {
	return t == ActivityTypeRecorded || t == ActivityTypeRoute
}

// Upload file extensions accepted by the batch uploader
var UploadExtensions = []string{".fit", ".gpx"}
