package dtos

// FilterRequest changes the feed tab and/or search query.
// Nil fields keep their current value.
type FilterRequest struct {
	Tab         *string `json:"tab,omitempty"`
	SearchQuery *string `json:"search_query,omitempty"`
}

// UploadRequest starts a batch upload of files on the local disk
type UploadRequest struct {
	Paths []string `json:"paths"`
}

// UpdateActivityRequest is the local API edit body
type UpdateActivityRequest struct {
	Name *string  `json:"name,omitempty"`
	Date *string  `json:"date,omitempty"`
	Tags []string `json:"tags,omitempty"`
}
