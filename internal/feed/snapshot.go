package feed

import (
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
)

// View states
const (
	StateLoading = "loading"
	StateEmpty   = "empty"
	StateEnd     = "end"
	StateReady   = "ready"
)

// Snapshot is a copy of the feed state at one point in time
type Snapshot struct {
	Filter     Filter                `json:"filter"`
	Activities []gormModels.Activity `json:"activities"`
	Cursor     dtos.Cursor           `json:"cursor"`
	HasMore    bool                  `json:"has_more"`
	IsLoading  bool                  `json:"is_loading"`
	Source     string                `json:"source,omitempty"`
	Generation uint64                `json:"generation"`
}

// State tells "nothing matches" apart from "scrolled to the end"
func (s Snapshot) State() string {
	switch {
	case s.IsLoading:
		return StateLoading
	case !s.HasMore && len(s.Activities) == 0:
		return StateEmpty
	case !s.HasMore:
		return StateEnd
	default:
		return StateReady
	}
}
