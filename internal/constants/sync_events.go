package constants

// Sync event types for the sync_runs table
const (
	SyncEventFullSync = "FULL_SYNC"
)

// Sync run outcomes
const (
	SyncStatusSucceeded = "SUCCEEDED"
	SyncStatusFailed    = "FAILED"
)
