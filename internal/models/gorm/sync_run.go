package gorm

import "time"

// SyncRun records one full-sync attempt against the activity service
type SyncRun struct {
	ID              uint       `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID       string     `gorm:"column:session_id;type:varchar(36);index"`
	Event           string     `gorm:"column:event;type:varchar(50);not null"`
	Status          string     `gorm:"column:status;type:varchar(16);not null"`
	PagesFetched    int        `gorm:"column:pages_fetched"`
	RecordsUpserted int        `gorm:"column:records_upserted"`
	Error           string     `gorm:"column:error;type:text"`
	StartedAt       time.Time  `gorm:"column:started_at"`
	FinishedAt      *time.Time `gorm:"column:finished_at"`
}

// TableName specifies the table name for GORM
func (SyncRun) TableName() string {
	return "sync_runs"
}
