package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks the lifecycle of one synchronization run.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusCancelled  SyncStatus = "cancelled"
)

// statusRank orders statuses so a log can never move backwards.
var statusRank = map[SyncStatus]int{
	SyncStatusPending:    0,
	SyncStatusInProgress: 1,
	SyncStatusCompleted:  2,
	SyncStatusFailed:     2,
	SyncStatusCancelled:  2,
}

// Terminal reports whether the status is an end state.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed || s == SyncStatusCancelled
}

// CanTransitionTo enforces the monotonic pending → in_progress → terminal
// lifecycle. Terminal states accept no further transitions.
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	if s.Terminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// SyncType records what initiated a sync.
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
	SyncTypeInitial   SyncType = "initial"
)

// SyncLog is the persisted audit record of one ingestion run.
type SyncLog struct {
	ID               uuid.UUID  `json:"id"`
	DataSourceID     uuid.UUID  `json:"data_source_id"`
	SyncType         SyncType   `json:"sync_type"`
	Status           SyncStatus `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsCreated   int        `json:"records_created"`
	RecordsUpdated   int        `json:"records_updated"`
	RecordsSkipped   int        `json:"records_skipped"`
	RecordsFailed    int        `json:"records_failed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ErrorDetails     string     `json:"error_details,omitempty"`
}

// NewSyncLog creates an in-progress log for a run starting now.
func NewSyncLog(dataSourceID uuid.UUID, syncType SyncType) SyncLog {
	return SyncLog{
		ID:           uuid.New(),
		DataSourceID: dataSourceID,
		SyncType:     syncType,
		Status:       SyncStatusInProgress,
		StartedAt:    time.Now().UTC(),
	}
}

// CountersConsistent checks the processed = created+updated+skipped+failed
// invariant.
func (l SyncLog) CountersConsistent() bool {
	return l.RecordsProcessed == l.RecordsCreated+l.RecordsUpdated+l.RecordsSkipped+l.RecordsFailed
}
