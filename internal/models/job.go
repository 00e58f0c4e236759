package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RepairJob represents a persisted repair job: a fixed snapshot of
// incomplete listing ids being brought up to completeness.
//
// ItemIDs is captured once at creation and never re-queried, so TotalItems
// stays stable even if new incomplete listings appear while the job runs.
// Jobs are kept after they finish as an audit trail.
type RepairJob struct {
	ID             surrealmodels.RecordID `json:"id"`
	Status         string                 `json:"status"`
	TotalItems     int                    `json:"total_items"`
	ProcessedItems int                    `json:"processed_items"`
	FailedItems    int                    `json:"failed_items"`
	CurrentPhase   string                 `json:"current_phase"`
	ItemIDs        []string               `json:"item_ids"`
	ErrorMessage   *string                `json:"error_message,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}
