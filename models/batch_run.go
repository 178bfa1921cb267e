package models

import (
	"time"

	"gorm.io/datatypes"
)

// BatchRunStatus mirrors the states an admin can poll for a dispatched selection batch.
type BatchRunStatus string

const (
	BatchPending BatchRunStatus = "pending"
	BatchStarted BatchRunStatus = "started"
	BatchSuccess BatchRunStatus = "success"
	BatchFailure BatchRunStatus = "failure"
)

// Ready reports whether the run reached a terminal state.
func (s BatchRunStatus) Ready() bool {
	return s == BatchSuccess || s == BatchFailure
}

// BatchReport is the aggregated result written once every chunk has reported.
type BatchReport struct {
	Success         bool      `json:"success"`
	TotalProcessed  int       `json:"total_processed"`
	WinnersSelected int       `json:"winners_selected"`
	Errors          int       `json:"errors"`
	CompletedAt     time.Time `json:"completed_at"`
	ChunksProcessed int       `json:"chunks_processed"`
	SummaryMessages []string  `json:"summary_messages"`
	HasMoreMessages bool      `json:"has_more_messages"`
}

// BatchRun is the persisted handle of one dispatched winner-selection batch.
type BatchRun struct {
	ID             string                          `json:"task_id" gorm:"primaryKey"`
	Status         BatchRunStatus                  `json:"status" gorm:"size:16;not null;index"`
	TotalGiveaways int                             `json:"total_giveaways"`
	ChunkSize      int                             `json:"chunk_size"`
	Chunks         int                             `json:"chunks"`
	StartedAt      *time.Time                      `json:"started_at,omitempty"`
	FinishedAt     *time.Time                      `json:"finished_at,omitempty"`
	Report         datatypes.JSONType[BatchReport] `json:"report"`
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}
