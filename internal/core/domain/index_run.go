package domain

import "time"

type IndexRunStatus string

const (
	IndexRunQueued              IndexRunStatus = "queued"
	IndexRunRunning             IndexRunStatus = "running"
	IndexRunCompleted           IndexRunStatus = "completed"
	IndexRunCompletedWithErrors IndexRunStatus = "completed_with_errors"
	IndexRunFailed              IndexRunStatus = "failed"
)

// IndexRun is the status record of one background knowledge-indexing task.
type IndexRun struct {
	ID         string         `json:"id"`
	Status     IndexRunStatus `json:"status"`
	Tables     int            `json:"tables"`
	Passages   int            `json:"passages"`
	Chunks     int            `json:"chunks"`
	Skipped    []string       `json:"skipped,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// IndexStats is what the indexer reports back for a finished run.
type IndexStats struct {
	Tables   int
	Passages int
	Chunks   int
	Skipped  []string
}
