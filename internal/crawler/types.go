package crawler

import (
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// PageRequest identifies one leaderboard page.
type PageRequest struct {
	Account  hiscore.AccountType
	Category hiscore.Category
	Page     int
}

// UserRequest identifies one player lookup.
type UserRequest struct {
	Account  hiscore.AccountType
	Username string
}

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

// Run status values reported by progress tracking and completion events.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// RunSummary is published once a pipeline run ends.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Command    string    `json:"command"`
	Account    string    `json:"account_type"`
	Category   string    `json:"category"`
	Status     RunStatus `json:"status"`
	Items      int       `json:"items"`
	Output     string    `json:"output,omitempty"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
	// OutputSHA256 is the hex digest of the output file.
	OutputSHA256 string    `json:"output_sha256,omitempty"`
	ErrorText    string    `json:"error_text,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
