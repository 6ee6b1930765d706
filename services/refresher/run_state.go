package refresher

import (
	"time"

	"github.com/mailfleet/tokenstack/internal/enum"
)

// RunState is the ephemeral bookkeeping of one in-flight batch. It is never
// persisted; a process restart discards it.
type RunState struct {
	RunID        string
	Kind         enum.AttemptKind
	Total        int
	Processed    int
	Success      int
	Failed       int
	CurrentEmail string
	StartedAt    time.Time
}

// RunSummary is the terminal result of a completed batch.
type RunSummary struct {
	RunID        string           `json:"runId"`
	Kind         enum.AttemptKind `json:"kind"`
	Processed    int              `json:"processed"`
	SuccessCount int              `json:"successCount"`
	FailureCount int              `json:"failureCount"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// Outcome is the result of one per-account refresh step.
type Outcome struct {
	AccountID    string
	EmailAddress string
	Outcome      enum.RefreshOutcome
	ErrorDetail  string
}
