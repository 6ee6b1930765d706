package dto

import "time"

// ProgressEvent is one record on the live per-run feed. The terminal record
// carries Done=true plus the run summary fields.
type ProgressEvent struct {
	RunID        string     `json:"runId"`
	Processed    int        `json:"processed"`
	Total        int        `json:"total"`
	CurrentEmail string     `json:"currentEmail,omitempty"`
	Status       string     `json:"status,omitempty"`
	Error        string     `json:"error,omitempty"`
	Done         bool       `json:"done,omitempty"`
	SuccessCount int        `json:"successCount,omitempty"`
	FailureCount int        `json:"failureCount,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

type StartRunResponse struct {
	RunID string `json:"runId"`
	Total int    `json:"total"`
}

type RefreshStatsResponse struct {
	TotalActive     int64      `json:"totalActive"`
	CurrentSuccess  int64      `json:"currentSuccess"`
	CurrentFailed   int64      `json:"currentFailed"`
	LastBatchRunAt  *time.Time `json:"lastBatchRunAt,omitempty"`
	RunInProgress   bool       `json:"runInProgress"`
	CurrentRunID    string     `json:"currentRunId,omitempty"`
	CurrentRunTotal int        `json:"currentRunTotal,omitempty"`
}

type RefreshOutcomeResponse struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
}
