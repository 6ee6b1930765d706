package dto

import "time"

type UpdateScheduleRequest struct {
	Enabled        *bool  `json:"enabled"`
	Mode           string `json:"mode"`
	IntervalDays   int    `json:"intervalDays"`
	CronExpression string `json:"cronExpression"`
}

type PreviewScheduleRequest struct {
	Expression string `json:"expression" binding:"required"`
	Count      int    `json:"count"`
}

type PreviewScheduleResponse struct {
	Valid    bool        `json:"valid"`
	Error    string      `json:"error,omitempty"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
}
