package models

import (
	"time"

	"github.com/mailfleet/tokenstack/internal/enum"
)

// SchedulePolicyID is the primary key of the single persisted policy row.
const SchedulePolicyID = "default"

// SchedulePolicy is the process-wide scheduling configuration, a singleton.
// The scheduler re-reads it on every evaluation tick; only explicit
// configuration updates write it (plus run bookkeeping fields).
type SchedulePolicy struct {
	ID             string            `gorm:"column:id;type:varchar(20);primaryKey" json:"-"`
	Enabled        bool              `gorm:"column:enabled;not null;default:false" json:"enabled"`
	Mode           enum.ScheduleMode `gorm:"column:mode;type:varchar(20);not null;default:interval_days" json:"mode"`
	IntervalDays   int               `gorm:"column:interval_days;not null;default:7" json:"intervalDays"`
	CronExpression string            `gorm:"column:cron_expression;type:varchar(100)" json:"cronExpression"`
	EnabledAt      *time.Time        `gorm:"column:enabled_at;type:timestamp" json:"enabledAt"`
	LastRunAt      *time.Time        `gorm:"column:last_run_at;type:timestamp" json:"lastRunAt"`
	NextRunAt      *time.Time        `gorm:"column:next_run_at;type:timestamp" json:"nextRunAt"`
	CreatedAt      time.Time         `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"-"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"-"`
}

// TableName sets the table name
func (SchedulePolicy) TableName() string {
	return "schedule_policies"
}
