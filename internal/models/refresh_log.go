package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/utils"
)

// RefreshLog is one immutable record of a single refresh attempt. The email
// address is denormalized so history survives account removal.
type RefreshLog struct {
	ID           string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID    string              `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	EmailAddress string              `gorm:"column:email_address;type:varchar(255);not null" json:"emailAddress"`
	AttemptKind  enum.AttemptKind    `gorm:"column:attempt_kind;type:varchar(20);not null" json:"attemptKind"`
	Outcome      enum.RefreshOutcome `gorm:"column:outcome;type:varchar(20);index;not null" json:"outcome"`
	ErrorDetail  string              `gorm:"column:error_detail;type:text" json:"errorDetail,omitempty"`
	CreatedAt    time.Time           `gorm:"column:created_at;type:timestamp;index;default:current_timestamp" json:"createdAt"`
}

// TableName sets the table name
func (RefreshLog) TableName() string {
	return "refresh_logs"
}

func (l *RefreshLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = utils.GenerateNanoIDWithPrefix("rlog", 16)
	}
	return nil
}
