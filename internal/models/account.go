package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/utils"
)

// Account is one externally issued mail credential. RefreshToken, ClientID
// and Password columns hold ciphertext only; the repository is the
// encryption boundary.
type Account struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	Password     string `gorm:"column:password;type:text" json:"-"`
	ClientID     string `gorm:"column:client_id;type:text;not null" json:"-"`
	RefreshToken string `gorm:"column:refresh_token;type:text;not null" json:"-"`
	GroupID      string `gorm:"column:group_id;type:varchar(50);index" json:"groupId"`
	Remark       string `gorm:"column:remark;type:text" json:"remark"`
	Active       bool   `gorm:"column:active;not null;default:true" json:"active"`
	// Status Information
	RefreshStatus enum.RefreshStatus `gorm:"column:refresh_status;type:varchar(20);index;not null;default:unknown" json:"refreshStatus"`
	LastRefreshAt *time.Time         `gorm:"column:last_refresh_at;type:timestamp" json:"lastRefreshAt"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName sets the table name
func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	if a.RefreshStatus == "" {
		a.RefreshStatus = enum.RefreshStatusUnknown
	}
	return nil
}
