package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// Account is a remote IMAP mailbox the service mirrors. ID is the identity
// used everywhere else, two accounts with the same ID are the same account.
type Account struct {
	ID            string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailAddress  string          `gorm:"column:email_address;type:varchar(255);index" json:"emailAddress"`
	Host          string          `gorm:"column:imap_host;type:varchar(255);not null" json:"host"`
	Port          int             `gorm:"column:imap_port;not null" json:"port"`
	Username      string          `gorm:"column:imap_username;type:varchar(255);not null" json:"username"`
	Password      string          `gorm:"column:imap_password;type:varchar(255);not null" json:"-"`
	SocketType    enum.SocketType `gorm:"column:socket_type;type:varchar(20);not null;default:ssl" json:"socketType"`
	AutomaticSync bool            `gorm:"column:automatic_sync;not null;default:false" json:"automaticSync"`
	// Status Information
	LastSynced   *time.Time      `gorm:"column:last_synced" json:"lastSynced"`
	SyncStatus   enum.SyncStatus `gorm:"column:sync_status;type:varchar(50)" json:"syncStatus"`
	ErrorMessage string          `gorm:"column:error_message;type:text" json:"errorMessage"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acc", 16)
	}
	if a.SocketType == "" {
		a.SocketType = enum.SocketSSL
	}
	return nil
}

func (a *Account) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Domain is used for synthetic message ids and log context.
func (a *Account) Domain() string {
	if d := utils.ExtractDomainFromEmail(a.EmailAddress); d != "" {
		return d
	}
	return a.Host
}
