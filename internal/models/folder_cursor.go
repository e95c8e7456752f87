package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/utils"
)

// FolderCursor is the per-folder watermark. LastUID only moves forward
// within one UIDValidity epoch. ListedAt is when the server last reported
// the folder's flags; any later server change happened after it.
type FolderCursor struct {
	ID          string    `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID   string    `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_folder_cursor"`
	FolderName  string    `gorm:"column:folder_name;type:varchar(255);not null;uniqueIndex:idx_folder_cursor"`
	UIDValidity uint32    `gorm:"column:uid_validity;not null;default:0"`
	LastUID     uint32    `gorm:"column:last_uid;not null;default:0"`
	ListedAt    time.Time `gorm:"column:listed_at"`
	LastSync    time.Time `gorm:"column:last_sync"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FolderCursor) TableName() string {
	return "folder_cursors"
}

func (c *FolderCursor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cur", 16)
	}
	return nil
}
