package models

import "time"

type SearchDocument struct {
	AccountID   string    `gorm:"column:account_id;type:varchar(50);primaryKey" json:"accountId"`
	Folder      string    `gorm:"column:folder;type:varchar(255);primaryKey" json:"folder"`
	UID         uint32    `gorm:"column:uid;primaryKey" json:"uid"`
	MessageID   string    `gorm:"column:message_id;type:varchar(512)" json:"messageId"`
	Subject     string    `gorm:"column:subject;type:varchar(1000);index" json:"subject"`
	FromAddress string    `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	Body        string    `gorm:"column:body;type:text" json:"-"`
	IndexedAt   time.Time `gorm:"column:indexed_at" json:"indexedAt"`
}

func (SearchDocument) TableName() string {
	return "search_documents"
}
