package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/utils"
)

// Column widths of the bounded header fields.
const (
	MaxMessageIDLength = 512
	MaxSubjectLength   = 1000
	MaxAddressLength   = 255
)

// Message is the local copy of one server message. (AccountID, Folder, UID)
// identifies it; saving the same triple again overwrites the row.
type Message struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID   string `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_message_uid" json:"accountId"`
	Folder      string `gorm:"column:folder;type:varchar(255);not null;uniqueIndex:idx_message_uid" json:"folder"`
	UID         uint32 `gorm:"column:uid;not null;uniqueIndex:idx_message_uid" json:"uid"`
	UIDValidity uint32 `gorm:"column:uid_validity;not null;default:0" json:"uidValidity"`
	MessageID   string `gorm:"column:message_id;type:varchar(512);index" json:"messageId"`
	InReplyTo   string `gorm:"column:in_reply_to;type:varchar(512)" json:"inReplyTo,omitempty"`

	Subject     string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	FromAddress string `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	FromName    string `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	ToAddresses string `gorm:"column:to_addresses;type:text" json:"toAddresses"`
	CcAddresses string `gorm:"column:cc_addresses;type:text" json:"ccAddresses,omitempty"`

	SentAt     *time.Time `gorm:"column:sent_at;index" json:"sentAt"`
	ReceivedAt *time.Time `gorm:"column:received_at" json:"receivedAt"`

	BodyText string `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML string `gorm:"column:body_html;type:text" json:"bodyHtml"`
	Size     int    `gorm:"column:size" json:"size"`
	Raw      []byte `gorm:"-" json:"-"`
	// RawKey locates the original bytes in the archive, if one is configured.
	RawKey string `gorm:"column:raw_key;type:varchar(1024)" json:"-"`

	// Flags is the local view; ServerFlags is what the server last reported.
	Flags       flags.Set `gorm:"column:flags;not null;default:0" json:"flags"`
	ServerFlags flags.Set `gorm:"column:server_flags;not null;default:0" json:"-"`

	Verified          bool   `gorm:"column:verified;not null;default:false" json:"verified"`
	Signer            string `gorm:"column:signer;type:varchar(255)" json:"signer,omitempty"`
	VerificationError string `gorm:"column:verification_error;type:text" json:"verificationError,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 16)
	}
	return nil
}

func (m *Message) Recipients() []string {
	return utils.StringToSlice(m.ToAddresses)
}
