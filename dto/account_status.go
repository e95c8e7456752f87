package dto

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

// AccountStatusChanged is published whenever a synchronizer changes state.
// AuthFailed marks failures that need user action before syncing resumes.
type AccountStatusChanged struct {
	AccountID    string          `json:"accountId"`
	EmailAddress string          `json:"emailAddress"`
	Status       enum.SyncStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	AuthFailed   bool            `json:"authFailed"`
	At           time.Time       `json:"at"`
}
