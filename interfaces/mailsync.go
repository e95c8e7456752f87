package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/flags"
)

type SynchronizationManager interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	Refresh(ctx context.Context) error
	StartAccount(ctx context.Context, accountID string) error
	StopAccount(accountID string) error
	QueueFlagUpdate(ctx context.Context, accountID string, update flags.Update) error
	Status() map[string]AccountStatus
}

type AccountStatus struct {
	AccountID     string     `json:"accountId"`
	EmailAddress  string     `json:"emailAddress"`
	AutomaticSync bool       `json:"automaticSync"`
	State         string     `json:"state"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	AuthFailed    bool       `json:"authFailed"`
	PendingFlags  int        `json:"pendingFlags"`
}
