package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
)

type SessionListener interface {
	OnSessionAvailable(ctx context.Context)
}

// LifecycleBus carries storage lifecycle notifications inside the process.
// Subscribing the same listener twice has no effect.
type LifecycleBus interface {
	Subscribe(listener SessionListener)
	Unsubscribe(listener SessionListener)
	PublishSessionAvailable(ctx context.Context)
}

// StatusNotifier publishes account status changes to the outside world.
type StatusNotifier interface {
	PublishAccountStatus(ctx context.Context, event dto.AccountStatusChanged) error
	Close() error
}
