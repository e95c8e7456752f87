package events

import (
	"context"
	"sync"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

// LifecycleBus delivers in-process storage lifecycle events to registered
// listeners, synchronously and in registration order.
type LifecycleBus struct {
	mu        sync.Mutex
	listeners []interfaces.SessionListener
	log       logger.Logger
}

func NewLifecycleBus(log logger.Logger) *LifecycleBus {
	return &LifecycleBus{log: log}
}

func (b *LifecycleBus) Subscribe(listener interfaces.SessionListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners {
		if l == listener {
			return
		}
	}
	b.listeners = append(b.listeners, listener)
}

func (b *LifecycleBus) Unsubscribe(listener interfaces.SessionListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l == listener {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *LifecycleBus) PublishSessionAvailable(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "LifecycleBus.PublishSessionAvailable")
	defer span.Finish()
	tracing.TagComponentService(span)

	b.mu.Lock()
	listeners := make([]interfaces.SessionListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	span.LogKV("listeners", len(listeners))
	for _, l := range listeners {
		b.deliver(ctx, l)
	}
}

func (b *LifecycleBus) deliver(ctx context.Context, l interfaces.SessionListener) {
	defer tracing.RecoverAndLogToJaeger(b.log)
	l.OnSessionAvailable(ctx)
}

func (b *LifecycleBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
