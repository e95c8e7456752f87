package events

import (
	"context"
	"fmt"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
)

type EventsService struct {
	Bus       *LifecycleBus
	Publisher *RabbitMQPublisher
	Notifier  interfaces.StatusNotifier
}

// NewEventsService connects to RabbitMQ when a URL is configured; otherwise
// status changes are only logged.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	svc := &EventsService{
		Bus: NewLifecycleBus(log),
	}

	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, account status events will only be logged")
		svc.Notifier = NewLogNotifier(log)
		return svc, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}
	svc.Publisher = publisher
	svc.Notifier = publisher
	return svc, nil
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Notifier != nil {
		if err := s.Notifier.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}

type logNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) interfaces.StatusNotifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) PublishAccountStatus(ctx context.Context, event dto.AccountStatusChanged) error {
	if event.AuthFailed {
		n.log.Errorf("[%s] authentication failed, syncing suspended: %s", event.AccountID, event.Error)
		return nil
	}
	if event.Error != "" {
		n.log.Warnf("[%s] status %s: %s", event.AccountID, event.Status, event.Error)
		return nil
	}
	n.log.Debugf("[%s] status %s", event.AccountID, event.Status)
	return nil
}

func (n *logNotifier) Close() error {
	return nil
}
