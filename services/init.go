package services

import (
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/crypto"
	"github.com/customeros/mailsync/services/events"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/mailsync"
	"github.com/customeros/mailsync/services/message"
	"github.com/customeros/mailsync/services/search"
	"github.com/customeros/mailsync/services/storage"
)

type Services struct {
	EventsService  *events.EventsService
	Session        *database.Session
	Repositories   *repository.Repositories
	MessageFactory interfaces.MessageFactory
	SearchIndex    *search.Index
	Archive        interfaces.RawArchive
	CryptoAgent    interfaces.CryptoAgent
	Dialer         *imap.Dialer
	Pool           *mailsync.WorkerPool
	Manager        *mailsync.Manager
}

// InitServices builds the service graph around a detached storage session.
// The manager is subscribed to the session's lifecycle but nothing connects
// or syncs until the caller attaches storage and starts it.
func InitServices(cfg *config.Config, log logger.Logger) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, errors.Wrap(err, "events service")
	}

	session := database.NewSession(eventsService.Bus, log)
	repos := repository.InitRepositories(session)

	cryptoAgent, err := crypto.NewAgent(cfg.CryptoConfig, log)
	if err != nil {
		return nil, errors.Wrap(err, "crypto agent")
	}

	archive, err := storage.NewArchiveFromConfig(cfg.ArchiveConfig, log)
	if err != nil {
		return nil, errors.Wrap(err, "raw message archive")
	}

	s := &Services{
		EventsService:  eventsService,
		Session:        session,
		Repositories:   repos,
		MessageFactory: message.NewMessageFactory(cfg.SyncConfig.SyntheticMessageDomain),
		SearchIndex:    search.NewIndex(session, cfg.SearchConfig, log),
		CryptoAgent:    cryptoAgent,
		Dialer:         imap.NewDialer(cfg.SyncConfig, log),
		Pool:           mailsync.NewWorkerPool(cfg.SyncConfig.WorkerPoolSize),
	}
	if archive != nil {
		s.Archive = archive
	}

	s.Manager = mailsync.NewManager(&mailsync.Deps{
		Repositories: repos,
		Dialer:       s.Dialer,
		Factory:      s.MessageFactory,
		Index:        s.SearchIndex,
		Archive:      s.Archive,
		Crypto:       s.CryptoAgent,
		Notifier:     eventsService.Notifier,
		Pool:         s.Pool,
		Config:       cfg.SyncConfig,
		Indexing:     cfg.SearchConfig.Enabled,
		Log:          log,
	}, eventsService.Bus)
	s.Manager.Activate()

	return s, nil
}

// Close releases everything InitServices opened. The manager must already be
// stopped.
func (s *Services) Close() error {
	var errs []error
	s.Manager.Deactivate()
	if err := s.SearchIndex.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "search index"))
	}
	if err := s.EventsService.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "events"))
	}
	if err := s.Session.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "storage session"))
	}
	if len(errs) > 0 {
		return errors.Errorf("errors closing services: %v", errs)
	}
	return nil
}
