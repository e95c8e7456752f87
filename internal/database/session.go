package database

import (
	"context"
	"sync"

	"gorm.io/gorm"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
)

type sessionPublisher interface {
	PublishSessionAvailable(ctx context.Context)
}

// Session holds the storage handle shared by all repositories. Until Attach
// is called every DB() call returns ErrStorageNotReady.
type Session struct {
	mu        sync.RWMutex
	db        *gorm.DB
	publisher sessionPublisher
	log       logger.Logger
}

func NewSession(publisher sessionPublisher, log logger.Logger) *Session {
	return &Session{publisher: publisher, log: log}
}

// NewAttachedSession is a ready session without lifecycle notifications.
func NewAttachedSession(db *gorm.DB) *Session {
	return &Session{db: db}
}

func (s *Session) DB() (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, mserrors.ErrStorageNotReady
	}
	return s.db, nil
}

func (s *Session) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Attach makes db the current storage and announces it once. Attaching while
// a handle is already present replaces it and announces again.
func (s *Session) Attach(ctx context.Context, db *gorm.DB) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("Storage session available")
	}
	if s.publisher != nil {
		s.publisher.PublishSessionAvailable(ctx)
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
