package database

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
)

type countingPublisher struct {
	published atomic.Int32
}

func (p *countingPublisher) PublishSessionAvailable(ctx context.Context) {
	p.published.Add(1)
}

func TestSession_NotReadyUntilAttached(t *testing.T) {
	publisher := &countingPublisher{}
	session := NewSession(publisher, logger.NewNopLogger())

	_, err := session.DB()
	assert.ErrorIs(t, err, mserrors.ErrStorageNotReady)
	assert.False(t, session.IsOpen())

	db, err := NewConnection(&DatabaseConfig{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "session.db"),
		LogLevel:   "SILENT",
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	session.Attach(context.Background(), db)

	got, err := session.DB()
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Equal(t, int32(1), publisher.published.Load())

	require.NoError(t, session.Close())
	_, err = session.DB()
	assert.ErrorIs(t, err, mserrors.ErrStorageNotReady)
	assert.NoError(t, session.Close())
}

func TestNewConnection_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewConnection(nil)
	assert.Error(t, err)

	_, err = NewConnection(&DatabaseConfig{Driver: DriverPostgres, Host: "localhost"})
	assert.Error(t, err)

	_, err = NewConnection(&DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)

	_, err = NewConnection(&DatabaseConfig{Driver: DriverSQLite})
	assert.Error(t, err)
}
