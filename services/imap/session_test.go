package imap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

// startServer runs an in-memory IMAP server holding one INBOX message for
// username/password.
func startServer(t *testing.T) *models.Account {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(memory.New())
	srv.AllowInsecureAuth = true
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() { _ = srv.Close() })

	addr := listener.Addr().(*net.TCPAddr)
	return &models.Account{
		ID:         "acc_test",
		Host:       "127.0.0.1",
		Port:       addr.Port,
		Username:   "username",
		Password:   "password",
		SocketType: enum.SocketPlain,
	}
}

func dial(t *testing.T, account *models.Account) interfaces.Session {
	t.Helper()
	d := NewDialer(&config.SyncConfig{ConnectTimeout: 5 * time.Second}, logger.NewNopLogger())
	s, err := d.Dial(context.Background(), account)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_ListAndFetch(t *testing.T) {
	ctx := context.Background()
	s := dial(t, startServer(t))

	folders, err := s.ListFolders(ctx)
	require.NoError(t, err)
	assert.Contains(t, folders, "INBOX")

	listing, err := s.ListMessages(ctx, "INBOX", 0)
	require.NoError(t, err)
	require.Len(t, listing.NewUIDs, 1)
	assert.NotZero(t, listing.UIDValidity)
	uid := listing.NewUIDs[0]

	raw, err := s.Fetch(ctx, "INBOX", uid)
	require.NoError(t, err)
	assert.Equal(t, uid, raw.UID)
	assert.Equal(t, "acc_test", raw.AccountID)
	assert.NotEmpty(t, raw.Body)

	// nothing above the newest UID even though n:* matches it
	listing, err = s.ListMessages(ctx, "INBOX", uid)
	require.NoError(t, err)
	assert.Empty(t, listing.NewUIDs)
	assert.Contains(t, listing.Flags, uid)
}

func TestSession_StoreFlags(t *testing.T) {
	ctx := context.Background()
	s := dial(t, startServer(t))

	listing, err := s.ListMessages(ctx, "INBOX", 0)
	require.NoError(t, err)
	require.Len(t, listing.NewUIDs, 1)
	uid := listing.NewUIDs[0]

	require.NoError(t, s.StoreFlags(ctx, "INBOX", uid, flags.Flagged, flags.Seen))

	listing, err = s.ListMessages(ctx, "INBOX", uid)
	require.NoError(t, err)
	assert.True(t, listing.Flags[uid].Has(flags.Flagged))
	assert.False(t, listing.Flags[uid].Has(flags.Seen))
}

func TestSession_WaitReturnsOnTimeout(t *testing.T) {
	s := dial(t, startServer(t))

	start := time.Now()
	require.NoError(t, s.Wait(context.Background(), "INBOX", 100*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSession_WaitHonoursContext(t *testing.T) {
	s := dial(t, startServer(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Wait(ctx, "INBOX", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialer_BadPassword(t *testing.T) {
	account := startServer(t)
	account.Password = "wrong"

	d := NewDialer(&config.SyncConfig{ConnectTimeout: 5 * time.Second}, logger.NewNopLogger())
	_, err := d.Dial(context.Background(), account)
	assert.ErrorIs(t, err, mserrors.ErrAuthentication)
	assert.True(t, mserrors.IsFatalSessionError(err))
}

func TestDialer_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	d := NewDialer(&config.SyncConfig{ConnectTimeout: 2 * time.Second}, logger.NewNopLogger())
	_, err = d.Dial(context.Background(), &models.Account{ID: "acc_x", Host: "127.0.0.1", Port: port, SocketType: enum.SocketPlain})
	require.Error(t, err)
	assert.False(t, mserrors.IsFatalSessionError(err))
	assert.True(t, errors.Is(err, mserrors.ErrConnection) || errors.Is(err, mserrors.ErrConnectionTimeout))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	d := NewDialer(&config.SyncConfig{ConnectTimeout: 5 * time.Second}, logger.NewNopLogger())
	s, err := d.Dial(context.Background(), startServer(t))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ListFolders(context.Background())
	assert.ErrorIs(t, err, mserrors.ErrConnection)
}

func TestWrapErr(t *testing.T) {
	assert.Nil(t, wrapErr(nil, "x"))
	assert.ErrorIs(t, wrapErr(errors.New("read tcp: i/o timeout"), "fetch"), mserrors.ErrConnection)
	assert.NotErrorIs(t, wrapErr(errors.New("BAD command"), "fetch"), mserrors.ErrConnection)
}
