package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	defaultCommandTimeout = 30 * time.Second
	defaultFetchTimeout   = 60 * time.Second
	logoutTimeout         = 5 * time.Second
)

type Dialer struct {
	cfg *config.SyncConfig
	log logger.Logger
}

func NewDialer(cfg *config.SyncConfig, log logger.Logger) *Dialer {
	return &Dialer{cfg: cfg, log: log}
}

// contextDialer satisfies client.Dialer and remembers the raw connection so
// a session can be torn down even while a command is blocked on it.
type contextDialer struct {
	ctx    context.Context
	dialer *net.Dialer
	conn   net.Conn
}

func (d *contextDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

// Dial connects and logs in to the account's server.
func (d *Dialer) Dial(ctx context.Context, account *models.Account) (interfaces.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPDialer.Dial")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("server", account.Host)
	span.SetTag("port", account.Port)
	span.SetTag("socket_type", string(account.SocketType))

	timeout := d.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	serverAddr := account.Address()
	cd := &contextDialer{
		ctx:    connectCtx,
		dialer: &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second},
	}
	tlsConfig := &tls.Config{ServerName: account.Host}

	var c *client.Client
	var err error
	switch account.SocketType {
	case enum.SocketPlain:
		c, err = client.DialWithDialer(cd, serverAddr)
	case enum.SocketStartTLS:
		c, err = client.DialWithDialer(cd, serverAddr)
		if err == nil {
			c.Timeout = timeout
			if tlsErr := c.StartTLS(tlsConfig); tlsErr != nil {
				_ = cd.conn.Close()
				c, err = nil, tlsErr
			}
		}
	default:
		c, err = client.DialWithDialerTLS(cd, serverAddr, tlsConfig)
	}
	if err != nil {
		if connectCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(mserrors.ErrConnectionTimeout, "%s: %v", serverAddr, err)
		} else {
			err = errors.Wrapf(mserrors.ErrConnection, "failed to connect to %s: %v", serverAddr, err)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	c.Timeout = timeout
	if err := c.Login(account.Username, account.Password); err != nil {
		_ = cd.conn.Close()
		if isConnectionError(err) {
			err = errors.Wrapf(mserrors.ErrConnection, "login to %s interrupted: %v", serverAddr, err)
		} else {
			err = errors.Wrapf(mserrors.ErrAuthentication, "failed to login as %s: %v", account.Username, err)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	c.Timeout = 0

	d.log.Infof("[%s] Connected and logged in to %s", account.ID, serverAddr)
	return &session{
		accountID: account.ID,
		client:    c,
		conn:      cd.conn,
		log:       d.log,
	}, nil
}

// session is owned by a single synchronizer; only Close may be called from
// another goroutine.
type session struct {
	accountID string
	client    *client.Client
	conn      net.Conn
	log       logger.Logger

	selected  string
	closeOnce sync.Once
	closeErr  error
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- s.client.Logout()
		}()

		select {
		case err := <-done:
			if err != nil && !isConnectionError(err) {
				s.closeErr = errors.Wrap(err, "logout failed")
			}
		case <-time.After(logoutTimeout):
			s.log.Warnf("[%s] Logout timed out, closing connection", s.accountID)
		}
		// closing the socket unblocks any command still waiting on it
		_ = s.conn.Close()
	})
	return s.closeErr
}

func (s *session) selectFolder(folder string) (uint32, error) {
	s.client.Timeout = defaultCommandTimeout
	defer func() { s.client.Timeout = 0 }()

	mbox, err := s.client.Select(folder, false)
	if err != nil {
		s.selected = ""
		return 0, wrapErr(err, fmt.Sprintf("failed to select %s", folder))
	}
	s.selected = folder
	return mbox.UidValidity, nil
}
