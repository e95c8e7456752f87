package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/internal/tracing"
)

const (
	idleLogoutTimeout = 25 * time.Minute
	noopPollInterval  = 2 * time.Minute
)

// Wait idles on folder until the server pushes an update, the timeout
// expires or ctx is done. Servers without IDLE are polled with NOOP.
func (s *session) Wait(ctx context.Context, folder string, timeout time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSession.Wait")
	defer span.Finish()
	tracing.TagAccount(span, s.accountID)
	tracing.TagFolder(span, folder)

	if timeout <= 0 {
		timeout = noopPollInterval
	}
	if _, err := s.ensureSelected(folder); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	supported, err := s.client.Support("IDLE")
	if err != nil {
		err = wrapErr(err, "error checking IDLE support")
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("idle_supported", supported)

	updates := make(chan client.Update, 100)
	s.client.Updates = updates
	defer func() { s.client.Updates = nil }()

	if !supported {
		return s.poll(ctx, updates, timeout)
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.client.Idle(stop, &client.IdleOptions{LogoutTimeout: idleLogoutTimeout})
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result error
	select {
	case <-updates:
		span.SetTag("reason", "update")
	case <-timer.C:
		span.SetTag("reason", "timeout")
	case <-ctx.Done():
		result = ctx.Err()
	case err := <-done:
		// IDLE ended on its own, usually because the connection dropped
		if err = wrapErr(err, "IDLE failed"); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		return nil
	}

	close(stop)
	if err := wrapErr(<-done, "IDLE failed"); err != nil && result == nil {
		tracing.TraceErr(span, err)
		return err
	}
	return result
}

func (s *session) poll(ctx context.Context, updates <-chan client.Update, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(min(noopPollInterval, timeout))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-updates:
			return nil
		case <-ticker.C:
			s.client.Timeout = defaultCommandTimeout
			err := s.client.Noop()
			s.client.Timeout = 0
			if err != nil {
				return wrapErr(err, "NOOP failed")
			}
		}
	}
}
