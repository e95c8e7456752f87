package imap

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/tracing"
)

var errMessageNotFound = errors.New("message not found on server")

// Fetch downloads one message without marking it seen. A transfer in
// progress is not interrupted by ctx.
func (s *session) Fetch(ctx context.Context, folder string, uid uint32) (*interfaces.RawMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPSession.Fetch")
	defer span.Finish()
	tracing.TagAccount(span, s.accountID)
	tracing.TagFolder(span, folder)
	span.SetTag("uid", uid)

	uidValidity, err := s.ensureSelected(folder)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	s.client.Timeout = defaultFetchTimeout
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var raw *interfaces.RawMessage
	var readErr error
	for msg := range messages {
		if msg.Uid != uid || raw != nil {
			continue
		}
		raw = &interfaces.RawMessage{
			AccountID:    s.accountID,
			Folder:       folder,
			UID:          msg.Uid,
			UIDValidity:  uidValidity,
			Flags:        flags.FromIMAP(msg.Flags),
			InternalDate: msg.InternalDate,
			Size:         msg.Size,
		}
		if body := msg.GetBody(section); body != nil {
			raw.Body, readErr = io.ReadAll(body)
		}
	}
	s.client.Timeout = 0

	if err := <-done; err != nil {
		err = wrapErr(err, fmt.Sprintf("error fetching message %d", uid))
		tracing.TraceErr(span, err)
		return nil, err
	}
	if readErr != nil {
		err = wrapErr(readErr, fmt.Sprintf("error reading body of message %d", uid))
		tracing.TraceErr(span, err)
		return nil, err
	}
	if raw == nil {
		err = errors.Wrapf(errMessageNotFound, "uid %d", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.SetTag("size", len(raw.Body))
	return raw, nil
}

func (s *session) StoreFlags(ctx context.Context, folder string, uid uint32, add, remove flags.Set) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPSession.StoreFlags")
	defer span.Finish()
	tracing.TagAccount(span, s.accountID)
	tracing.TagFolder(span, folder)
	span.SetTag("uid", uid)
	span.LogKV("add", add.String(), "remove", remove.String())

	if _, err := s.ensureSelected(folder); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	s.client.Timeout = defaultCommandTimeout
	defer func() { s.client.Timeout = 0 }()

	if add != 0 {
		if err := s.client.UidStore(seqSet, imap.FormatFlagsOp(imap.AddFlags, true), toInterfaces(add.IMAP()), nil); err != nil {
			err = wrapErr(err, "failed to add flags")
			tracing.TraceErr(span, err)
			return err
		}
	}
	if remove != 0 {
		if err := s.client.UidStore(seqSet, imap.FormatFlagsOp(imap.RemoveFlags, true), toInterfaces(remove.IMAP()), nil); err != nil {
			err = wrapErr(err, "failed to remove flags")
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}

func (s *session) ensureSelected(folder string) (uint32, error) {
	if s.selected == folder {
		if mbox := s.client.Mailbox(); mbox != nil {
			return mbox.UidValidity, nil
		}
	}
	return s.selectFolder(folder)
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
