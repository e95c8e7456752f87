package message

import (
	"bytes"
	"context"
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type messageFactory struct {
	syntheticDomain string
}

func NewMessageFactory(syntheticDomain string) interfaces.MessageFactory {
	return &messageFactory{syntheticDomain: syntheticDomain}
}

func (f *messageFactory) Build(ctx context.Context, raw *interfaces.RawMessage) (*models.Message, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MessageFactory.Build")
	defer span.Finish()
	tracing.TagComponentService(span)

	if raw == nil || len(bytes.TrimSpace(raw.Body)) == 0 {
		err := errors.Wrap(mserrors.ErrMessageParse, "empty message body")
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagAccount(span, raw.AccountID)
	span.LogKV("uid", raw.UID, "size", len(raw.Body))

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Body))
	if err != nil {
		err = errors.Wrapf(mserrors.ErrMessageParse, "uid %d: %v", raw.UID, err)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(env.GetHeaderKeys()) == 0 {
		err = errors.Wrapf(mserrors.ErrMessageParse, "uid %d: no headers", raw.UID)
		tracing.TraceErr(span, err)
		return nil, err
	}

	msg := &models.Message{
		AccountID:   raw.AccountID,
		Folder:      raw.Folder,
		UID:         raw.UID,
		UIDValidity: raw.UIDValidity,
		Subject:     strings.TrimSpace(env.GetHeader("Subject")),
		InReplyTo:   utils.NormalizeMessageID(env.GetHeader("In-Reply-To")),
		BodyText:    env.Text,
		BodyHTML:    env.HTML,
		Size:        len(raw.Body),
		Raw:         raw.Body,
		Flags:       raw.Flags,
		ServerFlags: raw.Flags,
	}

	msg.MessageID = utils.NormalizeMessageID(env.GetHeader("Message-Id"))
	if msg.MessageID == "" {
		msg.MessageID = utils.SyntheticMessageID(f.syntheticDomain, raw.AccountID, raw.Folder, raw.UIDValidity, raw.UID)
	}

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromName = from[0].Name
		msg.FromAddress = cleanAddress(from[0].Address)
	}
	msg.ToAddresses = utils.SliceToString(cleanAddressList(env, "To"))
	msg.CcAddresses = utils.SliceToString(cleanAddressList(env, "Cc"))

	if sent, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		sent = sent.UTC()
		msg.SentAt = &sent
	}
	if !raw.InternalDate.IsZero() {
		msg.ReceivedAt = utils.TimePtr(raw.InternalDate.UTC())
	}

	clampHeaders(msg)
	return msg, nil
}

// clampHeaders keeps header fields within their column widths so an
// oversized header cannot fail the insert.
func clampHeaders(msg *models.Message) {
	msg.MessageID = utils.Truncate(msg.MessageID, models.MaxMessageIDLength)
	msg.InReplyTo = utils.Truncate(msg.InReplyTo, models.MaxMessageIDLength)
	msg.Subject = utils.Truncate(msg.Subject, models.MaxSubjectLength)
	msg.FromAddress = utils.Truncate(msg.FromAddress, models.MaxAddressLength)
	msg.FromName = utils.Truncate(msg.FromName, models.MaxAddressLength)
}

func cleanAddress(address string) string {
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid {
		return validation.CleanEmail
	}
	return strings.ToLower(strings.TrimSpace(address))
}

func cleanAddressList(env *enmime.Envelope, header string) []string {
	list, err := env.AddressList(header)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		validation := mailvalidate.ValidateEmailSyntax(addr.Address)
		if validation.IsValid {
			out = append(out, validation.CleanEmail)
		}
	}
	return utils.UniqueEmails(out)
}
