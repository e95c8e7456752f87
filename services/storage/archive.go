package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/storage/aws_client"
)

const (
	ProviderS3 = "s3"
	ProviderR2 = "r2"

	contentTypeRFC822 = "message/rfc822"
)

var _ interfaces.RawArchive = (*Archive)(nil)

// Archive stores raw messages in an S3 compatible bucket under
// <prefix>/<account>/<folder>/<uidvalidity>/<uid>.eml.
type Archive struct {
	client aws_client.S3Client
	bucket string
	prefix string
	log    logger.Logger
}

func NewArchive(client aws_client.S3Client, bucket, prefix string, log logger.Logger) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

// NewArchiveFromConfig returns nil, nil when no bucket is configured.
func NewArchiveFromConfig(cfg *config.ArchiveConfig, log logger.Logger) (*Archive, error) {
	if cfg == nil || cfg.Bucket == "" {
		log.Info("Raw message archive disabled")
		return nil, nil
	}

	clientConfig := aws_client.S3Config(cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	switch cfg.Provider {
	case ProviderR2:
		if cfg.R2AccountID == "" {
			return nil, errors.New("r2 archive needs an account id")
		}
		clientConfig = aws_client.R2Config(cfg.R2AccountID, cfg.AccessKeyID, cfg.AccessKeySecret)
	case ProviderS3, "":
	default:
		return nil, errors.Errorf("unknown archive provider %q", cfg.Provider)
	}

	client, err := aws_client.NewS3Client(clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}
	log.Infof("Archiving raw messages to %s bucket %s", cfg.Provider, cfg.Bucket)
	return NewArchive(client, cfg.Bucket, cfg.Prefix, log), nil
}

func (a *Archive) folderPrefix(accountID, folder string) string {
	p := accountID + "/" + url.PathEscape(folder) + "/"
	if a.prefix != "" {
		p = a.prefix + "/" + p
	}
	return p
}

// Key is deterministic, so storing a message twice overwrites one object.
func (a *Archive) Key(raw *interfaces.RawMessage) string {
	return fmt.Sprintf("%s%d/%d.eml", a.folderPrefix(raw.AccountID, raw.Folder), raw.UIDValidity, raw.UID)
}

func (a *Archive) Store(ctx context.Context, raw *interfaces.RawMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Archive.Store")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, raw.AccountID)
	tracing.TagFolder(span, raw.Folder)

	if len(raw.Body) == 0 {
		return "", errors.Errorf("message %d has no body", raw.UID)
	}
	key := a.Key(raw)
	if err := a.client.Upload(ctx, a.bucket, key, raw.Body, contentTypeRFC822); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrapf(err, "failed to archive message %d", raw.UID)
	}
	return key, nil
}

func (a *Archive) Load(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Archive.Load")
	defer span.Finish()
	tracing.TagComponentService(span)

	data, err := a.client.Download(ctx, a.bucket, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to load %s", key)
	}
	return data, nil
}

// DeleteFolder removes every archived message of the folder, across all
// UIDVALIDITY generations.
func (a *Archive) DeleteFolder(ctx context.Context, accountID, folder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Archive.DeleteFolder")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	keys, err := a.client.ListKeys(ctx, a.bucket, a.folderPrefix(accountID, folder))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to list archived messages")
	}
	for _, key := range keys {
		if err := a.client.Delete(ctx, a.bucket, key); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(err, "failed to delete %s", key)
		}
	}
	span.LogKV("deleted", len(keys))
	return nil
}
