package aws_client

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/internal/tracing"
)

type S3Client interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	Delete(ctx context.Context, bucket, key string) error
}

type s3Client struct {
	Uploader   *s3manager.Uploader
	Downloader *s3manager.Downloader
	Config     *aws.Config
	Session    *session.Session
}

func NewS3Client(config *aws.Config) (S3Client, error) {
	s, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}
	return &s3Client{
		Uploader:   s3manager.NewUploader(s),
		Downloader: s3manager.NewDownloader(s),
		Config:     config,
		Session:    s,
	}, nil
}

// S3Config builds a client config for AWS S3, or for any S3 compatible
// endpoint when endpoint is set.
func S3Config(region, endpoint, accessKeyID, accessKeySecret string) *aws.Config {
	cfg := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return cfg
}

// R2Config builds a client config for Cloudflare R2
func R2Config(accountID, accessKeyID, accessKeySecret string) *aws.Config {
	return &aws.Config{
		Endpoint:    aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:      aws.String("auto"), // R2 uses "auto" region
		Credentials: credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		// This is important for R2 compatibility
		S3ForcePathStyle: aws.Bool(true),
	}
}

func (s *s3Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Upload")
	defer span.Finish()
	span.SetTag("key", key)

	_, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	tracing.TraceErr(span, err)
	return err
}

func (s *s3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Download")
	defer span.Finish()
	span.SetTag("key", key)

	buffer := &aws.WriteAtBuffer{}
	_, err := s.Downloader.DownloadWithContext(ctx, buffer,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return buffer.Bytes(), nil
}

func (s *s3Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.ListKeys")
	defer span.Finish()
	span.SetTag("prefix", prefix)

	svc := s3.New(s.Session)

	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	err := svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		// Return true to continue paginating
		return true
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return keys, nil
}

func (s *s3Client) Delete(ctx context.Context, bucket, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Delete")
	defer span.Finish()
	span.SetTag("key", key)

	svc := s3.New(s.Session)
	_, err := svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	tracing.TraceErr(span, err)
	return err
}
