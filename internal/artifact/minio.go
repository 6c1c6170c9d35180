// Package artifact stores rendered case visuals and report copies in
// S3-compatible object storage.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads artifacts and hands out presigned GET URLs.
type Service struct {
	client *minio.Client
	bucket string
}

const presignExpiry = 7 * 24 * time.Hour

func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// UploadChart stores the rasterized chart for a case and returns a
// presigned URL the remote spreadsheet can embed.
func (s *Service) UploadChart(ctx context.Context, caseID string, png []byte) (string, error) {
	object := fmt.Sprintf("charts/%s-%d.png", caseID, time.Now().Unix())
	return s.upload(ctx, object, png, "image/png")
}

// UploadReportCopy stores a local copy of a generated report document.
func (s *Service) UploadReportCopy(ctx context.Context, caseID string, pdf []byte) (string, error) {
	object := fmt.Sprintf("reports/%s.pdf", caseID)
	return s.upload(ctx, object, pdf, "application/pdf")
}

func (s *Service) upload(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, object, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", object, err)
	}
	return url.String(), nil
}
