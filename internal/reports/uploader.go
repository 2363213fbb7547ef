// Package reports issues pre-signed upload URLs for job unit reports.
// When S3 is not configured (empty bucket), the NoopUploader is used and
// report uploads are unavailable.
package reports

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/fieldops/internal/config"
)

// ErrNotConfigured is returned when report storage is not configured.
var ErrNotConfigured = errors.New("report storage not configured")

// Uploader generates pre-signed URLs clients use to PUT report files directly
// and checks that an uploaded object landed.
type Uploader interface {
	PresignedUploadURL(ctx context.Context, key string) (url string, expiry time.Time, err error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
type s3Client interface {
	PresignedPutObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
	StatObject(ctx context.Context, bucket, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// S3Uploader issues pre-signed PUT URLs against S3-compatible storage.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

// PresignedUploadURL returns a pre-signed PUT URL for the object key.
func (u *S3Uploader) PresignedUploadURL(ctx context.Context, key string) (string, time.Time, error) {
	presigned, err := u.client.PresignedPutObject(ctx, u.bucket, key, u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(u.urlExpiry), nil
}

// ObjectExists reports whether the object key is present in the bucket.
func (u *S3Uploader) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.StatObject(ctx, u.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat object: %w", err)
}

// NoopUploader is used when report storage is not configured.
type NoopUploader struct{}

// PresignedUploadURL always returns ErrNotConfigured.
func (u *NoopUploader) PresignedUploadURL(ctx context.Context, key string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// ObjectExists always returns ErrNotConfigured.
func (u *NoopUploader) ObjectExists(ctx context.Context, key string) (bool, error) {
	return false, ErrNotConfigured
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ReportStorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint,
// which minio.New does not accept, and sets useSSL to match it.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// ObjectKey returns the object key for a report upload.
// Convention: {organization_id}/jobs/{job_id}/units/{unit_id}/{report_id}
func ObjectKey(organizationID, jobID, unitID, reportID string) string {
	return organizationID + "/jobs/" + jobID + "/units/" + unitID + "/" + reportID
}
