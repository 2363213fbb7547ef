package reports

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/hyperengineering/fieldops/internal/config"
)

// --- NoopUploader Tests ---

func TestNoopUploader_ReturnsErrNotConfigured(t *testing.T) {
	u := &NoopUploader{}
	_, _, err := u.PresignedUploadURL(context.Background(), "org/jobs/j/units/u/r")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NoopUploader.PresignedUploadURL() should return ErrNotConfigured, got %v", err)
	}
	if _, err := u.ObjectExists(context.Background(), "org/jobs/j/units/u/r"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NoopUploader.ObjectExists() should return ErrNotConfigured, got %v", err)
	}
}

// --- NewUploader factory tests ---

func TestNewUploader_EmptyBucket_ReturnsNoopUploader(t *testing.T) {
	u, err := NewUploader(config.ReportStorageConfig{Bucket: ""})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	if _, ok := u.(*NoopUploader); !ok {
		t.Errorf("expected *NoopUploader, got %T", u)
	}
}

func TestNewUploader_WithBucket_ReturnsS3Uploader(t *testing.T) {
	useSSL := false
	cfg := config.ReportStorageConfig{
		Bucket:    "job-reports",
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		UseSSL:    &useSSL,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		URLExpiry: config.Duration(15 * time.Minute),
	}

	u, err := NewUploader(cfg)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	s3u, ok := u.(*S3Uploader)
	if !ok {
		t.Fatalf("expected *S3Uploader, got %T", u)
	}
	if s3u.bucket != "job-reports" {
		t.Errorf("bucket = %q, want %q", s3u.bucket, "job-reports")
	}
	if s3u.urlExpiry != 15*time.Minute {
		t.Errorf("urlExpiry = %v, want 15m", s3u.urlExpiry)
	}
}

// --- S3Uploader with mock client tests ---

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	presignCalled  bool
	presignErr     error
	lastBucket     string
	lastObjectName string
	lastExpiry     time.Duration
	statCalled     bool
	statErr        error
	objects        map[string]bool
}

func (m *mockS3Client) PresignedPutObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	m.presignCalled = true
	m.lastBucket = bucket
	m.lastObjectName = objectName
	m.lastExpiry = expiry
	if m.presignErr != nil {
		return nil, m.presignErr
	}
	return url.Parse("https://s3.example.com/" + bucket + "/" + objectName + "?X-Amz-Signature=abc")
}

func (m *mockS3Client) StatObject(ctx context.Context, bucket, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	m.statCalled = true
	m.lastBucket = bucket
	if m.statErr != nil {
		return minio.ObjectInfo{}, m.statErr
	}
	if !m.objects[objectName] {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return minio.ObjectInfo{Key: objectName, Size: 1024}, nil
}

func TestS3Uploader_PresignedUploadURL_Success(t *testing.T) {
	mock := &mockS3Client{}
	u := &S3Uploader{client: mock, bucket: "job-reports", urlExpiry: 15 * time.Minute}

	urlStr, expiry, err := u.PresignedUploadURL(context.Background(), "org-1/jobs/j1/units/u1/r1")
	if err != nil {
		t.Fatalf("PresignedUploadURL() error = %v", err)
	}

	if !mock.presignCalled {
		t.Error("expected PresignedPutObject to be called")
	}
	if mock.lastBucket != "job-reports" || mock.lastObjectName != "org-1/jobs/j1/units/u1/r1" {
		t.Errorf("presigned %s/%s", mock.lastBucket, mock.lastObjectName)
	}
	if mock.lastExpiry != 15*time.Minute {
		t.Errorf("expiry passed = %v, want 15m", mock.lastExpiry)
	}
	if !strings.Contains(urlStr, "org-1/jobs/j1/units/u1/r1") {
		t.Errorf("url = %q", urlStr)
	}

	expectedExpiry := time.Now().Add(15 * time.Minute)
	if expiry.Before(expectedExpiry.Add(-1*time.Second)) || expiry.After(expectedExpiry.Add(1*time.Second)) {
		t.Errorf("expiry = %v, want approximately %v", expiry, expectedExpiry)
	}
}

func TestS3Uploader_PresignedUploadURL_Error(t *testing.T) {
	mock := &mockS3Client{presignErr: errors.New("access denied")}
	u := &S3Uploader{client: mock, bucket: "job-reports", urlExpiry: time.Minute}

	_, _, err := u.PresignedUploadURL(context.Background(), "k")
	if !errors.Is(err, mock.presignErr) {
		t.Errorf("expected wrapped access denied error, got %v", err)
	}
}

func TestS3Uploader_ObjectExists(t *testing.T) {
	mock := &mockS3Client{objects: map[string]bool{"org-1/jobs/j1/units/u1/r1": true}}
	u := &S3Uploader{client: mock, bucket: "job-reports", urlExpiry: time.Minute}

	ok, err := u.ObjectExists(context.Background(), "org-1/jobs/j1/units/u1/r1")
	if err != nil || !ok {
		t.Errorf("ObjectExists(stored) = %v, %v; want true", ok, err)
	}
	if mock.lastBucket != "job-reports" {
		t.Errorf("bucket = %q", mock.lastBucket)
	}

	ok, err = u.ObjectExists(context.Background(), "org-1/jobs/j1/units/u1/r2")
	if err != nil || ok {
		t.Errorf("ObjectExists(missing) = %v, %v; want false", ok, err)
	}

	mock.statErr = errors.New("connection refused")
	if _, err := u.ObjectExists(context.Background(), "org-1/jobs/j1/units/u1/r1"); !errors.Is(err, mock.statErr) {
		t.Errorf("expected wrapped stat error, got %v", err)
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantHost string
		wantSSL  bool
	}{
		{"bare host", "s3.example.com", "s3.example.com", true},
		{"bare host:port", "minio:9000", "minio:9000", true},
		{"https URL", "https://s3.example.com", "s3.example.com", true},
		{"http URL", "http://minio:9000", "minio:9000", false},
		{"http with port", "http://localhost:9000", "localhost:9000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ssl := true
			got := stripScheme(tt.endpoint, &ssl)
			if got != tt.wantHost {
				t.Errorf("stripScheme(%q) host = %q, want %q", tt.endpoint, got, tt.wantHost)
			}
			if ssl != tt.wantSSL {
				t.Errorf("stripScheme(%q) ssl = %v, want %v", tt.endpoint, ssl, tt.wantSSL)
			}
		})
	}
}

func TestObjectKey_Format(t *testing.T) {
	got := ObjectKey("org-1", "job-1", "unit-1", "rep-1")
	want := "org-1/jobs/job-1/units/unit-1/rep-1"
	if got != want {
		t.Errorf("ObjectKey() = %q, want %q", got, want)
	}
}
