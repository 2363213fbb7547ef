package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/fieldops/internal/types"
)

var (
	// ErrInvalidKey is returned when a confirmed key was not issued for the unit.
	ErrInvalidKey = errors.New("object key does not belong to this unit")
	// ErrUploadMissing is returned when the confirmed object is not in storage.
	ErrUploadMissing = errors.New("report object not found in storage")
)

// UnitStore looks up job units and records uploads against them.
// Implemented by store.SQLiteStore.
type UnitStore interface {
	GetJobUnit(ctx context.Context, organizationID, jobID, unitID string) (*types.JobUnit, error)
	RecordReportUpload(ctx context.Context, organizationID, jobID, unitID, objectKey string) (*types.JobUnit, error)
}

// Upload is an issued report upload slot.
type Upload struct {
	URL       string         `json:"upload_url"`
	Key       string         `json:"key"`
	ExpiresAt time.Time      `json:"expires_at"`
	Unit      *types.JobUnit `json:"unit"`
}

// Service issues report uploads and keeps unit report counts current.
type Service struct {
	store    UnitStore
	uploader Uploader
}

// NewService creates a report service.
func NewService(store UnitStore, uploader Uploader) *Service {
	return &Service{store: store, uploader: uploader}
}

// RequestUpload issues a pre-signed URL for a new report on the unit.
// The report is not counted until ConfirmUpload sees the stored object.
func (s *Service) RequestUpload(ctx context.Context, organizationID, jobID, unitID string) (*Upload, error) {
	unit, err := s.store.GetJobUnit(ctx, organizationID, jobID, unitID)
	if err != nil {
		return nil, fmt.Errorf("get job unit: %w", err)
	}

	key := ObjectKey(organizationID, jobID, unitID, ulid.Make().String())
	url, expiry, err := s.uploader.PresignedUploadURL(ctx, key)
	if err != nil {
		return nil, err
	}

	slog.Info("report upload issued",
		"component", "reports",
		"organization_id", organizationID,
		"job_id", jobID,
		"unit_id", unitID,
		"key", key,
	)

	return &Upload{URL: url, Key: key, ExpiresAt: expiry, Unit: unit}, nil
}

// ConfirmUpload counts a report once its object is present in storage.
// The key must be one issued for this unit.
func (s *Service) ConfirmUpload(ctx context.Context, organizationID, jobID, unitID, key string) (*types.JobUnit, error) {
	prefix := ObjectKey(organizationID, jobID, unitID, "")
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) || strings.Contains(key[len(prefix):], "/") {
		return nil, ErrInvalidKey
	}

	ok, err := s.uploader.ObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUploadMissing
	}

	unit, err := s.store.RecordReportUpload(ctx, organizationID, jobID, unitID, key)
	if err != nil {
		return nil, fmt.Errorf("record report upload: %w", err)
	}

	slog.Info("report upload confirmed",
		"component", "reports",
		"organization_id", organizationID,
		"job_id", jobID,
		"unit_id", unitID,
		"uploaded", unit.UploadedReportCount,
		"expected", unit.ExpectedReportCount,
	)
	return unit, nil
}
