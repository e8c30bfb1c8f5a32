package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const reportContentType = "application/json"

// ReportExporter writes stats report snapshots to a bucket. Each export lands under a dated
// path and is then copied to latest.json under the same prefix.
type ReportExporter struct {
	store  ObjectStore
	urls   *URLSigner
	bucket string
	prefix string
	expiry time.Duration
	newID  func() string
	logger *zap.Logger
}

// ExporterOption customises the exporter.
type ExporterOption func(*ReportExporter)

// WithURLSigner enables signed download URLs on export results.
func WithURLSigner(signer *URLSigner, expiry time.Duration) ExporterOption {
	return func(e *ReportExporter) {
		e.urls = signer
		e.expiry = expiry
	}
}

// WithReportIDGenerator overrides the report id generator.
func WithReportIDGenerator(fn func() string) ExporterOption {
	return func(e *ReportExporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithExporterLogger sets the logger.
func WithExporterLogger(logger *zap.Logger) ExporterOption {
	return func(e *ReportExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewReportExporter constructs an exporter writing into bucket/prefix.
func NewReportExporter(store ObjectStore, bucket, prefix string, opts ...ExporterOption) (*ReportExporter, error) {
	if store == nil {
		return nil, errors.New("storage: object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	cleaned, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	e := &ReportExporter{
		store:  store,
		bucket: bucket,
		prefix: cleaned,
		newID:  func() string { return ulid.Make().String() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// ExportResult describes a written report.
type ExportResult struct {
	Bucket    string    `json:"bucket"`
	Object    string    `json:"object"`
	Latest    string    `json:"latest"`
	Size      int       `json:"size"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Export serialises report as JSON and uploads it.
func (e *ReportExporter) Export(ctx context.Context, generatedAt time.Time, report any) (ExportResult, error) {
	object, err := ReportObjectPath(e.prefix, generatedAt, e.newID())
	if err != nil {
		return ExportResult{}, err
	}
	latest, err := LatestReportPath(e.prefix)
	if err != nil {
		return ExportResult{}, err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("storage: encode report: %w", err)
	}
	if err := e.store.Write(ctx, e.bucket, object, reportContentType, data); err != nil {
		return ExportResult{}, err
	}
	if err := e.store.Copy(ctx, e.bucket, object, e.bucket, latest); err != nil {
		return ExportResult{}, fmt.Errorf("storage: update latest report: %w", err)
	}

	result := ExportResult{Bucket: e.bucket, Object: object, Latest: latest, Size: len(data)}
	if e.urls != nil {
		signed, err := e.urls.DownloadURL(ctx, e.bucket, object, DownloadOptions{
			ExpiresIn:    e.expiry,
			ResponseType: reportContentType,
		})
		if err != nil {
			return ExportResult{}, err
		}
		result.URL = signed.URL
		result.ExpiresAt = signed.ExpiresAt
	}

	e.logger.Info("stats report exported",
		zap.String("bucket", e.bucket),
		zap.String("object", object),
		zap.Int("bytes", len(data)),
	)
	return result, nil
}
