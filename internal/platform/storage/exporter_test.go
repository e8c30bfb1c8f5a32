package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type writtenObject struct {
	bucket      string
	object      string
	contentType string
	data        []byte
}

type copiedObject struct {
	src string
	dst string
}

type fakeObjectStore struct {
	writes   []writtenObject
	copies   []copiedObject
	writeErr error
}

func (f *fakeObjectStore) Write(_ context.Context, bucket, object, contentType string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, writtenObject{bucket: bucket, object: object, contentType: contentType, data: data})
	return nil
}

func (f *fakeObjectStore) Copy(_ context.Context, srcBucket, srcObject, dstBucket, dstObject string) error {
	f.copies = append(f.copies, copiedObject{src: srcBucket + "/" + srcObject, dst: dstBucket + "/" + dstObject})
	return nil
}

func TestReportExporterWritesDatedObjectAndLatestAlias(t *testing.T) {
	store := &fakeObjectStore{}
	exporter, err := NewReportExporter(store, "orders-reports", "reports/stats",
		WithReportIDGenerator(func() string { return "r1" }))
	if err != nil {
		t.Fatalf("NewReportExporter returned error: %v", err)
	}

	generatedAt := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	result, err := exporter.Export(context.Background(), generatedAt, map[string]any{"orders": 3})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if result.Object != "reports/stats/2025/06/15/r1.json" {
		t.Fatalf("unexpected object %s", result.Object)
	}
	if result.Latest != "reports/stats/latest.json" {
		t.Fatalf("unexpected latest %s", result.Latest)
	}
	if result.URL != "" {
		t.Fatalf("expected no url without signer, got %s", result.URL)
	}
	if len(store.writes) != 1 {
		t.Fatalf("expected one write, got %d", len(store.writes))
	}
	written := store.writes[0]
	if written.bucket != "orders-reports" || written.contentType != "application/json" {
		t.Fatalf("unexpected write %+v", written)
	}
	var decoded map[string]int
	if err := json.Unmarshal(written.data, &decoded); err != nil || decoded["orders"] != 3 {
		t.Fatalf("unexpected payload %s (%v)", written.data, err)
	}
	if result.Size != len(written.data) {
		t.Fatalf("expected size %d, got %d", len(written.data), result.Size)
	}
	if len(store.copies) != 1 || store.copies[0].dst != "orders-reports/reports/stats/latest.json" {
		t.Fatalf("unexpected copies %+v", store.copies)
	}
}

func TestReportExporterSignsDownloadURL(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	urls, err := NewURLSigner(&fakeSigner{email: "reports@example.iam.gserviceaccount.com"},
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewURLSigner returned error: %v", err)
	}
	exporter, err := NewReportExporter(&fakeObjectStore{}, "orders-reports", "",
		WithURLSigner(urls, time.Hour),
		WithReportIDGenerator(func() string { return "r2" }))
	if err != nil {
		t.Fatalf("NewReportExporter returned error: %v", err)
	}

	result, err := exporter.Export(context.Background(), now, struct{}{})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if result.Object != "2025/06/15/r2.json" {
		t.Fatalf("unexpected object %s", result.Object)
	}
	if result.URL == "" || !result.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected signed url, got %+v", result)
	}
}

func TestReportExporterPropagatesWriteError(t *testing.T) {
	boom := errors.New("bucket unavailable")
	store := &fakeObjectStore{writeErr: boom}
	exporter, err := NewReportExporter(store, "orders-reports", "reports")
	if err != nil {
		t.Fatalf("NewReportExporter returned error: %v", err)
	}

	_, err = exporter.Export(context.Background(), time.Now(), map[string]any{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if len(store.copies) != 0 {
		t.Fatalf("expected no latest copy after failed write")
	}
}

func TestNewReportExporterValidation(t *testing.T) {
	if _, err := NewReportExporter(nil, "b", ""); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewReportExporter(&fakeObjectStore{}, " ", ""); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}
}
