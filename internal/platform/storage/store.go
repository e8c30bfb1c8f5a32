package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectStore is the subset of bucket operations the report exporter needs.
type ObjectStore interface {
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
	Copy(ctx context.Context, srcBucket, srcObject, dstBucket, dstObject string) error
}

// GCSStore implements ObjectStore on Cloud Storage.
type GCSStore struct {
	client *gcs.Client
}

// NewGCSStore constructs a GCSStore backed by the provided Cloud Storage client.
func NewGCSStore(client *gcs.Client) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSStore{client: client}, nil
}

// Write uploads data as a single object.
func (s *GCSStore) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if s == nil || s.client == nil {
		return errors.New("storage: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage: bucket and object must be provided")
	}

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Copy copies an object from the source bucket/path to the destination.
func (s *GCSStore) Copy(ctx context.Context, srcBucket, srcObject, dstBucket, dstObject string) error {
	if s == nil || s.client == nil {
		return errors.New("storage: client is not initialised")
	}

	srcBucket = strings.TrimSpace(srcBucket)
	srcObject = strings.TrimSpace(srcObject)
	dstBucket = strings.TrimSpace(dstBucket)
	dstObject = strings.TrimSpace(dstObject)

	if srcBucket == "" || srcObject == "" || dstBucket == "" || dstObject == "" {
		return errors.New("storage: source and destination must be provided")
	}
	if srcBucket == dstBucket && srcObject == dstObject {
		return nil
	}

	src := s.client.Bucket(srcBucket).Object(srcObject)
	dst := s.client.Bucket(dstBucket).Object(dstObject)
	_, err := dst.CopierFrom(src).Run(ctx)
	return err
}
