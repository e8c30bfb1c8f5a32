package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry = 5 * time.Minute
	maxDownloadExpiry     = 7 * 24 * time.Hour
)

var (
	errNoSigner         = errors.New("storage: signer is required")
	errInvalidBucket    = errors.New("storage: bucket name is required")
	errInvalidObject    = errors.New("storage: object name is required")
	errMethodNotAllowed = errors.New("storage: HTTP method not allowed for download")
	errExpiryTooLong    = errors.New("storage: expiry exceeds permitted maximum")
)

// URLSigner generates download URLs for exported objects backed by a Signer.
type URLSigner struct {
	signer Signer
	scheme gcs.SigningScheme
	now    func() time.Time
}

// URLSignerOption customises signer behaviour.
type URLSignerOption func(*URLSigner)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme gcs.SigningScheme) URLSignerOption {
	return func(s *URLSigner) {
		if scheme != 0 {
			s.scheme = scheme
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) URLSignerOption {
	return func(s *URLSigner) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewURLSigner constructs a signed URL generator.
func NewURLSigner(signer Signer, opts ...URLSignerOption) (*URLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}

	s := &URLSigner{
		signer: signer,
		scheme: gcs.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DownloadOptions control download behaviour of the signed URL.
type DownloadOptions struct {
	Method       string
	ExpiresIn    time.Duration
	Disposition  string
	ResponseType string
}

// SignedURL describes a generated signed URL.
type SignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// DownloadURL signs a GET or HEAD URL for bucket/object.
func (s *URLSigner) DownloadURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURL, error) {
	if s == nil {
		return SignedURL{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURL{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURL{}, errInvalidObject
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = httpMethodGet
	}
	if method != httpMethodGet && method != httpMethodHead {
		return SignedURL{}, errMethodNotAllowed
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		return SignedURL{}, errExpiryTooLong
	}

	query := map[string]string{}
	if opts.Disposition != "" {
		query["response-content-disposition"] = opts.Disposition
	}
	if opts.ResponseType != "" {
		query["response-content-type"] = opts.ResponseType
	}

	expiresAt := s.now().Add(expiry)
	urlOpts := gcs.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         s.scheme,
		Method:         method,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}
	if len(query) > 0 {
		urlOpts.QueryParameters = mapToURLValues(query)
	}

	signed, err := gcs.SignedURL(bucket, object, &urlOpts)
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, Method: method, ExpiresAt: expiresAt}, nil
}

const (
	httpMethodGet  = "GET"
	httpMethodHead = "HEAD"
)

func mapToURLValues(values map[string]string) url.Values {
	out := make(url.Values, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Add(key, values[key])
	}
	return out
}
