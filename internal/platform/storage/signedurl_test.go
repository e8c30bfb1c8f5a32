package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestDownloadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "reports@example.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	urls, err := NewURLSigner(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating signer: %v", err)
	}

	res, err := urls.DownloadURL(context.Background(), "bucket", "reports/stats/2025/01/01/r1.json", DownloadOptions{
		ExpiresIn:    10 * time.Minute,
		ResponseType: "application/json",
	})
	if err != nil {
		t.Fatalf("DownloadURL returned error: %v", err)
	}
	if res.Method != httpMethodGet {
		t.Fatalf("expected GET method, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if parsed.Query().Get("response-content-type") != "application/json" {
		t.Fatalf("expected response content type in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestDownloadURLValidation(t *testing.T) {
	signer := &fakeSigner{email: "reports@example.iam.gserviceaccount.com"}
	urls, err := NewURLSigner(signer)
	if err != nil {
		t.Fatalf("unexpected error creating signer: %v", err)
	}

	cases := []struct {
		name   string
		bucket string
		object string
		opts   DownloadOptions
		want   error
	}{
		{name: "missing bucket", object: "o", want: errInvalidBucket},
		{name: "missing object", bucket: "b", want: errInvalidObject},
		{name: "put not allowed", bucket: "b", object: "o", opts: DownloadOptions{Method: "PUT"}, want: errMethodNotAllowed},
		{name: "expiry too long", bucket: "b", object: "o", opts: DownloadOptions{ExpiresIn: 8 * 24 * time.Hour}, want: errExpiryTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := urls.DownloadURL(context.Background(), tc.bucket, tc.object, tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewURLSignerRequiresEmail(t *testing.T) {
	if _, err := NewURLSigner(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
}

func TestServiceAccountSignerFromJSON(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	raw, err := json.Marshal(map[string]string{
		"client_email": "reports@example.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}

	signer, err := NewServiceAccountSignerFromJSON(raw)
	if err != nil {
		t.Fatalf("NewServiceAccountSignerFromJSON returned error: %v", err)
	}
	if signer.Email() != "reports@example.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %s", signer.Email())
	}
	sig, err := signer.SignBytes(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("SignBytes returned error: %v", err)
	}
	if len(sig) != key.Size() {
		t.Fatalf("expected %d byte signature, got %d", key.Size(), len(sig))
	}

	if _, err := NewServiceAccountSignerFromJSON([]byte(`{"client_email":"x"}`)); err == nil {
		t.Fatalf("expected error for missing private key")
	}
}
