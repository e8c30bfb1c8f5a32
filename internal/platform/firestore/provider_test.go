package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/config"
)

func TestNewProviderDialTimeout(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "orders-dev"})
	if provider.dialTimeout != defaultDialTimeout {
		t.Fatalf("expected default dial timeout, got %s", provider.dialTimeout)
	}

	provider = NewProvider(config.FirestoreConfig{ProjectID: "orders-dev"}, WithDialTimeout(3*time.Second), WithDialTimeout(0))
	if provider.dialTimeout != 3*time.Second {
		t.Fatalf("expected 3s dial timeout, got %s", provider.dialTimeout)
	}
}

func TestTxOptions(t *testing.T) {
	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range []TxOption{WithTxAttempts(10), WithTxTimeout(30 * time.Second), ReadOnly(), WithTxAttempts(-1)} {
		opt(&cfg)
	}
	if cfg.attempts != 10 || cfg.timeout != 30*time.Second || !cfg.readOnly {
		t.Fatalf("unexpected tx config: %+v", cfg)
	}
}

func TestProviderClientAfterClose(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "orders-dev"})
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
