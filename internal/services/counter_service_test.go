package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

type stubCounterRepository struct {
	mu     sync.Mutex
	nextFn func(context.Context, string) (int64, error)
	names  []string
}

func (s *stubCounterRepository) Next(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, name)
	}
	return 0, nil
}

func TestCounterServiceNextOrderPublicIDPads(t *testing.T) {
	repo := &stubCounterRepository{nextFn: func(context.Context, string) (int64, error) { return 42, nil }}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	id, err := svc.NextOrderPublicID(context.Background())
	if err != nil {
		t.Fatalf("next public id: %v", err)
	}
	if id != "000042" {
		t.Fatalf("expected 000042, got %s", id)
	}
	if len(repo.names) != 1 || repo.names[0] != OrderCounterName {
		t.Fatalf("expected counter %q to be used, got %v", OrderCounterName, repo.names)
	}
}

func TestCounterServiceNextValueValidatesName(t *testing.T) {
	repo := &stubCounterRepository{}
	svc, _ := NewCounterService(CounterServiceDeps{Repository: repo})

	if _, err := svc.NextValue(context.Background(), "  "); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(repo.names) != 0 {
		t.Fatalf("repository should not be called for invalid names")
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{"invalid", repositories.NewCounterError("x", repositories.CounterErrorInvalidInput, "bad name", nil), ErrCounterInvalidInput},
		{"corrupt", repositories.NewCounterError("x", repositories.CounterErrorCorrupt, "negative", nil), ErrCounterUnavailable},
		{"backend", errors.New("boom"), ErrCounterUnavailable},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubCounterRepository{nextFn: func(context.Context, string) (int64, error) { return 0, tc.repoErr }}
			svc, _ := NewCounterService(CounterServiceDeps{Repository: repo})
			if _, err := svc.NextValue(context.Background(), "order"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
