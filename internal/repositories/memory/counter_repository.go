package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// CounterRepository hands out sequence values from a mutex-guarded map.
type CounterRepository struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs an empty counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{values: make(map[string]int64)}
}

// Next increments the named counter and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, repositories.NewCounterError(name, repositories.CounterErrorInvalidInput, "counter name is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[name]++
	return r.values[name], nil
}
