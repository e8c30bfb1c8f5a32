package memory

import (
	"context"
	"time"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// Registry wires the in-memory stores for local runs without Firestore.
type Registry struct {
	orders   *OrderRepository
	counters *CounterRepository
	users    *UserRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns empty stores; users seed the directory.
func NewRegistry(users ...domain.User) *Registry {
	return &Registry{
		orders:   NewOrderRepository(),
		counters: NewCounterRepository(),
		users:    NewUserRepository(users...),
	}
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Health() repositories.HealthRepository    { return staticHealth{} }
func (r *Registry) Close(context.Context) error              { return nil }

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	now := time.Now().UTC()
	return domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"memory": {Status: domain.HealthStatusOK, CheckedAt: now},
		},
		GeneratedAt: now,
	}, nil
}
