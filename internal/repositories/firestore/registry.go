package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	counters *CounterRepository
	users    *UserRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on the shared provider. The Firestore probe is always
// part of the health checks; extra checks cover the other backends.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		counters: counters,
		users:    users,
		health:   health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
