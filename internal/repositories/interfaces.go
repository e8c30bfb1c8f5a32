package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Counters() CounterRepository
	Users() UserRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderMutation inspects the current order and returns the version to persist.
// Returning an error aborts the write.
type OrderMutation func(current domain.Order) (domain.Order, error)

// OrderQuery filters orders for reporting. Zero values disable a filter.
type OrderQuery struct {
	Statuses    []domain.OrderStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinTotal    *decimal.Decimal
}

// OrderRepository persists orders keyed by their public identifier.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// FindByPublicID returns a RepositoryError with IsNotFound when the order is absent.
	FindByPublicID(ctx context.Context, publicID string) (domain.Order, error)
	// Transition reads the order and writes the result of mutate as one atomic unit.
	// No other write to the same order can land between the read and the write.
	Transition(ctx context.Context, publicID string, mutate OrderMutation) (domain.Order, error)
	// Query returns every order matching the filter from a single read.
	Query(ctx context.Context, query OrderQuery) ([]domain.Order, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	// Next increments the named counter, creating it at zero when absent, and returns the new value.
	Next(ctx context.Context, name string) (int64, error)
}

// UserRepository is the read side of the user directory plus the seed upsert.
type UserRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
	FindMany(ctx context.Context, userIDs []string) (map[string]domain.UserDisplay, error)
	UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
