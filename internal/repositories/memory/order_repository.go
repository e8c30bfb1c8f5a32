package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// OrderRepository keeps orders in process memory. A single mutex serialises writes so
// Transition behaves like a Firestore transaction for tests and local runs.
type OrderRepository struct {
	mu         sync.Mutex
	byPublicID map[string]domain.Order
	ids        map[string]struct{}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byPublicID: make(map[string]domain.Order),
		ids:        make(map[string]struct{}),
	}
}

// Insert stores a new order; reusing an id or public id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("memory order repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[order.ID]; ok {
		return conflict("orders.insert", "order id "+order.ID+" already exists")
	}
	if _, ok := r.byPublicID[order.PublicID]; ok {
		return conflict("orders.insert", "public id "+order.PublicID+" already exists")
	}
	r.ids[order.ID] = struct{}{}
	r.byPublicID[order.PublicID] = cloneOrder(order)
	return nil
}

// FindByPublicID returns a copy of the stored order.
func (r *OrderRepository) FindByPublicID(ctx context.Context, publicID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byPublicID[strings.TrimSpace(publicID)]
	if !ok {
		return domain.Order{}, notFound("orders.find", "order "+publicID)
	}
	return cloneOrder(order), nil
}

// Transition holds the store lock across read, mutate and write.
func (r *OrderRepository) Transition(ctx context.Context, publicID string, mutate repositories.OrderMutation) (domain.Order, error) {
	if mutate == nil {
		return domain.Order{}, errors.New("memory order repository: mutation is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.TrimSpace(publicID)
	current, ok := r.byPublicID[key]
	if !ok {
		return domain.Order{}, notFound("orders.transition", "order "+publicID)
	}

	next, err := mutate(cloneOrder(current))
	if err != nil {
		return domain.Order{}, err
	}
	next.ID = current.ID
	next.PublicID = current.PublicID
	next.CreatedAt = current.CreatedAt

	r.byPublicID[key] = cloneOrder(next)
	return cloneOrder(next), nil
}

// Query returns matching orders sorted by public id.
func (r *OrderRepository) Query(ctx context.Context, query repositories.OrderQuery) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]domain.Order, 0, len(r.byPublicID))
	for _, order := range r.byPublicID {
		if !matches(order, query) {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].PublicID < orders[j].PublicID })
	return orders, nil
}

func matches(order domain.Order, query repositories.OrderQuery) bool {
	if len(query.Statuses) > 0 && !slices.Contains(query.Statuses, order.Status) {
		return false
	}
	if query.CreatedFrom != nil && order.CreatedAt.Before(*query.CreatedFrom) {
		return false
	}
	if query.CreatedTo != nil && !order.CreatedAt.Before(*query.CreatedTo) {
		return false
	}
	if query.MinTotal != nil && order.Summary.Total.LessThan(*query.MinTotal) {
		return false
	}
	return true
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.Payment.PaidAt = clonePtr(order.Payment.PaidAt)
	order.Payment.TransactionID = clonePtr(order.Payment.TransactionID)
	order.Shipping.Carrier = clonePtr(order.Shipping.Carrier)
	order.Shipping.TrackingNumber = clonePtr(order.Shipping.TrackingNumber)
	order.Shipping.ShippedAt = clonePtr(order.Shipping.ShippedAt)
	return order
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
