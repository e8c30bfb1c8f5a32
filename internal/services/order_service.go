package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/textutil"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

const (
	OrderEventPlaced    = "order.placed"
	OrderEventPaid      = "order.paid"
	OrderEventShipped   = "order.shipped"
	OrderEventCancelled = "order.cancelled"

	orderIDPrefix = "ord_"
	eventIDPrefix = "evt_"

	defaultPaymentMethod  = "unassigned"
	fallbackPaymentMethod = "unknown"

	instrumentationName = "github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

var (
	// ErrOrderInvalid signals the caller provided invalid data.
	ErrOrderInvalid = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or its user could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates the order is not in a state that allows the operation.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store failed.
	ErrOrderUnavailable = errors.New("order: storage unavailable")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	PublicID       string          `json:"publicId"`
	UserID         string          `json:"userId"`
	PreviousStatus string          `json:"previousStatus,omitempty"`
	Status         string          `json:"status"`
	Total          decimal.Decimal `json:"total"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// StatsInvalidator drops cached aggregates after an order write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Counters    CounterService
	Events      OrderEventPublisher
	Cache       StatsInvalidator
	Clock       func() time.Time
	IDGenerator func() string
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	users       repositories.UserRepository
	counters    CounterService
	events      OrderEventPublisher
	cache       StatsInvalidator
	clock       func() time.Time
	newID       func() string
	transitions metric.Int64Counter
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Order lifecycle operations by transition and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("order service: create transitions counter: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		users:    deps.Users,
		counters: deps.Counters,
		events:   deps.Events,
		cache:    deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		transitions: transitions,
		logger:      logger,
	}, nil
}

func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	order, err := s.place(ctx, cmd)
	s.record(ctx, "place", err)
	return order, err
}

func (s *orderService) place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalid)
	}
	items, err := normalizeItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	paymentMethod, err := cleanField("paymentMethod", cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: user %s", ErrOrderNotFound, userID)
	}

	publicID, err := s.counters.NextOrderPublicID(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: allocate public id: %v", ErrOrderUnavailable, err)
	}

	now := s.clock()
	order := Order{
		ID:        orderIDPrefix + s.newID(),
		PublicID:  publicID,
		UserID:    userID,
		Items:     items,
		Status:    domain.OrderStatusPending,
		Summary:   domain.RecalculateSummary(items, now),
		Payment:   domain.OrderPayment{Method: domain.Coalesce(paymentMethod, defaultPaymentMethod)},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"orderId":  order.PublicID,
		"userId":   order.UserID,
		"total":    order.Summary.Total.String(),
		"quantity": order.Summary.ItemCount,
	})
	s.afterWrite(ctx, OrderEventPlaced, "", order)
	return order, nil
}

func (s *orderService) Pay(ctx context.Context, cmd PayOrderCommand) (Order, error) {
	method, err := cleanField("method", cmd.Method)
	if err != nil {
		s.record(ctx, "pay", err)
		return Order{}, err
	}
	transactionID, err := cleanOptionalField("transactionId", cmd.TransactionID)
	if err != nil {
		s.record(ctx, "pay", err)
		return Order{}, err
	}

	order, previous, err := s.transition(ctx, "pay", cmd.PublicID, func(current Order, now time.Time) (Order, error) {
		if !domain.CanTransition(current.Status, domain.OrderStatusPaid) {
			return Order{}, fmt.Errorf("%w: only pending orders can be paid", ErrOrderConflict)
		}
		current.Status = domain.OrderStatusPaid
		current.Payment = domain.OrderPayment{
			Method:        domain.Coalesce(method, current.Payment.Method, fallbackPaymentMethod),
			PaidAt:        &now,
			TransactionID: transactionID,
		}
		current.Summary = domain.RecalculateSummary(current.Items, now)
		return current, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterWrite(ctx, OrderEventPaid, previous, order)
	return order, nil
}

func (s *orderService) Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	carrier, err := cleanOptionalField("carrier", cmd.Carrier)
	if err != nil {
		s.record(ctx, "ship", err)
		return Order{}, err
	}
	tracking, err := cleanOptionalField("trackingNumber", cmd.TrackingNumber)
	if err != nil {
		s.record(ctx, "ship", err)
		return Order{}, err
	}

	order, previous, err := s.transition(ctx, "ship", cmd.PublicID, func(current Order, now time.Time) (Order, error) {
		if !domain.CanTransition(current.Status, domain.OrderStatusShipped) {
			return Order{}, fmt.Errorf("%w: only paid orders can be shipped", ErrOrderConflict)
		}
		current.Status = domain.OrderStatusShipped
		current.Shipping = domain.OrderShipping{
			Carrier:        domain.CoalescePtr(carrier, current.Shipping.Carrier),
			TrackingNumber: domain.CoalescePtr(tracking, current.Shipping.TrackingNumber),
			ShippedAt:      &now,
		}
		return current, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterWrite(ctx, OrderEventShipped, previous, order)
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, publicID string) (Order, error) {
	order, previous, err := s.transition(ctx, "cancel", publicID, func(current Order, now time.Time) (Order, error) {
		if !domain.CanTransition(current.Status, domain.OrderStatusCancelled) {
			return Order{}, fmt.Errorf("%w: only pending orders can be cancelled", ErrOrderConflict)
		}
		current.Status = domain.OrderStatusCancelled
		current.Summary.LastUpdated = now
		return current, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterWrite(ctx, OrderEventCancelled, previous, order)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, publicID string) (Order, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalid)
	}
	order, err := s.orders.FindByPublicID(ctx, publicID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// transition runs apply inside the repository's atomic read-modify-write. apply may run
// more than once when the store retries on contention.
func (s *orderService) transition(ctx context.Context, name, publicID string, apply func(current Order, now time.Time) (Order, error)) (Order, string, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		err := fmt.Errorf("%w: order id is required", ErrOrderInvalid)
		s.record(ctx, name, err)
		return Order{}, "", err
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Transition(ctx, publicID, func(current domain.Order) (domain.Order, error) {
		previous = current.Status
		now := s.clock()
		next, err := apply(current, now)
		if err != nil {
			return domain.Order{}, err
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		err = s.mapRepositoryError(err)
		s.record(ctx, name, err)
		if errors.Is(err, ErrOrderConflict) {
			s.logger(ctx, "order.transition.rejected", map[string]any{
				"orderId":    publicID,
				"transition": name,
				"status":     string(previous),
				"terminal":   previous.IsTerminal(),
			})
		}
		return Order{}, "", err
	}

	s.record(ctx, name, nil)
	s.logger(ctx, "order.transitioned", map[string]any{
		"orderId":    updated.PublicID,
		"transition": name,
		"from":       string(previous),
		"to":         string(updated.Status),
	})
	return updated, string(previous), nil
}

// mapRepositoryError leaves service sentinels untouched and classifies everything else.
func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrOrderInvalid, ErrOrderNotFound, ErrOrderConflict, ErrOrderUnavailable} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) afterWrite(ctx context.Context, eventType, previous string, order Order) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger(ctx, "order.stats_cache.invalidate_failed", map[string]any{
				"orderId": order.PublicID,
				"error":   err.Error(),
			})
		}
	}
	s.publishEvent(ctx, OrderEvent{
		ID:             eventIDPrefix + s.newID(),
		Type:           eventType,
		PublicID:       order.PublicID,
		UserID:         order.UserID,
		PreviousStatus: previous,
		Status:         string(order.Status),
		Total:          order.Summary.Total,
		OccurredAt:     order.UpdatedAt,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.PublicID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

func (s *orderService) record(ctx context.Context, transition string, err error) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", transition),
		attribute.String("outcome", outcomeOf(err)),
	))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOrderInvalid):
		return "invalid"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrOrderConflict):
		return "conflict"
	default:
		return "error"
	}
}

// cleanField trims and NFC-normalises caller text. Markup is refused, never stripped.
func cleanField(field, value string) (string, error) {
	cleaned, err := textutil.CleanText(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s must not contain markup", ErrOrderInvalid, field)
	}
	return cleaned, nil
}

func cleanOptionalField(field string, value *string) (*string, error) {
	cleaned, err := textutil.CleanTextPtr(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must not contain markup", ErrOrderInvalid, field)
	}
	return cleaned, nil
}

func normalizeItems(items []OrderItem) ([]OrderItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrOrderInvalid)
	}
	out := make([]OrderItem, 0, len(items))
	for i, item := range items {
		name, err := cleanField(fmt.Sprintf("items[%d].name", i), item.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%w: items[%d].name is required", ErrOrderInvalid, i)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrOrderInvalid, i)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d].price must not be negative", ErrOrderInvalid, i)
		}
		out = append(out, OrderItem{Name: name, Quantity: item.Quantity, Price: item.Price})
	}
	return out, nil
}
