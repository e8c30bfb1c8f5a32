package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

const (
	ordersCollection = "orders"
	queryTxTimeout   = 30 * time.Second
)

// OrderRepository stores orders under ULID document ids and resolves them by publicId.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document. A duplicate document id surfaces as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, fromDomainOrder(order))
}

// FindByPublicID loads the order carrying publicID.
func (r *OrderRepository) FindByPublicID(ctx context.Context, publicID string) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, byPublicID(publicID))
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFound("orders.find", "order "+publicID)
	}
	return toDomainOrder(docs[0])
}

// Transition runs the read, mutate and write of one order inside a Firestore transaction.
// Firestore aborts and retries the transaction when a concurrent write touches the document,
// so mutate always sees the latest committed state.
func (r *OrderRepository) Transition(ctx context.Context, publicID string, mutate repositories.OrderMutation) (domain.Order, error) {
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := r.orders.QueryTx(ctx, tx, byPublicID(publicID))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return pfirestore.NotFound("orders.transition", "order "+publicID)
		}

		current, err := toDomainOrder(docs[0])
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.PublicID = current.PublicID
		next.CreatedAt = current.CreatedAt

		if err := tx.Set(docs[0].Ref, fromDomainOrder(next)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Order{}, unwrapTxError(err)
	}
	return updated, nil
}

// Query reads all matching orders from one read-only snapshot. Range filters that Firestore
// cannot combine in a single query without a composite index are re-applied in memory.
func (r *OrderRepository) Query(ctx context.Context, query repositories.OrderQuery) ([]domain.Order, error) {
	var docs []pfirestore.Document[orderDocument]
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var err error
		docs, err = r.orders.QueryTx(ctx, tx, orderFilter(query))
		return err
	}, pfirestore.ReadOnly(), pfirestore.WithTxTimeout(queryTxTimeout))
	if err != nil {
		return nil, unwrapTxError(err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toDomainOrder(doc)
		if err != nil {
			return nil, err
		}
		if query.MinTotal != nil && order.Summary.Total.LessThan(*query.MinTotal) {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func orderFilter(query repositories.OrderQuery) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if len(query.Statuses) > 0 {
			statuses := make([]string, 0, len(query.Statuses))
			for _, status := range query.Statuses {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if query.CreatedFrom != nil {
			q = q.Where("createdAt", ">=", query.CreatedFrom.UTC())
		}
		if query.CreatedTo != nil {
			q = q.Where("createdAt", "<", query.CreatedTo.UTC())
		}
		if query.CreatedFrom == nil && query.CreatedTo == nil && query.MinTotal != nil {
			q = q.Where("summary.totalValue", ">=", query.MinTotal.InexactFloat64())
		}
		return q
	}
}

func byPublicID(publicID string) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.Where("publicId", "==", strings.TrimSpace(publicID)).Limit(1)
	}
}

// unwrapTxError keeps errors produced by the mutation intact so services can recognise them.
func unwrapTxError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && (repoErr.IsNotFound() || repoErr.IsConflict() || repoErr.IsUnavailable()) {
		return repoErr
	}
	if inner := errors.Unwrap(err); inner != nil {
		return inner
	}
	return err
}

type orderDocument struct {
	PublicID  string                `firestore:"publicId"`
	UserID    string                `firestore:"userId"`
	Items     []orderItemDocument   `firestore:"items"`
	Status    string                `firestore:"status"`
	Summary   orderSummaryDocument  `firestore:"summary"`
	Payment   orderPaymentDocument  `firestore:"payment"`
	Shipping  orderShippingDocument `firestore:"shipping"`
	CreatedAt time.Time             `firestore:"createdAt"`
	UpdatedAt time.Time             `firestore:"updatedAt"`
}

type orderItemDocument struct {
	Name     string `firestore:"name"`
	Quantity int    `firestore:"quantity"`
	Price    string `firestore:"price"`
}

// Total is kept twice: the exact decimal string and a float copy usable in range filters.
type orderSummaryDocument struct {
	Total       string    `firestore:"total"`
	TotalValue  float64   `firestore:"totalValue"`
	ItemCount   int       `firestore:"itemCount"`
	LastUpdated time.Time `firestore:"lastUpdated"`
}

type orderPaymentDocument struct {
	Method        string     `firestore:"method"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	TransactionID *string    `firestore:"transactionId,omitempty"`
}

type orderShippingDocument struct {
	Carrier        *string    `firestore:"carrier,omitempty"`
	TrackingNumber *string    `firestore:"trackingNumber,omitempty"`
	ShippedAt      *time.Time `firestore:"shippedAt,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price.String(),
		})
	}
	return orderDocument{
		PublicID: order.PublicID,
		UserID:   order.UserID,
		Items:    items,
		Status:   string(order.Status),
		Summary: orderSummaryDocument{
			Total:       order.Summary.Total.String(),
			TotalValue:  order.Summary.Total.InexactFloat64(),
			ItemCount:   order.Summary.ItemCount,
			LastUpdated: order.Summary.LastUpdated.UTC(),
		},
		Payment: orderPaymentDocument{
			Method:        order.Payment.Method,
			PaidAt:        order.Payment.PaidAt,
			TransactionID: order.Payment.TransactionID,
		},
		Shipping: orderShippingDocument{
			Carrier:        order.Shipping.Carrier,
			TrackingNumber: order.Shipping.TrackingNumber,
			ShippedAt:      order.Shipping.ShippedAt,
		},
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	data := doc.Data
	items := make([]domain.OrderItem, 0, len(data.Items))
	for _, item := range data.Items {
		price, err := parseDecimal(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("orders/%s: item %q price: %w", doc.ID, item.Name, err)
		}
		items = append(items, domain.OrderItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    price,
		})
	}
	total, err := parseDecimal(data.Summary.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders/%s: summary total: %w", doc.ID, err)
	}
	return domain.Order{
		ID:       doc.ID,
		PublicID: data.PublicID,
		UserID:   data.UserID,
		Items:    items,
		Status:   domain.OrderStatus(data.Status),
		Summary: domain.OrderSummary{
			Total:       total,
			ItemCount:   data.Summary.ItemCount,
			LastUpdated: data.Summary.LastUpdated,
		},
		Payment: domain.OrderPayment{
			Method:        data.Payment.Method,
			PaidAt:        data.Payment.PaidAt,
			TransactionID: data.Payment.TransactionID,
		},
		Shipping: domain.OrderShipping{
			Carrier:        data.Shipping.Carrier,
			TrackingNumber: data.Shipping.TrackingNumber,
			ShippedAt:      data.Shipping.ShippedAt,
		},
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
