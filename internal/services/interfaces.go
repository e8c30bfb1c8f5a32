package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderValueAverage  = domain.OrderValueAverage
	ProductSales       = domain.ProductSales
	CustomerSpend      = domain.CustomerSpend
	DailySales         = domain.DailySales
	HighValueOrder     = domain.HighValueOrder
	MonthlySales       = domain.MonthlySales
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService drives the order lifecycle: placement, payment, shipment and cancellation.
type OrderService interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	Pay(ctx context.Context, cmd PayOrderCommand) (Order, error)
	Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	Cancel(ctx context.Context, publicID string) (Order, error)
	Get(ctx context.Context, publicID string) (Order, error)
}

// CounterService allocates sequence values.
type CounterService interface {
	NextValue(ctx context.Context, name string) (int64, error)
	NextOrderPublicID(ctx context.Context) (string, error)
}

// StatsService computes reporting aggregates from one order read per call.
type StatsService interface {
	AverageOrderValue(ctx context.Context) (OrderValueAverage, error)
	TopProducts(ctx context.Context, limit int) ([]ProductSales, error)
	TopCustomers(ctx context.Context, limit int) ([]CustomerSpend, error)
	SalesByDay(ctx context.Context, days int) ([]DailySales, error)
	HighValueOrders(ctx context.Context, min decimal.Decimal) ([]HighValueOrder, error)
	MonthlySummary(ctx context.Context, months int) ([]MonthlySales, error)
	BuildReport(ctx context.Context, opts StatsReportOptions) (StatsReport, error)
}

// SystemService exposes operational utilities such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PlaceOrderCommand carries the input of a new order. PaymentMethod is optional.
type PlaceOrderCommand struct {
	UserID        string
	Items         []OrderItem
	PaymentMethod string
}

// PayOrderCommand records a payment; blank fields fall back to stored values.
type PayOrderCommand struct {
	PublicID      string
	Method        string
	TransactionID *string
}

// ShipOrderCommand records a shipment; nil fields keep stored values.
type ShipOrderCommand struct {
	PublicID       string
	Carrier        *string
	TrackingNumber *string
}

// StatsReportOptions parameterises BuildReport. Zero values use the per-aggregation defaults.
type StatsReportOptions struct {
	TopLimit     int
	Days         int
	Months       int
	HighValueMin decimal.Decimal
}

// StatsReport bundles every aggregate for export.
type StatsReport struct {
	GeneratedAt  time.Time         `json:"generatedAt"`
	Average      OrderValueAverage `json:"average"`
	TopProducts  []ProductSales    `json:"topProducts"`
	TopCustomers []CustomerSpend   `json:"topCustomers"`
	SalesByDay   []DailySales      `json:"salesByDay"`
	HighValue    []HighValueOrder  `json:"highValue"`
	Monthly      []MonthlySales    `json:"monthly"`
}
