package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned at placement.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment has been recorded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped is terminal; the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCancelled is terminal; only pending orders may reach it.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is the aggregate persisted per placement. ID is the internal storage key,
// PublicID the sequential identifier exposed to callers.
type Order struct {
	ID        string
	PublicID  string
	UserID    string
	Items     []OrderItem
	Status    OrderStatus
	Summary   OrderSummary
	Payment   OrderPayment
	Shipping  OrderShipping
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is an immutable line of an order.
type OrderItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// OrderSummary caches the reduction of an order's items.
type OrderSummary struct {
	Total       decimal.Decimal
	ItemCount   int
	LastUpdated time.Time
}

// OrderPayment records how an order was paid. Nothing is charged.
type OrderPayment struct {
	Method        string
	PaidAt        *time.Time
	TransactionID *string
}

// OrderShipping is populated when the order ships.
type OrderShipping struct {
	Carrier        *string
	TrackingNumber *string
	ShippedAt      *time.Time
}

// User is the minimal directory record needed by order placement and reporting.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName joins the first and last names.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// UserDisplay carries the user fields rendered alongside customer statistics.
type UserDisplay struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// OrderValueAverage is the mean order total.
type OrderValueAverage struct {
	Average decimal.Decimal `json:"avgValue"`
	Count   int             `json:"count"`
}

// ProductSales aggregates one product name across all orders.
type ProductSales struct {
	Name          string          `json:"name"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
}

// CustomerSpend aggregates the orders of one user. User is nil when the directory has no record.
type CustomerSpend struct {
	UserID     string          `json:"userId"`
	User       *UserDisplay    `json:"user,omitempty"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
	Orders     int             `json:"orders"`
}

// DailySales aggregates orders created on one UTC calendar day.
type DailySales struct {
	Day          string          `json:"day"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Orders       int             `json:"orders"`
}

// HighValueOrder is the projection returned for orders above a total threshold.
type HighValueOrder struct {
	PublicID string          `json:"id"`
	Total    decimal.Decimal `json:"total"`
	UserID   string          `json:"userId"`
}

// MonthlySales aggregates orders created in one UTC calendar month.
type MonthlySales struct {
	Year         int             `json:"year"`
	Month        time.Month      `json:"month"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Orders       int             `json:"orders"`
}
