package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped},
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RecalculateSummary reduces items into a summary stamped with now.
// The result depends only on items; callers pass the clock.
func RecalculateSummary(items []OrderItem, now time.Time) OrderSummary {
	total := decimal.Zero
	count := 0
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	return OrderSummary{
		Total:       total,
		ItemCount:   count,
		LastUpdated: now,
	}
}

// Coalesce returns the first value that is not blank, or "" when all are.
// Precedence is positional: given value, then the stored value, then a default.
func Coalesce(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// CoalescePtr is Coalesce over optional values; nil is returned when nothing is set.
func CoalescePtr(values ...*string) *string {
	for _, value := range values {
		if value != nil && strings.TrimSpace(*value) != "" {
			v := *value
			return &v
		}
	}
	return nil
}

// FormatPublicID renders a sequence value as the fixed-width public identifier.
func FormatPublicID(value int64) string {
	return PadSequence(value, PublicIDWidth)
}

// PublicIDWidth is the zero-padded width of order public identifiers.
const PublicIDWidth = 6

// PadSequence left-pads value with zeros up to width digits.
func PadSequence(value int64, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}
