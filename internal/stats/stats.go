// Package stats reduces a set of orders into reporting aggregates. Every function is pure:
// callers load the orders once and pass the clock explicitly.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
)

const (
	DefaultTopLimit       = 5
	DefaultSalesDays      = 7
	DefaultMonths         = 6
	DefaultHighValueLimit = 20
	MaxLimit              = 100

	dayLayout = "2006-01-02"
)

// DefaultHighValueMin is the threshold used when the caller supplies none.
var DefaultHighValueMin = decimal.NewFromInt(100)

// NormalizeLimit falls back to def for non-positive values and caps at max when max > 0.
func NormalizeLimit(value, def, max int) int {
	if value <= 0 {
		value = def
	}
	if max > 0 && value > max {
		value = max
	}
	return value
}

// AverageOrderValue returns the mean order total. An empty set yields {0, 0}.
func AverageOrderValue(orders []domain.Order) domain.OrderValueAverage {
	if len(orders) == 0 {
		return domain.OrderValueAverage{Average: decimal.Zero}
	}
	sum := decimal.Zero
	for _, order := range orders {
		sum = sum.Add(order.Summary.Total)
	}
	return domain.OrderValueAverage{
		Average: sum.Div(decimal.NewFromInt(int64(len(orders)))),
		Count:   len(orders),
	}
}

// TopProducts groups items by name and ranks by quantity sold, then name.
func TopProducts(orders []domain.Order, limit int) []domain.ProductSales {
	limit = NormalizeLimit(limit, DefaultTopLimit, MaxLimit)

	byName := make(map[string]*domain.ProductSales)
	for _, order := range orders {
		for _, item := range order.Items {
			entry, ok := byName[item.Name]
			if !ok {
				entry = &domain.ProductSales{Name: item.Name, TotalRevenue: decimal.Zero}
				byName[item.Name] = entry
			}
			entry.TotalQuantity += item.Quantity
			entry.TotalRevenue = entry.TotalRevenue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	result := make([]domain.ProductSales, 0, len(byName))
	for _, entry := range byName {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalQuantity != result[j].TotalQuantity {
			return result[i].TotalQuantity > result[j].TotalQuantity
		}
		return result[i].Name < result[j].Name
	})
	return truncate(result, limit)
}

// TopCustomers groups orders by user and ranks by spend, then user id. User display
// fields are left empty; see AttachUsers.
func TopCustomers(orders []domain.Order, limit int) []domain.CustomerSpend {
	limit = NormalizeLimit(limit, DefaultTopLimit, MaxLimit)

	byUser := make(map[string]*domain.CustomerSpend)
	for _, order := range orders {
		entry, ok := byUser[order.UserID]
		if !ok {
			entry = &domain.CustomerSpend{UserID: order.UserID, TotalSpent: decimal.Zero}
			byUser[order.UserID] = entry
		}
		entry.TotalSpent = entry.TotalSpent.Add(order.Summary.Total)
		entry.Orders++
	}

	result := make([]domain.CustomerSpend, 0, len(byUser))
	for _, entry := range byUser {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if cmp := result[i].TotalSpent.Cmp(result[j].TotalSpent); cmp != 0 {
			return cmp > 0
		}
		return result[i].UserID < result[j].UserID
	})
	return truncate(result, limit)
}

// CustomerIDs lists the user ids of ranked customers in rank order.
func CustomerIDs(customers []domain.CustomerSpend) []string {
	ids := make([]string, 0, len(customers))
	for _, customer := range customers {
		ids = append(ids, customer.UserID)
	}
	return ids
}

// AttachUsers joins display fields onto ranked customers. Users missing from the directory
// get a placeholder carrying only their id.
func AttachUsers(customers []domain.CustomerSpend, users map[string]domain.UserDisplay) []domain.CustomerSpend {
	out := make([]domain.CustomerSpend, len(customers))
	for i, customer := range customers {
		display, ok := users[customer.UserID]
		if !ok {
			display = domain.UserDisplay{ID: customer.UserID}
		}
		customer.User = &display
		out[i] = customer
	}
	return out
}

// SalesByDay buckets orders created within the last days×24h by UTC calendar day.
func SalesByDay(orders []domain.Order, days int, now time.Time) []domain.DailySales {
	since := SalesWindowStart(days, now)

	byDay := make(map[string]*domain.DailySales)
	for _, order := range orders {
		if order.CreatedAt.Before(since) {
			continue
		}
		day := order.CreatedAt.UTC().Format(dayLayout)
		entry, ok := byDay[day]
		if !ok {
			entry = &domain.DailySales{Day: day, TotalRevenue: decimal.Zero}
			byDay[day] = entry
		}
		entry.TotalRevenue = entry.TotalRevenue.Add(order.Summary.Total)
		entry.Orders++
	}

	result := make([]domain.DailySales, 0, len(byDay))
	for _, entry := range byDay {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result
}

// SalesWindowStart is the inclusive lower bound used by SalesByDay.
func SalesWindowStart(days int, now time.Time) time.Time {
	days = NormalizeLimit(days, DefaultSalesDays, 0)
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// HighValueOrders projects orders whose total is at least min, largest first.
// A zero min falls back to DefaultHighValueMin; a negative one is used as given.
func HighValueOrders(orders []domain.Order, min decimal.Decimal, limit int) []domain.HighValueOrder {
	if min.IsZero() {
		min = DefaultHighValueMin
	}
	limit = NormalizeLimit(limit, DefaultHighValueLimit, MaxLimit)

	result := make([]domain.HighValueOrder, 0)
	for _, order := range orders {
		if order.Summary.Total.LessThan(min) {
			continue
		}
		result = append(result, domain.HighValueOrder{
			PublicID: order.PublicID,
			Total:    order.Summary.Total,
			UserID:   order.UserID,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if cmp := result[i].Total.Cmp(result[j].Total); cmp != 0 {
			return cmp > 0
		}
		return result[i].PublicID < result[j].PublicID
	})
	return truncate(result, limit)
}

// MonthlySummary buckets orders by UTC (year, month), starting at the first day of the month
// months-1 before now.
func MonthlySummary(orders []domain.Order, months int, now time.Time) []domain.MonthlySales {
	since := MonthWindowStart(months, now)

	type monthKey struct {
		year  int
		month time.Month
	}
	byMonth := make(map[monthKey]*domain.MonthlySales)
	for _, order := range orders {
		created := order.CreatedAt.UTC()
		if created.Before(since) {
			continue
		}
		key := monthKey{year: created.Year(), month: created.Month()}
		entry, ok := byMonth[key]
		if !ok {
			entry = &domain.MonthlySales{Year: key.year, Month: key.month, TotalRevenue: decimal.Zero}
			byMonth[key] = entry
		}
		entry.TotalRevenue = entry.TotalRevenue.Add(order.Summary.Total)
		entry.Orders++
	}

	result := make([]domain.MonthlySales, 0, len(byMonth))
	for _, entry := range byMonth {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result
}

// MonthWindowStart is the inclusive lower bound used by MonthlySummary.
func MonthWindowStart(months int, now time.Time) time.Time {
	months = NormalizeLimit(months, DefaultMonths, 0)
	now = now.UTC()
	return time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
