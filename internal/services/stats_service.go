package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
	"github.com/StevenEgasJ/HomeworkOrders/internal/stats"
)

// ErrStatsUnavailable indicates the order or user store could not be read.
var ErrStatsUnavailable = errors.New("stats: storage unavailable")

// StatsCache is a read-through cache for serialised aggregates.
type StatsCache interface {
	Fetch(ctx context.Context, key string, load func(context.Context) ([]byte, error)) ([]byte, error)
	Invalidate(ctx context.Context) error
}

// StatsServiceDeps bundles collaborators required to construct the stats service.
type StatsServiceDeps struct {
	Orders         repositories.OrderRepository
	Users          repositories.UserRepository
	Cache          StatsCache
	Clock          func() time.Time
	MaxLimit       int
	HighValueLimit int
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type statsService struct {
	orders         repositories.OrderRepository
	users          repositories.UserRepository
	cache          StatsCache
	clock          func() time.Time
	maxLimit       int
	highValueLimit int
	logger         func(context.Context, string, map[string]any)
}

// NewStatsService wires the aggregation functions to the repositories.
func NewStatsService(deps StatsServiceDeps) (StatsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("stats service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("stats service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	maxLimit := deps.MaxLimit
	if maxLimit <= 0 {
		maxLimit = stats.MaxLimit
	}
	highValueLimit := deps.HighValueLimit
	if highValueLimit <= 0 {
		highValueLimit = stats.DefaultHighValueLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &statsService{
		orders: deps.Orders,
		users:  deps.Users,
		cache:  deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		maxLimit:       maxLimit,
		highValueLimit: highValueLimit,
		logger:         logger,
	}, nil
}

func (s *statsService) AverageOrderValue(ctx context.Context) (OrderValueAverage, error) {
	return cached(ctx, s, "average", func(ctx context.Context) (OrderValueAverage, error) {
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{})
		if err != nil {
			return OrderValueAverage{}, s.wrap(err)
		}
		return stats.AverageOrderValue(orders), nil
	})
}

func (s *statsService) TopProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	limit = stats.NormalizeLimit(limit, stats.DefaultTopLimit, s.maxLimit)
	return cached(ctx, s, fmt.Sprintf("top-products:%d", limit), func(ctx context.Context) ([]ProductSales, error) {
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{})
		if err != nil {
			return nil, s.wrap(err)
		}
		return stats.TopProducts(orders, limit), nil
	})
}

func (s *statsService) TopCustomers(ctx context.Context, limit int) ([]CustomerSpend, error) {
	limit = stats.NormalizeLimit(limit, stats.DefaultTopLimit, s.maxLimit)
	return cached(ctx, s, fmt.Sprintf("top-customers:%d", limit), func(ctx context.Context) ([]CustomerSpend, error) {
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{})
		if err != nil {
			return nil, s.wrap(err)
		}
		ranked := stats.TopCustomers(orders, limit)
		if len(ranked) == 0 {
			return ranked, nil
		}
		users, err := s.users.FindMany(ctx, stats.CustomerIDs(ranked))
		if err != nil {
			return nil, s.wrap(err)
		}
		return stats.AttachUsers(ranked, users), nil
	})
}

func (s *statsService) SalesByDay(ctx context.Context, days int) ([]DailySales, error) {
	days = stats.NormalizeLimit(days, stats.DefaultSalesDays, 0)
	return cached(ctx, s, fmt.Sprintf("sales-by-day:%d", days), func(ctx context.Context) ([]DailySales, error) {
		now := s.clock()
		since := stats.SalesWindowStart(days, now)
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{CreatedFrom: &since})
		if err != nil {
			return nil, s.wrap(err)
		}
		return stats.SalesByDay(orders, days, now), nil
	})
}

func (s *statsService) HighValueOrders(ctx context.Context, min decimal.Decimal) ([]HighValueOrder, error) {
	if min.IsZero() {
		min = stats.DefaultHighValueMin
	}
	return cached(ctx, s, "high-value:"+min.String(), func(ctx context.Context) ([]HighValueOrder, error) {
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{MinTotal: &min})
		if err != nil {
			return nil, s.wrap(err)
		}
		return stats.HighValueOrders(orders, min, s.highValueLimit), nil
	})
}

func (s *statsService) MonthlySummary(ctx context.Context, months int) ([]MonthlySales, error) {
	months = stats.NormalizeLimit(months, stats.DefaultMonths, 0)
	return cached(ctx, s, fmt.Sprintf("monthly-summary:%d", months), func(ctx context.Context) ([]MonthlySales, error) {
		now := s.clock()
		since := stats.MonthWindowStart(months, now)
		orders, err := s.orders.Query(ctx, repositories.OrderQuery{CreatedFrom: &since})
		if err != nil {
			return nil, s.wrap(err)
		}
		return stats.MonthlySummary(orders, months, now), nil
	})
}

// BuildReport computes every aggregate from a single order read, bypassing the cache.
func (s *statsService) BuildReport(ctx context.Context, opts StatsReportOptions) (StatsReport, error) {
	orders, err := s.orders.Query(ctx, repositories.OrderQuery{})
	if err != nil {
		return StatsReport{}, s.wrap(err)
	}

	now := s.clock()
	topLimit := stats.NormalizeLimit(opts.TopLimit, stats.DefaultTopLimit, s.maxLimit)
	customers := stats.TopCustomers(orders, topLimit)
	if len(customers) > 0 {
		users, err := s.users.FindMany(ctx, stats.CustomerIDs(customers))
		if err != nil {
			return StatsReport{}, s.wrap(err)
		}
		customers = stats.AttachUsers(customers, users)
	}

	return StatsReport{
		GeneratedAt:  now,
		Average:      stats.AverageOrderValue(orders),
		TopProducts:  stats.TopProducts(orders, topLimit),
		TopCustomers: customers,
		SalesByDay:   stats.SalesByDay(orders, opts.Days, now),
		HighValue:    stats.HighValueOrders(orders, opts.HighValueMin, s.highValueLimit),
		Monthly:      stats.MonthlySummary(orders, opts.Months, now),
	}, nil
}

func (s *statsService) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
}

// cached serves key from the cache when one is configured. Cache failures fall back to load.
func cached[T any](ctx context.Context, s *statsService, key string, load func(context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return load(ctx)
	}

	var loaded bool
	var fresh T
	raw, err := s.cache.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		loaded, fresh = true, value
		return json.Marshal(value)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if loaded {
		return fresh, nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger(ctx, "stats.cache.decode_failed", map[string]any{"key": key, "error": err.Error()})
		return load(ctx)
	}
	return value, nil
}
