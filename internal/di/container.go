package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/config"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/observability"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

// Services bundles the service-layer contracts that handlers and the CLI rely upon.
type Services struct {
	Counters services.CounterService
	Orders   services.OrderService
	Stats    services.StatsService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises optional collaborators of the container.
type Option func(*options)

type options struct {
	events services.OrderEventPublisher
	cache  services.StatsCache
	meter  metric.Meter
	logger *zap.Logger
	build  services.BuildInfo
	clock  func() time.Time
}

// WithEventPublisher publishes order lifecycle events after each committed write.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithStatsCache shares the aggregation cache between the stats reader and the order writer.
func WithStatsCache(cache services.StatsCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithMeter overrides the meter used for order transition counters.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithLogger sets the base logger services fall back to outside of a request.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBuildInfo reports build metadata through the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithClock injects a clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies on top of the given repository registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	svc, err := buildServices(ctx, reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	orderDeps := services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Users:    reg.Users(),
		Counters: counterSvc,
		Events:   o.events,
		Clock:    o.clock,
		Meter:    o.meter,
		Logger:   observability.ServiceLogger(o.logger.Named("orders")),
	}
	if o.cache != nil {
		orderDeps.Cache = o.cache
	}
	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	statsSvc, err := services.NewStatsService(services.StatsServiceDeps{
		Orders:         reg.Orders(),
		Users:          reg.Users(),
		Cache:          o.cache,
		Clock:          o.clock,
		MaxLimit:       cfg.Stats.MaxLimit,
		HighValueLimit: cfg.Stats.HighValueLimit,
		Logger:         observability.ServiceLogger(o.logger.Named("stats")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stats service: %w", err)
	}
	svc.Stats = statsSvc

	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            o.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
