package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/StevenEgasJ/HomeworkOrders/internal/di"
	"github.com/StevenEgasJ/HomeworkOrders/internal/handlers"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/cache"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/config"
	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/idempotency"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/jobs"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/observability"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/secrets"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
	firestoreRepo "github.com/StevenEgasJ/HomeworkOrders/internal/repositories/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories/memory"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

const (
	idempotencyCleanupInterval  = 10 * time.Minute
	idempotencyCleanupBatchSize = 200
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("ORDERS_ENVIRONMENT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var extraChecks []repositories.DependencyCheck

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to initialise redis client", zap.Error(err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Optional: true,
			Check:    cache.Ping(redisClient),
		})
	}

	publisher, topic, pubsubClient, err := newEventPublisher(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  2 * time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}

	registry, provider, err := newRegistry(cfg, extraChecks)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfoFromEnv(cfg, startedAt)),
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(publisher))
	}
	if redisClient != nil {
		statsCache, err := cache.NewStatsCache(redisClient,
			cache.WithTTL(cfg.Redis.TTL),
			cache.WithLogger(observability.ServiceLogger(logger.Named("cache"))),
		)
		if err != nil {
			logger.Fatal("failed to initialise stats cache", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithStatsCache(statsCache))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	idempotencyStore, err := newIdempotencyStore(provider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(idempotencyCleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), idempotencyCleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt)),
	)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)
	statsHandlers := handlers.NewStatsHandlers(container.Services.Stats)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		observability.CORSMiddleware(cfg.Server.CORSOrigin, cfg.Idempotency.Header),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithStatsRoutes(statsHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
		handlers.WithUnversionedOrders(),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("ORDERS_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("ORDERS_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	defaultProject := strings.TrimSpace(os.Getenv("ORDERS_SECRET_DEFAULT_PROJECT_ID"))
	if defaultProject == "" {
		defaultProject = strings.TrimSpace(os.Getenv("ORDERS_FIRESTORE_PROJECT_ID"))
	}
	if defaultProject == "" {
		defaultProject = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}
	fallbackPath := strings.TrimSpace(os.Getenv("ORDERS_SECRET_FALLBACK_FILE"))
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func newRegistry(cfg config.Config, extraChecks []repositories.DependencyCheck) (repositories.Registry, *pfirestore.Provider, error) {
	if cfg.Store == config.StoreMemory {
		return memory.NewRegistry(), nil, nil
	}
	provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout))
	registry, err := firestoreRepo.NewRegistry(provider, extraChecks...)
	if err != nil {
		return nil, nil, err
	}
	return registry, provider, nil
}

func newEventPublisher(ctx context.Context, cfg config.PubSubConfig) (services.OrderEventPublisher, *pubsub.Topic, *pubsub.Client, error) {
	topicID := strings.TrimSpace(cfg.TopicID)
	if topicID == "" || strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, nil, nil, nil
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if err := os.Setenv("PUBSUB_EMULATOR_HOST", host); err != nil {
			return nil, nil, nil, fmt.Errorf("pubsub: set emulator host: %w", err)
		}
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	topic := client.Topic(topicID)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	return publisher, topic, client, nil
}

func newIdempotencyStore(provider *pfirestore.Provider, redisClient *redis.Client) (idempotency.Store, error) {
	switch {
	case redisClient != nil:
		store, err := idempotency.NewRedisStore(redisClient, "")
		if err != nil {
			return nil, err
		}
		return store, nil
	case provider != nil:
		store, err := idempotency.NewFirestoreStore(provider, "")
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}
