package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/StevenEgasJ/HomeworkOrders/internal/di"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/config"
	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/observability"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/secrets"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/storage"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
	firestoreRepo "github.com/StevenEgasJ/HomeworkOrders/internal/repositories/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories/memory"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "orderctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "orderctl",
		Usage: "operational tasks for the orders service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file merged under the process environment",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "seed-user",
				Usage:  "create or update the development admin user",
				Action: withRuntime(runSeedUser),
			},
			{
				Name:  "next-value",
				Usage: "allocate the next value of a named sequence",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "sequence name"},
					&cli.BoolFlag{Name: "force", Usage: "allow advancing the order number sequence"},
				},
				Before: func(c *cli.Context) error {
					return checkSequenceName(c.String("name"), c.Bool("force"))
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					value, err := rt.container.Services.Counters.NextValue(c.Context, c.String("name"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, value)
					return err
				}),
			},
			{
				Name:  "export-report",
				Usage: "compute every order aggregate and upload the snapshot to Cloud Storage",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "top products and customers to include"},
					&cli.IntFlag{Name: "days", Usage: "days of daily sales to include"},
					&cli.IntFlag{Name: "months", Usage: "months of monthly sales to include"},
					&cli.StringFlag{Name: "min", Usage: "high value order threshold"},
				},
				Action: withRuntime(runExportReport),
			},
		},
	}
}

type runtime struct {
	cfg       config.Config
	logger    *zap.Logger
	container *di.Container
}

func withRuntime(action func(*cli.Context, *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, closeFn, err := newRuntime(c.Context, c.String("env-file"))
		if err != nil {
			return err
		}
		defer closeFn()
		return action(c, rt)
	}
}

func newRuntime(ctx context.Context, envFile string) (*runtime, func(), error) {
	logger, err := observability.NewLogger(os.Getenv("ORDERS_ENVIRONMENT"))
	if err != nil {
		return nil, nil, fmt.Errorf("initialise logger: %w", err)
	}
	logger = logger.Named("orderctl")

	fetcherOpts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); project != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithDefaultProject(project))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}

	cfg, err := config.Load(ctx,
		config.WithEnvFile(envFile),
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		_ = fetcher.Close()
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	var registry repositories.Registry
	if cfg.Store == config.StoreMemory {
		registry = memory.NewRegistry()
	} else {
		provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout))
		registry, err = firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = fetcher.Close()
			return nil, nil, fmt.Errorf("initialise repositories: %w", err)
		}
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.WithLogger(logger))
	if err != nil {
		_ = registry.Close(ctx)
		_ = fetcher.Close()
		return nil, nil, fmt.Errorf("initialise services: %w", err)
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return &runtime{cfg: cfg, logger: logger, container: container}, closeFn, nil
}

func runSeedUser(c *cli.Context, rt *runtime) error {
	user, err := seedAdminUser(c.Context, rt.container.Repositories.Users())
	if err != nil {
		return err
	}
	rt.logger.Info("seeded user", zap.String("userId", user.ID), zap.String("email", user.Email))
	return writeJSON(c.App.Writer, map[string]any{
		"id":      user.ID,
		"email":   user.Email,
		"isAdmin": user.IsAdmin,
	})
}

func runExportReport(c *cli.Context, rt *runtime) error {
	opts, err := reportOptionsFromFlags(c.Int("limit"), c.Int("days"), c.Int("months"), c.String("min"))
	if err != nil {
		return err
	}

	client, err := cloudstorage.NewClient(c.Context)
	if err != nil {
		return fmt.Errorf("initialise storage client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			rt.logger.Warn("storage close error", zap.Error(err))
		}
	}()

	exporter, err := newReportExporter(rt.cfg.Storage, client, rt.logger)
	if err != nil {
		return err
	}

	result, err := exportReport(c.Context, rt.container.Services.Stats, exporter, opts)
	if err != nil {
		return err
	}
	rt.logger.Info("exported stats report", zap.String("object", result.Object), zap.Int("bytes", result.Size))
	return writeJSON(c.App.Writer, result)
}

func newReportExporter(cfg config.StorageConfig, client *cloudstorage.Client, logger *zap.Logger) (*storage.ReportExporter, error) {
	if strings.TrimSpace(cfg.ReportsBucket) == "" {
		return nil, fmt.Errorf("ORDERS_STORAGE_REPORTS_BUCKET is required for report export")
	}
	store, err := storage.NewGCSStore(client)
	if err != nil {
		return nil, err
	}

	opts := []storage.ExporterOption{storage.WithExporterLogger(logger.Named("storage"))}
	if key := strings.TrimSpace(cfg.SignerKey); key != "" {
		signer, err := storage.NewServiceAccountSignerFromJSON([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("parse storage signer key: %w", err)
		}
		urlSigner, err := storage.NewURLSigner(signer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithURLSigner(urlSigner, cfg.URLExpiry))
	}
	return storage.NewReportExporter(store, cfg.ReportsBucket, cfg.ReportsPrefix, opts...)
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func parseDecimalFlag(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --min %q: %w", raw, err)
	}
	return value, nil
}
