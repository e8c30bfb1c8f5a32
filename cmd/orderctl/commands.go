package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/storage"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

// Development admin account created by seed-user.
const (
	seedEmail     = "dev+admin@example.com"
	seedFirstName = "Dev"
	seedLastName  = "Admin"
)

type userUpserter interface {
	UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error)
}

type reportBuilder interface {
	BuildReport(ctx context.Context, opts services.StatsReportOptions) (services.StatsReport, error)
}

type reportWriter interface {
	Export(ctx context.Context, generatedAt time.Time, report any) (storage.ExportResult, error)
}

func seedAdminUser(ctx context.Context, users userUpserter) (domain.User, error) {
	if users == nil {
		return domain.User{}, errors.New("seed: user repository is required")
	}
	return users.UpsertByEmail(ctx, domain.User{
		FirstName: seedFirstName,
		LastName:  seedLastName,
		Email:     seedEmail,
		IsAdmin:   true,
	})
}

// checkSequenceName refuses to advance the order sequence by accident; every value it hands
// out is a public order id that would never be used.
func checkSequenceName(name string, force bool) error {
	if strings.TrimSpace(name) == services.OrderCounterName && !force {
		return fmt.Errorf("sequence %q numbers orders; pass --force to advance it", services.OrderCounterName)
	}
	return nil
}

func reportOptionsFromFlags(limit, days, months int, min string) (services.StatsReportOptions, error) {
	threshold, err := parseDecimalFlag(min)
	if err != nil {
		return services.StatsReportOptions{}, err
	}
	return services.StatsReportOptions{
		TopLimit:     limit,
		Days:         days,
		Months:       months,
		HighValueMin: threshold,
	}, nil
}

func exportReport(ctx context.Context, stats reportBuilder, writer reportWriter, opts services.StatsReportOptions) (storage.ExportResult, error) {
	report, err := stats.BuildReport(ctx, opts)
	if err != nil {
		return storage.ExportResult{}, err
	}
	return writer.Export(ctx, report.GeneratedAt, report)
}
