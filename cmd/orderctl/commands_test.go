package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/storage"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories/memory"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

func TestSeedAdminUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()

	first, err := seedAdminUser(ctx, users)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, seedEmail, first.Email)
	assert.True(t, first.IsAdmin)

	second, err := seedAdminUser(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCheckSequenceName(t *testing.T) {
	assert.NoError(t, checkSequenceName("scratch", false))
	assert.Error(t, checkSequenceName(services.OrderCounterName, false))
	assert.Error(t, checkSequenceName(" order ", false))
	assert.NoError(t, checkSequenceName(services.OrderCounterName, true))
}

func TestReportOptionsFromFlags(t *testing.T) {
	opts, err := reportOptionsFromFlags(5, 7, 3, "150.25")
	require.NoError(t, err)
	assert.Equal(t, 5, opts.TopLimit)
	assert.Equal(t, 7, opts.Days)
	assert.Equal(t, 3, opts.Months)
	assert.True(t, opts.HighValueMin.Equal(decimal.RequireFromString("150.25")))

	opts, err = reportOptionsFromFlags(0, 0, 0, "")
	require.NoError(t, err)
	assert.True(t, opts.HighValueMin.IsZero())

	_, err = reportOptionsFromFlags(0, 0, 0, "lots")
	assert.Error(t, err)
}

type stubReportBuilder struct {
	report services.StatsReport
	err    error
	got    services.StatsReportOptions
}

func (s *stubReportBuilder) BuildReport(_ context.Context, opts services.StatsReportOptions) (services.StatsReport, error) {
	s.got = opts
	return s.report, s.err
}

type stubReportWriter struct {
	generatedAt time.Time
	report      any
}

func (s *stubReportWriter) Export(_ context.Context, generatedAt time.Time, report any) (storage.ExportResult, error) {
	s.generatedAt = generatedAt
	s.report = report
	return storage.ExportResult{Bucket: "reports", Object: "reports/stats/2024/05/02/r1.json"}, nil
}

func TestExportReportUploadsBuiltReport(t *testing.T) {
	generated := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	builder := &stubReportBuilder{report: services.StatsReport{GeneratedAt: generated}}
	writer := &stubReportWriter{}

	result, err := exportReport(context.Background(), builder, writer, services.StatsReportOptions{Days: 14})
	require.NoError(t, err)
	assert.Equal(t, "reports", result.Bucket)
	assert.Equal(t, 14, builder.got.Days)
	assert.True(t, writer.generatedAt.Equal(generated))
	assert.IsType(t, services.StatsReport{}, writer.report)
}

func TestExportReportStopsOnBuildFailure(t *testing.T) {
	builder := &stubReportBuilder{err: errors.New("firestore down")}
	writer := &stubReportWriter{}

	_, err := exportReport(context.Background(), builder, writer, services.StatsReportOptions{})
	require.Error(t, err)
	assert.Nil(t, writer.report)
}
