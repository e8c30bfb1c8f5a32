package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/httpx"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

// StatsHandlers exposes the reporting aggregates under /orders/stats.
type StatsHandlers struct {
	stats services.StatsService
}

// NewStatsHandlers constructs a new StatsHandlers instance.
func NewStatsHandlers(stats services.StatsService) *StatsHandlers {
	return &StatsHandlers{stats: stats}
}

// Routes registers the aggregate endpoints. Missing or invalid parameters use the defaults.
func (h *StatsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/average", h.average)
	r.Get("/top-products", h.topProducts)
	r.Get("/top-customers", h.topCustomers)
	r.Get("/sales-by-day", h.salesByDay)
	r.Get("/high-value", h.highValue)
	r.Get("/monthly-summary", h.monthlySummary)
}

type averagePayload struct {
	AvgValue decimal.Decimal `json:"avgValue"`
	Count    int             `json:"count"`
}

type productSalesPayload struct {
	Name          string          `json:"name"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
}

type customerSpendPayload struct {
	User       customerUserPayload `json:"user"`
	TotalSpent decimal.Decimal     `json:"totalSpent"`
	Orders     int                 `json:"orders"`
}

type customerUserPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

type dailySalesPayload struct {
	Day          string          `json:"day"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Orders       int             `json:"orders"`
}

type highValuePayload struct {
	ID     string          `json:"id"`
	Total  decimal.Decimal `json:"total"`
	UserID string          `json:"userId"`
}

type monthlySalesPayload struct {
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Orders       int             `json:"orders"`
}

func (h *StatsHandlers) average(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	avg, err := h.stats.AverageOrderValue(ctx)
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, averagePayload{AvgValue: avg.Average, Count: avg.Count})
}

func (h *StatsHandlers) topProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	products, err := h.stats.TopProducts(ctx, queryInt(r, "limit"))
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	payload := make([]productSalesPayload, 0, len(products))
	for _, p := range products {
		payload = append(payload, productSalesPayload{Name: p.Name, TotalQuantity: p.TotalQuantity, TotalRevenue: p.TotalRevenue})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatsHandlers) topCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	customers, err := h.stats.TopCustomers(ctx, queryInt(r, "limit"))
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	payload := make([]customerSpendPayload, 0, len(customers))
	for _, c := range customers {
		user := customerUserPayload{ID: c.UserID}
		if c.User != nil {
			user.DisplayName = c.User.DisplayName
			user.Email = c.User.Email
		}
		payload = append(payload, customerSpendPayload{User: user, TotalSpent: c.TotalSpent, Orders: c.Orders})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatsHandlers) salesByDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	days, err := h.stats.SalesByDay(ctx, queryInt(r, "days"))
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	payload := make([]dailySalesPayload, 0, len(days))
	for _, d := range days {
		payload = append(payload, dailySalesPayload{Day: d.Day, TotalRevenue: d.TotalRevenue, Orders: d.Orders})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatsHandlers) highValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	orders, err := h.stats.HighValueOrders(ctx, queryDecimal(r, "min"))
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	payload := make([]highValuePayload, 0, len(orders))
	for _, o := range orders {
		payload = append(payload, highValuePayload{ID: o.PublicID, Total: o.Total, UserID: o.UserID})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatsHandlers) monthlySummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	months, err := h.stats.MonthlySummary(ctx, queryInt(r, "months"))
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	payload := make([]monthlySalesPayload, 0, len(months))
	for _, m := range months {
		payload = append(payload, monthlySalesPayload{Year: m.Year, Month: int(m.Month), TotalRevenue: m.TotalRevenue, Orders: m.Orders})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatsHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stats_service_unavailable", "stats service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func writeStatsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStatsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("stats_unavailable", "order statistics are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stats_error", "failed to compute statistics", http.StatusInternalServerError))
	}
}
