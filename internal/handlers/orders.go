package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/httpx"
	"github.com/StevenEgasJ/HomeworkOrders/internal/services"
)

const maxOrderBodySize = 32 * 1024

type placeOrderRequest struct {
	UserID        string                  `json:"userId"`
	Items         []placeOrderItemRequest `json:"items"`
	PaymentMethod string                  `json:"paymentMethod"`
}

type placeOrderItemRequest struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type payOrderRequest struct {
	Method        string  `json:"method"`
	TransactionID *string `json:"transactionId"`
}

type shipOrderRequest struct {
	Carrier        *string `json:"carrier"`
	TrackingNumber *string `json:"trackingNumber"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Transitions accept both /{id}:pay and /{id}/pay.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/{orderID}", h.getOrder)
	for _, sep := range []string{":", "/"} {
		r.Post("/{orderID}"+sep+"pay", h.payOrder)
		r.Post("/{orderID}"+sep+"ship", h.shipOrder)
		r.Post("/{orderID}"+sep+"cancel", h.cancelOrder)
	}
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}

	var req placeOrderRequest
	if !decodeOrderBody(w, r, &req, true) {
		return
	}

	items := make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	order, err := h.orders.Place(ctx, services.PlaceOrderCommand{
		UserID:        strings.TrimSpace(req.UserID),
		Items:         items,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req payOrderRequest
	if !decodeOrderBody(w, r, &req, false) {
		return
	}

	order, err := h.orders.Pay(ctx, services.PayOrderCommand{
		PublicID:      orderID,
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req shipOrderRequest
	if !decodeOrderBody(w, r, &req, false) {
		return
	}

	order, err := h.orders.Ship(ctx, services.ShipOrderCommand{
		PublicID:       orderID,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

// decodeOrderBody reads a JSON body into dst. Transition bodies are optional.
func decodeOrderBody(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		if errors.Is(err, errEmptyBody) && !required {
			return true
		}
		writeBodyError(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type orderPayload struct {
	ID        string                `json:"id"`
	Status    string                `json:"status"`
	UserID    string                `json:"userId"`
	Items     []orderItemPayload    `json:"items"`
	Summary   orderSummaryPayload   `json:"summary"`
	Payment   orderPaymentPayload   `json:"payment"`
	Shipping  *orderShippingPayload `json:"shipping,omitempty"`
	CreatedAt string                `json:"createdAt"`
	UpdatedAt string                `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderSummaryPayload struct {
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
}

type orderPaymentPayload struct {
	Method        string  `json:"method"`
	PaidAt        string  `json:"paidAt,omitempty"`
	TransactionID *string `json:"transactionId,omitempty"`
}

type orderShippingPayload struct {
	Carrier        *string `json:"carrier,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	ShippedAt      string  `json:"shippedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:     strings.TrimSpace(order.PublicID),
		Status: string(order.Status),
		UserID: strings.TrimSpace(order.UserID),
		Items:  make([]orderItemPayload, 0, len(order.Items)),
		Summary: orderSummaryPayload{
			Total:       order.Summary.Total,
			ItemCount:   order.Summary.ItemCount,
			LastUpdated: formatTime(order.Summary.LastUpdated),
		},
		Payment: orderPaymentPayload{
			Method:        order.Payment.Method,
			PaidAt:        formatTime(pointerTime(order.Payment.PaidAt)),
			TransactionID: cloneStringPointer(order.Payment.TransactionID),
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	if ship := order.Shipping; ship.Carrier != nil || ship.TrackingNumber != nil || ship.ShippedAt != nil {
		payload.Shipping = &orderShippingPayload{
			Carrier:        cloneStringPointer(ship.Carrier),
			TrackingNumber: cloneStringPointer(ship.TrackingNumber),
			ShippedAt:      formatTime(pointerTime(ship.ShippedAt)),
		}
	}
	return payload
}

func writeOrderServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
