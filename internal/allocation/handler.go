package allocation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/sales/orders"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// IdempotencyHeader carries the client-chosen submission key.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

var errorRules = []httpx.Rule{
	{Target: orders.ErrNotFound, Class: httpx.ErrNotFound},
	{Target: shared.ErrIdempotencyConflict, Class: httpx.ErrConflict},
	{Target: ErrInvalidRequest, Class: httpx.ErrValidation},
	{Target: ErrExceedsAvailable, Class: httpx.ErrUnprocessable},
	{Target: ErrNoItemsSelected, Class: httpx.ErrUnprocessable},
	{Target: ErrWarehouseRequired, Class: httpx.ErrUnprocessable},
	{Target: ErrUnknownLine, Class: httpx.ErrUnprocessable},
	{Target: ErrDuplicateLine, Class: httpx.ErrUnprocessable},
	{Target: ErrOrderNotAllocatable, Class: httpx.ErrUnprocessable},
}

// Mount registers document routes under an order's /{id} route.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/invoices", h.CreateInvoice)
	r.Post("/delivery-notes", h.CreateDeliveryNotes)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.CreateInvoice(r.Context(), orderID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

// CreateDeliveryNotes answers 207 when some warehouse groups failed.
func (h *Handler) CreateDeliveryNotes(w http.ResponseWriter, r *http.Request) {
	orderID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.CreateDeliveryNotes(r.Context(), orderID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if len(result.PerWarehouseErrors) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (int64, Request, bool) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, Request{}, false
	}
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return 0, Request{}, false
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	return orderID, req, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	classified := httpx.Classify(err, errorRules...)
	if !httpx.IsClientError(classified) {
		h.logger.Error("allocation request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}
