package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// StockReader is the read side used by the HTTP handler.
type StockReader interface {
	GetByLocation(ctx context.Context, itemID, warehouseID int64) (StockLevel, error)
	ListActive(ctx context.Context) ([]Warehouse, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	reader   StockReader
	resolver *WarehouseResolver
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, reader StockReader, resolver *WarehouseResolver) *Handler {
	return &Handler{logger: logger, reader: reader, resolver: resolver}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.listWarehouses)
	r.Get("/warehouses/default", h.defaultWarehouse)
	r.Post("/warehouses/default/refresh", h.refreshDefault)
	r.Get("/stock-levels/{itemID}/{warehouseID}", h.getStockLevel)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.reader.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if warehouses == nil {
		warehouses = []Warehouse{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses})
}

func (h *Handler) defaultWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.resolver.DefaultWarehouse(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.Classify(err, httpx.Rule{Target: ErrNoDefaultWarehouse, Class: httpx.ErrNotFound}))
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) refreshDefault(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Invalidate(r.Context()); err != nil {
		h.logger.Warn("invalidate default warehouse", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.defaultWarehouse(w, r)
}

func (h *Handler) getStockLevel(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.IDParam(r, "warehouseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	level, err := h.reader.GetByLocation(r.Context(), itemID, warehouseID)
	if err != nil {
		httpx.RespondError(w, httpx.Classify(err, httpx.Rule{Target: ErrStockLevelNotFound, Class: httpx.ErrNotFound}))
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}
