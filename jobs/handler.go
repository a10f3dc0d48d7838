package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// QueueInspector reports queue state; *asynq.Inspector implements it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue health and on-demand drift scans over HTTP.
type Handler struct {
	inspector QueueInspector
	client    *Client
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil client disables manual enqueueing.
func NewHandler(inspector QueueInspector, client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, client: client, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/stock-drift-scan", h.enqueueDriftScan)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := queueHealth{Queue: QueueDefault}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "")
			return
		}
		if info != nil {
			resp = queueHealth{Queue: info.Queue, Pending: info.Pending}
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type enqueued struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

func (h *Handler) enqueueDriftScan(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "job client not configured")
		return
	}
	payload := StockDriftScanPayload{
		Limit:  httpx.QueryInt(r, "limit", 0),
		Repair: r.URL.Query().Get("repair") == "true",
	}
	info, err := h.client.EnqueueStockDriftScan(r.Context(), payload)
	if err != nil {
		h.logger.Error("enqueue stock drift scan", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueued{TaskID: info.ID, Queue: info.Queue})
}
