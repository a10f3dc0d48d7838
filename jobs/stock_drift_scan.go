package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
)

// DriftStore reads and repairs stock levels.
type DriftStore interface {
	ListDrifted(ctx context.Context, limit int) ([]inventory.StockLevel, error)
	RepairAvailable(ctx context.Context, level inventory.StockLevel) (bool, error)
}

// StockDriftScanJob finds stock rows where available != on_hand - reserved.
type StockDriftScanJob struct {
	Store   DriftStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Repair  bool
	clock   func() time.Time
}

// NewStockDriftScanJob initialises the drift scan handler. repair is the default
// applied when a task payload does not ask for it.
func NewStockDriftScanJob(store DriftStore, logger *slog.Logger, metrics *jobmetrics.Metrics, repair bool) *StockDriftScanJob {
	return &StockDriftScanJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		Repair:  repair,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DriftSummary reports one scan run.
type DriftSummary struct {
	Drifted  int
	Repaired int
}

// Handle executes the drift scan for an Asynq task.
func (j *StockDriftScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stock drift scan: handler not configured")
	}
	var payload StockDriftScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run scans and optionally repairs drifted rows.
func (j *StockDriftScanJob) Run(ctx context.Context, payload StockDriftScanPayload) (summary DriftSummary, err error) {
	tracker := j.Metrics.Track(TaskStockDriftScan)
	defer func() {
		err = tracker.End(err)
	}()
	if j.Store == nil {
		return summary, errors.New("stock drift scan: store not configured")
	}

	start := j.now()
	repair := payload.Repair || j.Repair
	logger := j.logger().With(slog.Bool("repair", repair), slog.Int("limit", payload.Limit))
	logger.Info("starting stock drift scan")

	levels, err := j.Store.ListDrifted(ctx, payload.Limit)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return summary, fmt.Errorf("stock drift scan: %w", err)
	}

	drifted := make(map[int64]int)
	repaired := make(map[int64]int)
	for _, level := range levels {
		if !level.Drifted() {
			continue
		}
		summary.Drifted++
		logger.Warn("stock drift detected",
			slog.Int64("item_id", level.ItemID),
			slog.Int64("warehouse_id", level.WarehouseID),
			slog.String("on_hand", level.OnHand.String()),
			slog.String("reserved", level.Reserved.String()),
			slog.String("available", level.Available.String()),
		)
		if !repair {
			drifted[level.WarehouseID]++
			continue
		}
		ok, err := j.Store.RepairAvailable(ctx, level)
		if err != nil {
			return summary, fmt.Errorf("repair item %d warehouse %d: %w", level.ItemID, level.WarehouseID, err)
		}
		if !ok {
			logger.Info("stock row changed during scan, skipped",
				slog.Int64("item_id", level.ItemID), slog.Int64("warehouse_id", level.WarehouseID))
			drifted[level.WarehouseID]++
			continue
		}
		summary.Repaired++
		repaired[level.WarehouseID]++
	}

	for warehouseID, n := range drifted {
		j.Metrics.AddDrift(warehouseID, false, n)
	}
	for warehouseID, n := range repaired {
		j.Metrics.AddDrift(warehouseID, true, n)
	}

	logger.Info("completed stock drift scan",
		slog.Int("drifted", summary.Drifted),
		slog.Int("repaired", summary.Repaired),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return summary, nil
}

func (j *StockDriftScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *StockDriftScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
