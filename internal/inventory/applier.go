package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// StockLevelService reads and writes stock rows per item and warehouse.
type StockLevelService interface {
	GetByLocation(ctx context.Context, itemID, warehouseID int64) (StockLevel, error)
	UpdateByLocation(ctx context.Context, itemID, warehouseID int64, q StockQuantities) error
}

// DefaultWarehouseResolver resolves the warehouse reservations are booked against.
type DefaultWarehouseResolver interface {
	DefaultWarehouse(ctx context.Context) (Warehouse, error)
}

// AdjustmentObserver is notified about skipped items.
type AdjustmentObserver interface {
	ObserveStockSkip(reason string)
}

// ApplierConfig groups optional settings.
type ApplierConfig struct {
	AllowNegativeAvailable bool
}

// Applier mutates reservation bookkeeping on stock rows.
type Applier struct {
	levels   StockLevelService
	resolver DefaultWarehouseResolver
	allowNeg bool
	logger   *slog.Logger
	metrics  AdjustmentObserver
}

// NewApplier builds Applier.
func NewApplier(levels StockLevelService, resolver DefaultWarehouseResolver, cfg ApplierConfig, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{levels: levels, resolver: resolver, allowNeg: cfg.AllowNegativeAvailable, logger: logger}
}

// SetMetrics configures the skip observer.
func (a *Applier) SetMetrics(m AdjustmentObserver) {
	a.metrics = m
}

type plannedRow struct {
	itemID int64
	qty    decimal.Decimal
	level  StockLevel
}

// Apply reserves or releases stock for req.Lines in the default warehouse.
// Missing rows and the absence of any default warehouse become warnings;
// storage failures, including a failed warehouse lookup, are returned.
func (a *Applier) Apply(ctx context.Context, req AdjustmentRequest) (AdjustmentReport, error) {
	report := AdjustmentReport{Direction: req.Direction}
	if req.Direction != DirectionReserve && req.Direction != DirectionRelease {
		return report, fmt.Errorf("%w: %q", ErrInvalidDirection, req.Direction)
	}

	lines := aggregateLines(req.Lines)
	if len(lines) == 0 {
		return report, nil
	}

	warehouse, err := a.resolver.DefaultWarehouse(ctx)
	if err != nil && !errors.Is(err, ErrNoDefaultWarehouse) {
		return report, fmt.Errorf("resolve default warehouse: %w", err)
	}
	if err != nil {
		a.warn(&report, Warning{
			Code:    WarningMissingWarehouse,
			Message: fmt.Sprintf("stock adjustment skipped: %v", err),
		}, slog.String("reference", req.Reference), slog.Any("error", err))
		return report, nil
	}
	report.WarehouseID = warehouse.ID

	plan := make([]plannedRow, 0, len(lines))
	if req.Direction == DirectionReserve && !a.allowNeg {
		for _, line := range lines {
			level, ok, err := a.load(ctx, &report, req.Reference, line, warehouse.ID)
			if err != nil {
				return report, err
			}
			if !ok {
				continue
			}
			if level.Available.LessThan(line.Quantity) {
				return report, fmt.Errorf("%w: item %d warehouse %d available %s requested %s",
					ErrInsufficientAvailable, line.ItemID, warehouse.ID, level.Available, line.Quantity)
			}
			plan = append(plan, plannedRow{itemID: line.ItemID, qty: line.Quantity, level: level})
		}
		return report, a.write(ctx, &report, req.Direction, plan)
	}

	for _, line := range lines {
		level, ok, err := a.load(ctx, &report, req.Reference, line, warehouse.ID)
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}
		if err := a.write(ctx, &report, req.Direction, []plannedRow{{itemID: line.ItemID, qty: line.Quantity, level: level}}); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (a *Applier) load(ctx context.Context, report *AdjustmentReport, ref string, line AdjustmentLine, warehouseID int64) (StockLevel, bool, error) {
	level, err := a.levels.GetByLocation(ctx, line.ItemID, warehouseID)
	if errors.Is(err, ErrStockLevelNotFound) {
		a.warn(report, Warning{
			Code:        WarningMissingStockRow,
			ItemID:      line.ItemID,
			WarehouseID: warehouseID,
			Message:     fmt.Sprintf("no stock row for item %d in warehouse %d", line.ItemID, warehouseID),
		}, slog.String("reference", ref), slog.Int64("item_id", line.ItemID), slog.Int64("warehouse_id", warehouseID))
		return StockLevel{}, false, nil
	}
	if err != nil {
		return StockLevel{}, false, fmt.Errorf("load stock item %d warehouse %d: %w", line.ItemID, warehouseID, err)
	}
	return level, true, nil
}

func (a *Applier) write(ctx context.Context, report *AdjustmentReport, dir Direction, plan []plannedRow) error {
	for _, row := range plan {
		before := row.level.StockQuantities
		var after StockQuantities
		if dir == DirectionReserve {
			after = before.Reserve(row.qty)
		} else {
			after = before.Release(row.qty)
		}
		if err := a.levels.UpdateByLocation(ctx, row.itemID, report.WarehouseID, after); err != nil {
			return fmt.Errorf("update stock item %d warehouse %d: %w", row.itemID, report.WarehouseID, err)
		}
		report.Adjusted = append(report.Adjusted, AdjustedLevel{
			ItemID:      row.itemID,
			WarehouseID: report.WarehouseID,
			Quantity:    row.qty,
			Before:      before,
			After:       after,
		})
	}
	return nil
}

func (a *Applier) warn(report *AdjustmentReport, w Warning, attrs ...any) {
	report.Warnings = append(report.Warnings, w)
	a.logger.Warn("stock adjustment skipped", append([]any{slog.String("code", string(w.Code))}, attrs...)...)
	if a.metrics != nil {
		a.metrics.ObserveStockSkip(string(w.Code))
	}
}

// aggregateLines sums positive quantities per item, keeping first-occurrence order.
func aggregateLines(lines []AdjustmentLine) []AdjustmentLine {
	index := make(map[int64]int, len(lines))
	out := make([]AdjustmentLine, 0, len(lines))
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		if i, ok := index[line.ItemID]; ok {
			out[i].Quantity = out[i].Quantity.Add(line.Quantity)
			continue
		}
		index[line.ItemID] = len(out)
		out = append(out, line)
	}
	return out
}
