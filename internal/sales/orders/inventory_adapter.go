package orders

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

// StockApplier is the inventory side of a stock adjustment.
type StockApplier interface {
	Apply(ctx context.Context, req inventory.AdjustmentRequest) (inventory.AdjustmentReport, error)
}

// InventoryAdapter adapts inventory.Applier to the StockAdjuster port.
type InventoryAdapter struct {
	applier StockApplier
}

// NewInventoryAdapter creates a new inventory adapter
func NewInventoryAdapter(applier StockApplier) *InventoryAdapter {
	return &InventoryAdapter{applier: applier}
}

// AdjustForOrder reserves or releases the order's line quantities.
func (a *InventoryAdapter) AdjustForOrder(ctx context.Context, order SalesOrder, action StockAction) (StockAdjustment, error) {
	var dir inventory.Direction
	switch action {
	case StockActionReserve:
		dir = inventory.DirectionReserve
	case StockActionRelease:
		dir = inventory.DirectionRelease
	default:
		return StockAdjustment{}, nil
	}
	if a.applier == nil {
		return StockAdjustment{}, fmt.Errorf("inventory applier not initialized")
	}

	lines := make([]inventory.AdjustmentLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, inventory.AdjustmentLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}

	report, err := a.applier.Apply(ctx, inventory.AdjustmentRequest{
		Reference: fmt.Sprintf("sales_order:%d", order.ID),
		Direction: dir,
		Lines:     lines,
	})
	if err != nil {
		return StockAdjustment{}, err
	}

	warnings := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		warnings = append(warnings, w.String())
	}
	return StockAdjustment{Applied: report.Applied(), Warnings: warnings}, nil
}
