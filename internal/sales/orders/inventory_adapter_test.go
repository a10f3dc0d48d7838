package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

type recordingApplier struct {
	requests []inventory.AdjustmentRequest
	report   inventory.AdjustmentReport
	err      error
}

func (r *recordingApplier) Apply(_ context.Context, req inventory.AdjustmentRequest) (inventory.AdjustmentReport, error) {
	r.requests = append(r.requests, req)
	return r.report, r.err
}

func TestInventoryAdapterMapsDirectionAndLines(t *testing.T) {
	applier := &recordingApplier{report: inventory.AdjustmentReport{
		Adjusted: []inventory.AdjustedLevel{{ItemID: 1}},
		Warnings: []inventory.Warning{{Code: inventory.WarningMissingStockRow, ItemID: 2, Message: "no stock row for item 2 in warehouse 9"}},
	}}
	adapter := NewInventoryAdapter(applier)
	order := SalesOrder{ID: 12, Lines: []SalesOrderLine{line(1, "5"), line(2, "3")}}

	adj, err := adapter.AdjustForOrder(context.Background(), order, StockActionRelease)
	require.NoError(t, err)
	assert.True(t, adj.Applied)
	assert.Equal(t, []string{"missing_stock_row: no stock row for item 2 in warehouse 9"}, adj.Warnings)

	require.Len(t, applier.requests, 1)
	req := applier.requests[0]
	assert.Equal(t, inventory.DirectionRelease, req.Direction)
	assert.Equal(t, "sales_order:12", req.Reference)
	require.Len(t, req.Lines, 2)
	assert.True(t, req.Lines[0].Quantity.Equal(dec("5")))
}

func TestInventoryAdapterNoneIsNoop(t *testing.T) {
	applier := &recordingApplier{}
	adj, err := NewInventoryAdapter(applier).AdjustForOrder(context.Background(), SalesOrder{}, StockActionNone)
	require.NoError(t, err)
	assert.False(t, adj.Applied)
	assert.Empty(t, applier.requests)
}

func TestInventoryAdapterPropagatesErrors(t *testing.T) {
	applier := &recordingApplier{err: errors.New("load stock item 1 warehouse 9: timeout")}
	_, err := NewInventoryAdapter(applier).AdjustForOrder(context.Background(), SalesOrder{Lines: []SalesOrderLine{line(1, "1")}}, StockActionReserve)
	require.Error(t, err)
}
