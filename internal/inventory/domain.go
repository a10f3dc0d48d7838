package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction selects reservation bookkeeping.
type Direction string

const (
	// DirectionReserve earmarks stock for an order.
	DirectionReserve Direction = "reserve"
	// DirectionRelease returns earmarked stock to available.
	DirectionRelease Direction = "release"
)

// StockQuantities is the mutable part of a stock row.
type StockQuantities struct {
	OnHand    decimal.Decimal `json:"on_hand"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

// StockLevel is the stock position of an item in a warehouse.
type StockLevel struct {
	ItemID      int64 `json:"item_id"`
	WarehouseID int64 `json:"warehouse_id"`
	StockQuantities
}

// Reserve earmarks qty. Available may go negative; OnHand is untouched.
func (q StockQuantities) Reserve(qty decimal.Decimal) StockQuantities {
	return StockQuantities{
		OnHand:    q.OnHand,
		Reserved:  q.Reserved.Add(qty),
		Available: q.Available.Sub(qty),
	}
}

// Release returns qty to available. Reserved is clamped at zero.
func (q StockQuantities) Release(qty decimal.Decimal) StockQuantities {
	reserved := q.Reserved.Sub(qty)
	if reserved.IsNegative() {
		reserved = decimal.Zero
	}
	return StockQuantities{
		OnHand:    q.OnHand,
		Reserved:  reserved,
		Available: q.Available.Add(qty),
	}
}

// Drifted reports whether Available no longer equals OnHand - Reserved.
func (q StockQuantities) Drifted() bool {
	return !q.Available.Equal(q.OnHand.Sub(q.Reserved))
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsDefault bool   `json:"is_default"`
}

// AdjustmentLine is one item to reserve or release.
type AdjustmentLine struct {
	ItemID   int64
	Quantity decimal.Decimal
}

// AdjustmentRequest asks the applier to move reservations for a set of lines.
type AdjustmentRequest struct {
	Reference string
	Direction Direction
	Lines     []AdjustmentLine
}

// WarningCode classifies a recovered adjustment problem.
type WarningCode string

const (
	// WarningMissingWarehouse means no default warehouse could be resolved.
	WarningMissingWarehouse WarningCode = "missing_warehouse_resolution"
	// WarningMissingStockRow means an item had no stock row in the warehouse.
	WarningMissingStockRow WarningCode = "missing_stock_row"
)

// Warning is a non-fatal adjustment problem.
type Warning struct {
	Code        WarningCode `json:"code"`
	ItemID      int64       `json:"item_id,omitempty"`
	WarehouseID int64       `json:"warehouse_id,omitempty"`
	Message     string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// AdjustedLevel records one row change.
type AdjustedLevel struct {
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	Before      StockQuantities
	After       StockQuantities
}

// AdjustmentReport summarises one applier run.
type AdjustmentReport struct {
	Direction   Direction
	WarehouseID int64
	Adjusted    []AdjustedLevel
	Warnings    []Warning
}

// Applied reports whether at least one stock row changed.
func (r AdjustmentReport) Applied() bool {
	return len(r.Adjusted) > 0
}

var (
	// ErrStockLevelNotFound indicates a missing stock row for item and warehouse.
	ErrStockLevelNotFound = errors.New("inventory: stock level not found")
	// ErrNoDefaultWarehouse indicates no active warehouse could serve as default.
	ErrNoDefaultWarehouse = errors.New("inventory: no default warehouse configured")
	// ErrInsufficientAvailable indicates a reservation would drive available below zero.
	ErrInsufficientAvailable = errors.New("inventory: insufficient available stock")
	// ErrInvalidDirection indicates an unknown adjustment direction.
	ErrInvalidDirection = errors.New("inventory: invalid adjustment direction")
)
