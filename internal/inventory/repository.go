package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// Repository persists stock levels and warehouses in PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository constructs Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// GetByLocation loads the stock row for item and warehouse.
func (r *Repository) GetByLocation(ctx context.Context, itemID, warehouseID int64) (StockLevel, error) {
	level := StockLevel{ItemID: itemID, WarehouseID: warehouseID}
	err := r.db.QueryRow(ctx, `SELECT quantity_on_hand, quantity_reserved, quantity_available
		FROM stock_levels WHERE item_id = $1 AND warehouse_id = $2`, itemID, warehouseID).
		Scan(&level.OnHand, &level.Reserved, &level.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrStockLevelNotFound
	}
	if err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// UpdateByLocation overwrites the quantities of an existing stock row.
func (r *Repository) UpdateByLocation(ctx context.Context, itemID, warehouseID int64, q StockQuantities) error {
	tag, err := r.db.Exec(ctx, `UPDATE stock_levels
		SET quantity_on_hand = $3, quantity_reserved = $4, quantity_available = $5, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2`, itemID, warehouseID, q.OnHand, q.Reserved, q.Available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockLevelNotFound
	}
	return nil
}

// ListDrifted returns rows whose available differs from on_hand - reserved.
func (r *Repository) ListDrifted(ctx context.Context, limit int) ([]StockLevel, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, `SELECT item_id, warehouse_id, quantity_on_hand, quantity_reserved, quantity_available
		FROM stock_levels
		WHERE quantity_available <> quantity_on_hand - quantity_reserved
		ORDER BY warehouse_id, item_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list drifted stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ItemID, &level.WarehouseID, &level.OnHand, &level.Reserved, &level.Available); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// RepairAvailable rewrites available from on_hand and reserved, guarded against concurrent change.
func (r *Repository) RepairAvailable(ctx context.Context, level StockLevel) (bool, error) {
	expected := level.OnHand.Sub(level.Reserved)
	tag, err := r.db.Exec(ctx, `UPDATE stock_levels
		SET quantity_available = $3, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2 AND quantity_available = $4
		AND quantity_on_hand = $5 AND quantity_reserved = $6`,
		level.ItemID, level.WarehouseID, expected, level.Available, level.OnHand, level.Reserved)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActive returns active warehouses ordered by id.
func (r *Repository) ListActive(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, is_active, is_default
		FROM warehouses WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.IsDefault); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}
