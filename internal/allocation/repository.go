package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sales/orders"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists invoices and delivery notes against sales order lines.
type Repository struct {
	db  db.TxBeginner
	now func() time.Time
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, now: time.Now}
}

// Documents are written at ReadCommitted: the bookQuantity guard must see
// line counters committed by concurrent requests.
var documentTx = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

const (
	invoicePrefix  = "SINV"
	deliveryPrefix = "DN"
)

// DocumentNumber renders PREFIX-YYYYMMDD-xxxxxxxx.
func DocumentNumber(prefix string, at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}

// CreateInvoice inserts the invoice and books billed_qty on each order line.
func (r *Repository) CreateInvoice(ctx context.Context, req DocumentRequest) (DocumentRef, error) {
	ref := DocumentRef{Kind: KindInvoice, No: DocumentNumber(invoicePrefix, r.now(), uuid.New())}
	err := db.WithTxOptions(ctx, r.db, documentTx, func(tx pgx.Tx) error {
		id, err := insertHeader(ctx, tx, `
			INSERT INTO sales_invoices (doc_number, sales_order_id, company_id, customer_id, currency,
				invoice_date, discount_amount, total_amount, created_by)
			SELECT $1, so.id, so.company_id, so.customer_id, so.currency, CURRENT_DATE, $3, $4, $5
			FROM sales_orders so WHERE so.id = $2
			RETURNING id`, ref.No, req.OrderID, req.DiscountAmount, req.Total(), actorOrNil(ctx))
		if err != nil {
			return err
		}
		ref.ID = id

		for i, line := range req.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sales_invoice_lines (sales_invoice_id, sales_order_line_id, item_id, uom, quantity, rate,
					discount_percent, discount_amount, tax_amount, amount, line_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				id, line.LineID, line.ItemID, line.UOM, line.Quantity, line.Rate,
				line.DiscountPercent, line.DiscountAmount, line.TaxAmount, line.Amount, i+1,
			); err != nil {
				return fmt.Errorf("insert invoice line %d: %w", line.LineID, err)
			}
			if err := bookQuantity(ctx, tx, "billed_qty", req.OrderID, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DocumentRef{}, err
	}
	return ref, nil
}

// CreateDeliveryNote inserts one delivery note for a warehouse group and books delivered_qty.
func (r *Repository) CreateDeliveryNote(ctx context.Context, req DocumentRequest) (DocumentRef, error) {
	ref := DocumentRef{Kind: KindDeliveryNote, No: DocumentNumber(deliveryPrefix, r.now(), uuid.New()), WarehouseID: req.WarehouseID}
	err := db.WithTxOptions(ctx, r.db, documentTx, func(tx pgx.Tx) error {
		id, err := insertHeader(ctx, tx, `
			INSERT INTO delivery_notes (doc_number, sales_order_id, company_id, customer_id, warehouse_id,
				delivery_date, created_by)
			SELECT $1, so.id, so.company_id, so.customer_id, $3, CURRENT_DATE, $4
			FROM sales_orders so WHERE so.id = $2
			RETURNING id`, ref.No, req.OrderID, req.WarehouseID, actorOrNil(ctx))
		if err != nil {
			return err
		}
		ref.ID = id

		for i, line := range req.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO delivery_note_lines (delivery_note_id, sales_order_line_id, item_id, uom, quantity, line_order)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				id, line.LineID, line.ItemID, line.UOM, line.Quantity, i+1,
			); err != nil {
				return fmt.Errorf("insert delivery note line %d: %w", line.LineID, err)
			}
			if err := bookQuantity(ctx, tx, "delivered_qty", req.OrderID, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DocumentRef{}, err
	}
	return ref, nil
}

func insertHeader(ctx context.Context, tx pgx.Tx, query string, args ...any) (int64, error) {
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, orders.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// bookQuantity increments a line counter only while it stays within the ordered quantity.
func bookQuantity(ctx context.Context, tx pgx.Tx, column string, orderID int64, line DocumentLine) error {
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE sales_order_lines
		SET %[1]s = %[1]s + $1
		WHERE id = $2 AND sales_order_id = $3 AND %[1]s + $1 <= quantity`, column),
		line.Quantity, line.LineID, orderID)
	if err != nil {
		return fmt.Errorf("update %s on line %d: %w", column, line.LineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: line %d changed concurrently", ErrExceedsAvailable, line.LineID)
	}
	return nil
}

func actorOrNil(ctx context.Context) *int64 {
	if id := shared.ActorFromContext(ctx); id > 0 {
		return &id
	}
	return nil
}
