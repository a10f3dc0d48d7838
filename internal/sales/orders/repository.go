package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const uniqueViolation = "23505"

type repository struct {
	db   db.Querier
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) withTx(ctx context.Context, fn func(*repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&repository{db: tx, pool: r.pool})
	})
}

const orderColumns = `so.id, so.doc_number, so.company_id, so.customer_id, so.order_date, so.status, so.currency,
	so.subtotal, so.tax_amount, so.discount_type, so.discount_value, so.discount_amount, so.grand_total,
	so.remarks, so.created_by, so.created_at, so.updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	var discountType *string
	err := row.Scan(
		&o.ID, &o.DocNumber, &o.CompanyID, &o.CustomerID, &o.OrderDate, &o.Status, &o.Currency,
		&o.Subtotal, &o.TaxAmount, &discountType, &o.Discount.Value, &o.Discount.Amount, &o.GrandTotal,
		&o.Remarks, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return SalesOrder{}, err
	}
	if discountType != nil {
		o.Discount.Type = DiscountType(*discountType)
	}
	return o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders so WHERE so.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (r *repository) lines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sales_order_id, item_id, description, quantity, uom, rate,
		       discount_percent, discount_amount, taxes, tax_amount, amount,
		       billed_qty, delivered_qty, line_order
		FROM sales_order_lines
		WHERE sales_order_id = $1
		ORDER BY line_order, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []SalesOrderLine{}
	for rows.Next() {
		var l SalesOrderLine
		var taxes []byte
		if err := rows.Scan(
			&l.ID, &l.SalesOrderID, &l.ItemID, &l.Description, &l.Quantity, &l.UOM, &l.Rate,
			&l.DiscountPercent, &l.DiscountAmount, &taxes, &l.TaxAmount, &l.Amount,
			&l.BilledQty, &l.DeliveredQty, &l.LineOrder,
		); err != nil {
			return nil, err
		}
		if len(taxes) > 0 {
			if err := json.Unmarshal(taxes, &l.Taxes); err != nil {
				return nil, fmt.Errorf("decode taxes for line %d: %w", l.ID, err)
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]SalesOrder, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.CompanyID > 0 {
		conditions = append(conditions, fmt.Sprintf("so.company_id = $%d", argPos))
		args = append(args, req.CompanyID)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("so.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("so.status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders so "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(req.Page, req.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM sales_orders so %s
		ORDER BY so.order_date DESC, so.id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []SalesOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.withTx(ctx, func(tx *repository) error {
		err := tx.db.QueryRow(ctx, `
			INSERT INTO sales_orders (doc_number, company_id, customer_id, order_date, status, currency,
				subtotal, tax_amount, discount_type, discount_value, discount_amount, grand_total,
				remarks, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id`,
			o.DocNumber, o.CompanyID, o.CustomerID, o.OrderDate, string(o.Status), o.Currency,
			o.Subtotal, o.TaxAmount, discountTypeValue(o.Discount.Type), o.Discount.Value, o.Discount.Amount, o.GrandTotal,
			o.Remarks, o.CreatedBy,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, o.DocNumber)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return tx.insertLines(ctx, id, o.Lines)
	})
	return id, err
}

func (r *repository) insertLines(ctx context.Context, orderID int64, lines []SalesOrderLine) error {
	for _, l := range lines {
		taxes, err := json.Marshal(l.Taxes)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO sales_order_lines (sales_order_id, item_id, description, quantity, uom, rate,
				discount_percent, discount_amount, taxes, tax_amount, amount, billed_qty, delivered_qty, line_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			orderID, l.ItemID, l.Description, l.Quantity, l.UOM, l.Rate,
			l.DiscountPercent, l.DiscountAmount, taxes, l.TaxAmount, l.Amount, l.BilledQty, l.DeliveredQty, l.LineOrder,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r *repository) Update(ctx context.Context, id int64, changes Changes) (*SalesOrder, error) {
	err := r.withTx(ctx, func(tx *repository) error {
		query := "UPDATE sales_orders SET updated_at = NOW()"
		var args []any
		argPos := 1

		if changes.Status != nil {
			query += fmt.Sprintf(", status = $%d", argPos)
			args = append(args, string(*changes.Status))
			argPos++
		}
		if changes.Remarks != nil {
			query += fmt.Sprintf(", remarks = $%d", argPos)
			args = append(args, *changes.Remarks)
			argPos++
		}
		if t := changes.Totals; t != nil {
			query += fmt.Sprintf(", subtotal = $%d, tax_amount = $%d, discount_type = $%d, discount_value = $%d, discount_amount = $%d, grand_total = $%d",
				argPos, argPos+1, argPos+2, argPos+3, argPos+4, argPos+5)
			args = append(args, t.Subtotal, t.TaxAmount, discountTypeValue(t.Discount.Type), t.Discount.Value, t.Discount.Amount, t.GrandTotal)
			argPos += 6
		}

		query += fmt.Sprintf(" WHERE id = $%d", argPos)
		args = append(args, id)

		tag, err := tx.db.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if changes.Lines != nil {
			if _, err := tx.db.Exec(ctx, `DELETE FROM sales_order_lines WHERE sales_order_id = $1`, id); err != nil {
				return fmt.Errorf("delete order lines: %w", err)
			}
			if err := tx.insertLines(ctx, id, changes.Lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *repository) error {
		if _, err := tx.db.Exec(ctx, `DELETE FROM sales_order_lines WHERE sales_order_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.db.Exec(ctx, `DELETE FROM sales_orders WHERE id = $1 AND status = $2`, id, string(StatusDraft))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotDraft
		}
		return nil
	})
}

// GenerateNumber draws the next SO-{YYMM}-{SEQ} from the per-company monthly
// counter. Values are never handed out twice, even after a draft is deleted.
func (r *repository) GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	period := date.Format("0601")
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_order_sequences (company_id, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (company_id, period)
		DO UPDATE SET last_value = sales_order_sequences.last_value + 1
		RETURNING last_value`, companyID, period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%s-%04d", period, seq), nil
}

func discountTypeValue(t DiscountType) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}
