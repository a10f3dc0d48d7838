package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a sales order.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusConfirmed          Status = "confirmed"
	StatusPartiallyDelivered Status = "partially_delivered"
	StatusDelivered          Status = "delivered"
	StatusClosed             Status = "closed"
	StatusCancelled          Status = "cancelled"
)

var allStatuses = []Status{
	StatusDraft,
	StatusConfirmed,
	StatusPartiallyDelivered,
	StatusDelivered,
	StatusClosed,
	StatusCancelled,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// CanEditLines reports whether line items may still change.
func (s Status) CanEditLines() bool {
	return s == StatusDraft
}

// DiscountType selects how a header discount is expressed.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

// Discount is the order-level discount.
type Discount struct {
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

// TaxComponent is one tax applied to a line.
type TaxComponent struct {
	Name    string          `json:"name"`
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

type SalesOrder struct {
	ID         int64            `json:"id"`
	DocNumber  string           `json:"doc_number"`
	CompanyID  int64            `json:"company_id"`
	CustomerID int64            `json:"customer_id"`
	OrderDate  time.Time        `json:"order_date"`
	Status     Status           `json:"status"`
	Currency   string           `json:"currency"`
	Subtotal   decimal.Decimal  `json:"subtotal"`
	TaxAmount  decimal.Decimal  `json:"tax_amount"`
	Discount   Discount         `json:"discount"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	Remarks    *string          `json:"remarks,omitempty"`
	CreatedBy  int64            `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Lines      []SalesOrderLine `json:"lines"`
}

type SalesOrderLine struct {
	ID              int64           `json:"id"`
	SalesOrderID    int64           `json:"sales_order_id"`
	ItemID          int64           `json:"item_id"`
	Description     *string         `json:"description,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UOM             string          `json:"uom"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Taxes           []TaxComponent  `json:"taxes"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Amount          decimal.Decimal `json:"amount"`
	BilledQty       decimal.Decimal `json:"billed_qty"`
	DeliveredQty    decimal.Decimal `json:"delivered_qty"`
	LineOrder       int             `json:"line_order"`
}

// ListResult is a page of orders.
type ListResult struct {
	Orders []SalesOrder `json:"orders"`
	Total  int          `json:"total"`
}
