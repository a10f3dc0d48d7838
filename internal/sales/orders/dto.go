package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaxRequest struct {
	Name    string          `json:"name" validate:"required,max=64"`
	Percent decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
}

type DiscountRequest struct {
	Type  DiscountType    `json:"type" validate:"required,oneof=percent amount"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

type CreateLineRequest struct {
	ItemID          int64           `json:"item_id" validate:"required,gt=0"`
	Description     *string         `json:"description,omitempty" validate:"omitempty,max=512"`
	Quantity        decimal.Decimal `json:"quantity" validate:"gt=0"`
	UOM             string          `json:"uom" validate:"required,max=16"`
	Rate            decimal.Decimal `json:"rate" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
	Taxes           []TaxRequest    `json:"taxes,omitempty" validate:"omitempty,dive"`
}

type CreateRequest struct {
	CompanyID  int64               `json:"company_id" validate:"required,gt=0"`
	CustomerID int64               `json:"customer_id" validate:"required,gt=0"`
	OrderDate  *time.Time          `json:"order_date,omitempty"`
	Currency   string              `json:"currency" validate:"required,currency"`
	Discount   *DiscountRequest    `json:"discount,omitempty" validate:"omitempty"`
	Remarks    *string             `json:"remarks,omitempty" validate:"omitempty,max=2000"`
	Lines      []CreateLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Patch is a partial update. A nil Lines leaves line items untouched.
type Patch struct {
	Status   *Status             `json:"status,omitempty" validate:"omitempty,order_status"`
	Remarks  *string             `json:"remarks,omitempty" validate:"omitempty,max=2000"`
	Discount *DiscountRequest    `json:"discount,omitempty" validate:"omitempty"`
	Lines    []CreateLineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type TransitionRequest struct {
	Status  Status  `json:"status" validate:"required,order_status"`
	Remarks *string `json:"remarks,omitempty" validate:"omitempty,max=2000"`
}

type ListRequest struct {
	CompanyID  int64
	CustomerID *int64
	Status     *Status
	Page       int
	PerPage    int
}

// Totals are the computed header amounts of an order.
type Totals struct {
	Subtotal   decimal.Decimal
	TaxAmount  decimal.Decimal
	Discount   Discount
	GrandTotal decimal.Decimal
}

// Changes is what the repository writes on update. Nil fields are left as stored.
type Changes struct {
	Status  *Status
	Remarks *string
	Totals  *Totals
	Lines   []SalesOrderLine
}

// TransitionResult reports the outcome of a status change.
type TransitionResult struct {
	Success                bool        `json:"success"`
	PreviousStatus         Status      `json:"previous_status"`
	NewStatus              Status      `json:"new_status"`
	StockAction            StockAction `json:"stock_action"`
	StockAdjustmentApplied bool        `json:"stock_adjustment_applied"`
	Warnings               []string    `json:"warnings,omitempty"`
	Order                  *SalesOrder `json:"order,omitempty"`
}
