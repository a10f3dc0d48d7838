// Package allocation turns requested bill and delivery quantities into invoice and delivery-note requests.
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/fulfillment/internal/sales/shared"
)

// Kind is the document type an allocation produces.
type Kind string

const (
	KindInvoice      Kind = "invoice"
	KindDeliveryNote Kind = "delivery_note"
)

var (
	ErrExceedsAvailable  = errors.New("allocation: quantity exceeds pending quantity")
	ErrNoItemsSelected   = errors.New("allocation: no items selected")
	ErrWarehouseRequired = errors.New("allocation: warehouse required for delivery line")
)

// ExceedsAvailableError carries the offending line.
type ExceedsAvailableError struct {
	LineID    int64
	Requested decimal.Decimal
	Pending   decimal.Decimal
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("%s: line %d requested %s pending %s", ErrExceedsAvailable, e.LineID, e.Requested, e.Pending)
}

func (e *ExceedsAvailableError) Unwrap() error {
	return ErrExceedsAvailable
}

// LineRequest is one order line with the quantity to process now.
type LineRequest struct {
	LineID          int64
	ItemID          int64
	UOM             string
	Rate            decimal.Decimal
	DiscountPercent decimal.Decimal
	Taxes           []salesshared.TaxRate
	Quantity        decimal.Decimal
	Pending         decimal.Decimal
	WarehouseID     int64
}

// DocumentLine is one line of a generated document. Amounts are priced on
// Quantity with the order line's discount and tax rates.
type DocumentLine struct {
	LineID          int64           `json:"line_id"`
	ItemID          int64           `json:"item_id"`
	UOM             string          `json:"uom"`
	Rate            decimal.Decimal `json:"rate"`
	Quantity        decimal.Decimal `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Amount          decimal.Decimal `json:"amount"`
}

// DocumentRequest describes one invoice or delivery note to create.
// DiscountAmount is the invoice's share of the order-level discount.
type DocumentRequest struct {
	Kind           Kind            `json:"kind"`
	OrderID        int64           `json:"order_id"`
	WarehouseID    int64           `json:"warehouse_id,omitempty"`
	Lines          []DocumentLine  `json:"lines"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// LinesTotal sums the line amounts, taxes included.
func (d DocumentRequest) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Total is LinesTotal less the header discount share.
func (d DocumentRequest) Total() decimal.Decimal {
	return d.LinesTotal().Sub(d.DiscountAmount)
}

// ProrateDiscount returns the part of an order-level discount that belongs to
// portion out of orderGross. Billing the whole gross yields the whole discount.
func ProrateDiscount(discount, orderGross, portion decimal.Decimal) decimal.Decimal {
	if !discount.IsPositive() || !orderGross.IsPositive() || !portion.IsPositive() {
		return decimal.Zero
	}
	if portion.GreaterThanOrEqual(orderGross) {
		return discount
	}
	return discount.Mul(portion).Div(orderGross).Round(salesshared.MoneyPlaces)
}

// TotalQuantity sums the line quantities.
func (d DocumentRequest) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Quantity)
	}
	return total
}

// Validate rejects negative or over-pending quantities and an empty selection.
func Validate(lines []LineRequest) error {
	selected := false
	for _, l := range lines {
		if l.Quantity.IsNegative() || l.Quantity.GreaterThan(l.Pending) {
			return &ExceedsAvailableError{LineID: l.LineID, Requested: l.Quantity, Pending: l.Pending}
		}
		if l.Quantity.IsPositive() {
			selected = true
		}
	}
	if !selected {
		return ErrNoItemsSelected
	}
	return nil
}

// SplitInvoice produces a single invoice request with every line that has a quantity.
func SplitInvoice(orderID int64, lines []LineRequest) (DocumentRequest, error) {
	if err := Validate(lines); err != nil {
		return DocumentRequest{}, err
	}
	doc := DocumentRequest{Kind: KindInvoice, OrderID: orderID}
	for _, l := range lines {
		if l.Quantity.IsPositive() {
			doc.Lines = append(doc.Lines, documentLine(l))
		}
	}
	return doc, nil
}

// SplitDelivery groups lines by warehouse, one request per warehouse in first-occurrence order.
func SplitDelivery(orderID int64, lines []LineRequest) ([]DocumentRequest, error) {
	if err := Validate(lines); err != nil {
		return nil, err
	}
	index := make(map[int64]int)
	var docs []DocumentRequest
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			continue
		}
		if l.WarehouseID <= 0 {
			return nil, fmt.Errorf("%w: line %d", ErrWarehouseRequired, l.LineID)
		}
		i, ok := index[l.WarehouseID]
		if !ok {
			i = len(docs)
			index[l.WarehouseID] = i
			docs = append(docs, DocumentRequest{Kind: KindDeliveryNote, OrderID: orderID, WarehouseID: l.WarehouseID})
		}
		docs[i].Lines = append(docs[i].Lines, documentLine(l))
	}
	return docs, nil
}

func documentLine(l LineRequest) DocumentLine {
	totals := salesshared.CalculateLineTotals(l.Quantity, l.Rate, l.DiscountPercent, l.Taxes)
	return DocumentLine{
		LineID:          l.LineID,
		ItemID:          l.ItemID,
		UOM:             l.UOM,
		Rate:            l.Rate,
		Quantity:        l.Quantity,
		DiscountPercent: l.DiscountPercent,
		DiscountAmount:  totals.DiscountAmount,
		TaxAmount:       totals.TaxAmount,
		Amount:          totals.Total,
	}
}
