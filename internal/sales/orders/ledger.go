package orders

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// PendingToBill is the quantity not yet invoiced, never negative.
func PendingToBill(line SalesOrderLine) decimal.Decimal {
	return nonNegative(line.Quantity.Sub(line.BilledQty))
}

// PendingToDeliver is the quantity not yet delivered, never negative.
func PendingToDeliver(line SalesOrderLine) decimal.Decimal {
	return nonNegative(line.Quantity.Sub(line.DeliveredQty))
}

// FulfillmentPercent returns numerator/qty clamped to [0, 1]. A non-positive qty yields 0.
func FulfillmentPercent(numerator, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	ratio := numerator.Div(qty)
	if ratio.GreaterThan(one) {
		return one
	}
	return nonNegative(ratio)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LineProgress is the per-line view of billing and delivery.
type LineProgress struct {
	LineID           int64           `json:"line_id"`
	ItemID           int64           `json:"item_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	BilledQty        decimal.Decimal `json:"billed_qty"`
	DeliveredQty     decimal.Decimal `json:"delivered_qty"`
	PendingToBill    decimal.Decimal `json:"pending_to_bill"`
	PendingToDeliver decimal.Decimal `json:"pending_to_deliver"`
	BilledPercent    decimal.Decimal `json:"billed_percent"`
	DeliveredPercent decimal.Decimal `json:"delivered_percent"`
}

// Progress aggregates fulfillment for a whole order.
type Progress struct {
	OrderID          int64           `json:"order_id"`
	Status           Status          `json:"status"`
	BilledPercent    decimal.Decimal `json:"billed_percent"`
	DeliveredPercent decimal.Decimal `json:"delivered_percent"`
	Lines            []LineProgress  `json:"lines"`
}

// OrderProgress computes billed and delivered fractions over all lines.
func OrderProgress(order SalesOrder) Progress {
	totalQty := decimal.Zero
	totalBilled := decimal.Zero
	totalDelivered := decimal.Zero
	lines := make([]LineProgress, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineProgress{
			LineID:           line.ID,
			ItemID:           line.ItemID,
			Quantity:         line.Quantity,
			BilledQty:        line.BilledQty,
			DeliveredQty:     line.DeliveredQty,
			PendingToBill:    PendingToBill(line),
			PendingToDeliver: PendingToDeliver(line),
			BilledPercent:    FulfillmentPercent(line.BilledQty, line.Quantity),
			DeliveredPercent: FulfillmentPercent(line.DeliveredQty, line.Quantity),
		})
		if !line.Quantity.IsPositive() {
			continue
		}
		totalQty = totalQty.Add(line.Quantity)
		totalBilled = totalBilled.Add(decimal.Min(line.BilledQty, line.Quantity))
		totalDelivered = totalDelivered.Add(decimal.Min(line.DeliveredQty, line.Quantity))
	}
	return Progress{
		OrderID:          order.ID,
		Status:           order.Status,
		BilledPercent:    FulfillmentPercent(totalBilled, totalQty),
		DeliveredPercent: FulfillmentPercent(totalDelivered, totalQty),
		Lines:            lines,
	}
}

// IsFullyDelivered reports whether every line with quantity has nothing left to deliver.
func IsFullyDelivered(order SalesOrder) bool {
	return allLines(order, PendingToDeliver)
}

// IsFullyBilled reports whether every line with quantity has nothing left to bill.
func IsFullyBilled(order SalesOrder) bool {
	return allLines(order, PendingToBill)
}

// HasDeliveries reports whether any line has a delivered quantity.
func HasDeliveries(order SalesOrder) bool {
	for _, line := range order.Lines {
		if line.DeliveredQty.IsPositive() {
			return true
		}
	}
	return false
}

func allLines(order SalesOrder, pending func(SalesOrderLine) decimal.Decimal) bool {
	counted := false
	for _, line := range order.Lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		counted = true
		if pending(line).IsPositive() {
			return false
		}
	}
	return counted
}
