package shared

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// MoneyPlaces is the scale amounts are rounded to.
const MoneyPlaces = 2

// TaxRate is one percentage tax applied on the net line amount.
type TaxRate struct {
	Name    string
	Percent decimal.Decimal
}

// TaxLine is a TaxRate with its computed amount.
type TaxLine struct {
	Name    string
	Percent decimal.Decimal
	Amount  decimal.Decimal
}

// LineTotals is the result of CalculateLineTotals.
type LineTotals struct {
	Gross          decimal.Decimal
	DiscountAmount decimal.Decimal
	Net            decimal.Decimal
	Taxes          []TaxLine
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// CalculateLineTotals computes discount, per-component tax and the line total.
func CalculateLineTotals(quantity, rate, discountPercent decimal.Decimal, taxes []TaxRate) LineTotals {
	gross := quantity.Mul(rate)
	discount := gross.Mul(discountPercent).Div(hundred).Round(MoneyPlaces)
	net := gross.Sub(discount)

	lines := make([]TaxLine, 0, len(taxes))
	taxTotal := decimal.Zero
	for _, tax := range taxes {
		amount := net.Mul(tax.Percent).Div(hundred).Round(MoneyPlaces)
		lines = append(lines, TaxLine{Name: tax.Name, Percent: tax.Percent, Amount: amount})
		taxTotal = taxTotal.Add(amount)
	}

	return LineTotals{
		Gross:          gross.Round(MoneyPlaces),
		DiscountAmount: discount,
		Net:            net.Round(MoneyPlaces),
		Taxes:          lines,
		TaxAmount:      taxTotal,
		Total:          net.Add(taxTotal).Round(MoneyPlaces),
	}
}

// HeaderDiscount resolves an order-level discount against base.
// Percent values are taken as a percentage; amount values are capped at base.
func HeaderDiscount(percent bool, value, base decimal.Decimal) decimal.Decimal {
	if !value.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	if percent {
		return decimal.Min(base.Mul(value).Div(hundred).Round(MoneyPlaces), base)
	}
	return decimal.Min(value, base)
}
