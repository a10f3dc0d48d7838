package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	salesshared "github.com/odyssey-erp/fulfillment/internal/sales/shared"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func lineReq(id int64, qty, pending string, warehouse int64) LineRequest {
	return LineRequest{LineID: id, ItemID: id * 10, UOM: "pcs", Rate: dec("2"), Quantity: dec(qty), Pending: dec(pending), WarehouseID: warehouse}
}

func TestValidateWithinPending(t *testing.T) {
	require.NoError(t, Validate([]LineRequest{lineReq(1, "5", "10", 0)}))
	require.NoError(t, Validate([]LineRequest{lineReq(1, "10", "10", 0)}))
}

func TestValidateExceedsPending(t *testing.T) {
	err := Validate([]LineRequest{lineReq(1, "11", "10", 0)})
	require.ErrorIs(t, err, ErrExceedsAvailable)

	var exceeds *ExceedsAvailableError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, int64(1), exceeds.LineID)
	assert.True(t, exceeds.Pending.Equal(dec("10")))
}

func TestValidateNegativeQuantity(t *testing.T) {
	err := Validate([]LineRequest{lineReq(1, "3", "10", 0), lineReq(2, "-1", "10", 0)})
	require.ErrorIs(t, err, ErrExceedsAvailable)
}

func TestValidateNothingSelected(t *testing.T) {
	err := Validate([]LineRequest{lineReq(1, "0", "10", 0), lineReq(2, "0", "4", 0)})
	require.ErrorIs(t, err, ErrNoItemsSelected)

	require.ErrorIs(t, Validate(nil), ErrNoItemsSelected)
}

func TestSplitInvoiceSkipsZeroLines(t *testing.T) {
	doc, err := SplitInvoice(7, []LineRequest{
		lineReq(1, "2", "5", 0),
		lineReq(2, "0", "5", 0),
		lineReq(3, "1.5", "5", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, KindInvoice, doc.Kind)
	assert.Equal(t, int64(7), doc.OrderID)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, int64(1), doc.Lines[0].LineID)
	assert.Equal(t, int64(3), doc.Lines[1].LineID)
	assert.True(t, doc.TotalQuantity().Equal(dec("3.5")))
}

func TestSplitInvoicePricesDiscountAndTax(t *testing.T) {
	line := lineReq(1, "2", "4", 0)
	line.Rate = dec("100")
	line.DiscountPercent = dec("10")
	line.Taxes = []salesshared.TaxRate{{Name: "VAT", Percent: dec("11")}}

	doc, err := SplitInvoice(1, []LineRequest{line})
	require.NoError(t, err)
	require.Len(t, doc.Lines, 1)
	got := doc.Lines[0]
	assert.True(t, got.DiscountAmount.Equal(dec("20")), got.DiscountAmount.String())
	assert.True(t, got.TaxAmount.Equal(dec("19.8")), got.TaxAmount.String())
	assert.True(t, got.Amount.Equal(dec("199.8")), got.Amount.String())
	assert.True(t, doc.Total().Equal(dec("199.8")))
}

func TestProrateDiscount(t *testing.T) {
	assert.True(t, ProrateDiscount(dec("24.98"), dec("249.8"), dec("249.8")).Equal(dec("24.98")))
	assert.True(t, ProrateDiscount(dec("10"), dec("200"), dec("50")).Equal(dec("2.5")))
	assert.True(t, ProrateDiscount(dec("10"), dec("200"), dec("300")).Equal(dec("10")))
	assert.True(t, ProrateDiscount(decimal.Zero, dec("200"), dec("50")).IsZero())
	assert.True(t, ProrateDiscount(dec("10"), decimal.Zero, dec("50")).IsZero())
}

func TestSplitDeliveryGroupsByFirstOccurrence(t *testing.T) {
	const warehouseA, warehouseB = 20, 10
	docs, err := SplitDelivery(3, []LineRequest{
		lineReq(1, "3", "5", warehouseA),
		lineReq(2, "2", "5", warehouseB),
		lineReq(3, "1", "5", warehouseA),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, int64(warehouseA), docs[0].WarehouseID)
	require.Len(t, docs[0].Lines, 2)
	assert.True(t, docs[0].TotalQuantity().Equal(dec("4")))

	assert.Equal(t, int64(warehouseB), docs[1].WarehouseID)
	require.Len(t, docs[1].Lines, 1)
	assert.Equal(t, KindDeliveryNote, docs[1].Kind)
}

func TestSplitDeliveryRequiresWarehouse(t *testing.T) {
	_, err := SplitDelivery(3, []LineRequest{lineReq(1, "3", "5", 4), lineReq(2, "1", "5", 0)})
	require.ErrorIs(t, err, ErrWarehouseRequired)

	docs, err := SplitDelivery(3, []LineRequest{lineReq(1, "3", "5", 4), lineReq(2, "0", "5", 0)})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSplitDeliveryValidatesFirst(t *testing.T) {
	_, err := SplitDelivery(3, []LineRequest{lineReq(1, "6", "5", 0)})
	require.ErrorIs(t, err, ErrExceedsAvailable)
}
