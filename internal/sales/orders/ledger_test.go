package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPendingQuantities(t *testing.T) {
	line := SalesOrderLine{Quantity: dec("10"), BilledQty: dec("4"), DeliveredQty: dec("10")}
	assert.True(t, PendingToBill(line).Equal(dec("6")))
	assert.True(t, PendingToDeliver(line).IsZero())

	over := SalesOrderLine{Quantity: dec("5"), BilledQty: dec("7"), DeliveredQty: dec("6")}
	assert.True(t, PendingToBill(over).IsZero())
	assert.True(t, PendingToDeliver(over).IsZero())
}

func TestPendingToBillPlusBilledEqualsQuantity(t *testing.T) {
	for _, billed := range []string{"0", "0.5", "3", "9.999", "10"} {
		line := SalesOrderLine{Quantity: dec("10"), BilledQty: dec(billed)}
		assert.True(t, PendingToBill(line).Add(line.BilledQty).Equal(line.Quantity), "billed %s", billed)
	}
}

func TestFulfillmentPercent(t *testing.T) {
	assert.True(t, FulfillmentPercent(dec("0"), dec("0")).IsZero())
	assert.True(t, FulfillmentPercent(dec("5"), dec("0")).IsZero())
	assert.True(t, FulfillmentPercent(dec("5"), dec("-2")).IsZero())
	assert.True(t, FulfillmentPercent(dec("12"), dec("10")).Equal(dec("1")))
	assert.True(t, FulfillmentPercent(dec("5"), dec("10")).Equal(dec("0.5")))
	assert.True(t, FulfillmentPercent(dec("-1"), dec("10")).IsZero())
}

func TestOrderProgress(t *testing.T) {
	order := SalesOrder{ID: 3, Status: StatusPartiallyDelivered, Lines: []SalesOrderLine{
		{ID: 1, Quantity: dec("10"), BilledQty: dec("10"), DeliveredQty: dec("5")},
		{ID: 2, Quantity: dec("10"), BilledQty: dec("0"), DeliveredQty: dec("0")},
		{ID: 3, Quantity: dec("0")},
	}}

	p := OrderProgress(order)
	assert.Equal(t, int64(3), p.OrderID)
	assert.True(t, p.BilledPercent.Equal(dec("0.5")))
	assert.True(t, p.DeliveredPercent.Equal(dec("0.25")))
	assert.Len(t, p.Lines, 3)
	assert.True(t, p.Lines[0].PendingToDeliver.Equal(dec("5")))
	assert.True(t, p.Lines[2].BilledPercent.IsZero())
}

func TestFullyDeliveredAndBilled(t *testing.T) {
	order := SalesOrder{Lines: []SalesOrderLine{
		{Quantity: dec("2"), BilledQty: dec("2"), DeliveredQty: dec("2")},
		{Quantity: dec("0")},
	}}
	assert.True(t, IsFullyDelivered(order))
	assert.True(t, IsFullyBilled(order))
	assert.True(t, HasDeliveries(order))

	order.Lines[0].DeliveredQty = dec("1")
	assert.False(t, IsFullyDelivered(order))
	assert.True(t, HasDeliveries(order))

	assert.False(t, IsFullyDelivered(SalesOrder{}))
	assert.False(t, HasDeliveries(SalesOrder{}))
}
