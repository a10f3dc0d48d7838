package allocation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/sales/orders"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type fakeOrders struct {
	orders  map[int64]*orders.SalesOrder
	syncs   []int64
	syncErr error
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*orders.SalesOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	c := *o
	c.Lines = append([]orders.SalesOrderLine(nil), o.Lines...)
	return &c, nil
}

func (f *fakeOrders) SyncDeliveryStatus(_ context.Context, id int64) (*orders.TransitionResult, error) {
	f.syncs = append(f.syncs, id)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &orders.TransitionResult{Success: true, PreviousStatus: orders.StatusConfirmed, NewStatus: orders.StatusPartiallyDelivered}, nil
}

type fakeWriter struct {
	invoices   []DocumentRequest
	deliveries []DocumentRequest
	failFor    map[int64]error
	invoiceErr error
	nextID     int64
}

func (f *fakeWriter) CreateInvoice(_ context.Context, req DocumentRequest) (DocumentRef, error) {
	if f.invoiceErr != nil {
		return DocumentRef{}, f.invoiceErr
	}
	f.invoices = append(f.invoices, req)
	f.nextID++
	return DocumentRef{ID: f.nextID, No: fmt.Sprintf("SINV-%d", f.nextID), Kind: KindInvoice}, nil
}

func (f *fakeWriter) CreateDeliveryNote(_ context.Context, req DocumentRequest) (DocumentRef, error) {
	if err := f.failFor[req.WarehouseID]; err != nil {
		return DocumentRef{}, err
	}
	f.deliveries = append(f.deliveries, req)
	f.nextID++
	return DocumentRef{ID: f.nextID, No: fmt.Sprintf("DN-%d", f.nextID), Kind: KindDeliveryNote, WarehouseID: req.WarehouseID}, nil
}

type fakeGuard struct {
	keys    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{keys: make(map[string]bool)}
}

func (f *fakeGuard) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeGuard) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeObserver struct {
	ok, failed int
}

func (f *fakeObserver) ObserveDocument(_ string, ok bool) {
	if ok {
		f.ok++
		return
	}
	f.failed++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderLine(id int64, qty, billed, delivered string) orders.SalesOrderLine {
	return orders.SalesOrderLine{
		ID: id, SalesOrderID: 1, ItemID: id * 100, UOM: "pcs", Rate: dec("10"),
		Quantity: dec(qty), BilledQty: dec(billed), DeliveredQty: dec(delivered),
	}
}

func newFixture(status orders.Status) (*Service, *fakeOrders, *fakeWriter) {
	reader := &fakeOrders{orders: map[int64]*orders.SalesOrder{
		1: {ID: 1, Status: status, Currency: "USD", Lines: []orders.SalesOrderLine{
			orderLine(1, "10", "0", "0"),
			orderLine(2, "5", "2", "1"),
			orderLine(3, "4", "0", "0"),
		}},
	}}
	writer := &fakeWriter{}
	return NewService(reader, writer, testLogger()), reader, writer
}

func sel(lineID int64, qty string, warehouse int64) LineSelection {
	return LineSelection{LineID: lineID, Quantity: dec(qty), WarehouseID: warehouse}
}

func TestCreateInvoiceUsesPendingToBill(t *testing.T) {
	svc, _, writer := newFixture(orders.StatusConfirmed)
	audit := &fakeAudit{}
	observer := &fakeObserver{}
	svc.SetAudit(audit)
	svc.SetMetrics(observer)

	result, err := svc.CreateInvoice(context.Background(), 1, Request{Lines: []LineSelection{sel(2, "3", 0), sel(1, "5", 0)}})
	require.NoError(t, err)
	require.Len(t, result.DocumentsCreated, 1)
	assert.Empty(t, result.PerWarehouseErrors)

	require.Len(t, writer.invoices, 1)
	doc := writer.invoices[0]
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, int64(1), doc.Lines[0].LineID, "lines follow order-line order")
	assert.Equal(t, int64(2), doc.Lines[1].LineID)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, 1, observer.ok)

	_, err = svc.CreateInvoice(context.Background(), 1, Request{Lines: []LineSelection{sel(2, "4", 0)}})
	require.ErrorIs(t, err, ErrExceedsAvailable)
}

func TestCreateInvoiceMatchesOrderGrandTotal(t *testing.T) {
	taxed := orders.SalesOrderLine{
		ID: 1, SalesOrderID: 1, ItemID: 100, UOM: "pcs",
		Quantity: dec("2"), Rate: dec("100"), DiscountPercent: dec("10"),
		DiscountAmount: dec("20"), TaxAmount: dec("19.8"), Amount: dec("199.8"),
		BilledQty: dec("0"), DeliveredQty: dec("0"),
		Taxes: []orders.TaxComponent{{Name: "VAT", Percent: dec("11"), Amount: dec("19.8")}},
	}
	plain := orders.SalesOrderLine{
		ID: 2, SalesOrderID: 1, ItemID: 200, UOM: "pcs",
		Quantity: dec("1"), Rate: dec("50"), Amount: dec("50"),
		BilledQty: dec("0"), DeliveredQty: dec("0"),
	}
	reader := &fakeOrders{orders: map[int64]*orders.SalesOrder{
		1: {
			ID: 1, Status: orders.StatusConfirmed, Currency: "USD",
			Subtotal: dec("230"), TaxAmount: dec("19.8"),
			Discount:   orders.Discount{Type: orders.DiscountPercent, Value: dec("10"), Amount: dec("24.98")},
			GrandTotal: dec("224.82"),
			Lines:      []orders.SalesOrderLine{taxed, plain},
		},
	}}
	writer := &fakeWriter{}
	svc := NewService(reader, writer, testLogger())

	_, err := svc.CreateInvoice(context.Background(), 1, Request{Lines: []LineSelection{sel(1, "2", 0), sel(2, "1", 0)}})
	require.NoError(t, err)
	require.Len(t, writer.invoices, 1)
	doc := writer.invoices[0]
	assert.True(t, doc.Lines[0].Amount.Equal(dec("199.8")), doc.Lines[0].Amount.String())
	assert.True(t, doc.DiscountAmount.Equal(dec("24.98")), doc.DiscountAmount.String())
	assert.True(t, doc.Total().Equal(dec("224.82")), doc.Total().String())
}

func TestCreateInvoiceRejectsBeforeWriting(t *testing.T) {
	svc, _, writer := newFixture(orders.StatusConfirmed)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, 1, Request{Lines: []LineSelection{sel(9, "1", 0)}})
	require.ErrorIs(t, err, ErrUnknownLine)

	_, err = svc.CreateInvoice(ctx, 1, Request{Lines: []LineSelection{sel(1, "1", 0), sel(1, "2", 0)}})
	require.ErrorIs(t, err, ErrDuplicateLine)

	_, err = svc.CreateInvoice(ctx, 1, Request{Lines: []LineSelection{sel(1, "0", 0)}})
	require.ErrorIs(t, err, ErrNoItemsSelected)

	_, err = svc.CreateInvoice(ctx, 1, Request{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateInvoice(ctx, 2, Request{Lines: []LineSelection{sel(1, "1", 0)}})
	require.ErrorIs(t, err, orders.ErrNotFound)

	assert.Empty(t, writer.invoices)
}

func TestStatusGate(t *testing.T) {
	for _, tc := range []struct {
		status   orders.Status
		invoice  bool
		delivery bool
	}{
		{orders.StatusDraft, false, false},
		{orders.StatusConfirmed, true, true},
		{orders.StatusPartiallyDelivered, true, true},
		{orders.StatusDelivered, true, false},
		{orders.StatusClosed, false, false},
		{orders.StatusCancelled, false, false},
	} {
		t.Run(string(tc.status), func(t *testing.T) {
			svc, _, _ := newFixture(tc.status)
			_, err := svc.CreateInvoice(context.Background(), 1, Request{Lines: []LineSelection{sel(1, "1", 0)}})
			if tc.invoice {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrOrderNotAllocatable)
			}
			_, err = svc.CreateDeliveryNotes(context.Background(), 1, Request{Lines: []LineSelection{sel(1, "1", 5)}})
			if tc.delivery {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrOrderNotAllocatable)
			}
		})
	}
}

func TestCreateDeliveryNotesPerWarehouse(t *testing.T) {
	svc, reader, writer := newFixture(orders.StatusConfirmed)

	result, err := svc.CreateDeliveryNotes(context.Background(), 1, Request{Lines: []LineSelection{
		sel(1, "3", 20),
		sel(2, "2", 10),
		sel(3, "1", 20),
	}})
	require.NoError(t, err)
	require.Len(t, result.DocumentsCreated, 2)
	assert.Equal(t, int64(20), result.DocumentsCreated[0].WarehouseID)
	assert.Equal(t, int64(10), result.DocumentsCreated[1].WarehouseID)
	assert.True(t, writer.deliveries[0].TotalQuantity().Equal(dec("4")))
	require.NotNil(t, result.StatusUpdate)
	assert.Equal(t, orders.StatusPartiallyDelivered, result.StatusUpdate.NewStatus)
	assert.Equal(t, []int64{1}, reader.syncs)

	_, err = svc.CreateDeliveryNotes(context.Background(), 1, Request{Lines: []LineSelection{sel(2, "5", 10)}})
	require.ErrorIs(t, err, ErrExceedsAvailable, "line 2 has 4 pending to deliver")
}

func TestCreateDeliveryNotesKeepsCreatedGroupsOnFailure(t *testing.T) {
	svc, reader, writer := newFixture(orders.StatusConfirmed)
	observer := &fakeObserver{}
	svc.SetMetrics(observer)
	writer.failFor = map[int64]error{10: errors.New("warehouse offline")}

	result, err := svc.CreateDeliveryNotes(context.Background(), 1, Request{Lines: []LineSelection{
		sel(1, "3", 20),
		sel(2, "2", 10),
	}})
	require.NoError(t, err)
	require.Len(t, result.DocumentsCreated, 1)
	require.Len(t, result.PerWarehouseErrors, 1)
	assert.Equal(t, int64(10), result.PerWarehouseErrors[0].WarehouseID)
	assert.Contains(t, result.PerWarehouseErrors[0].Error, "warehouse offline")
	assert.Len(t, reader.syncs, 1)
	assert.Equal(t, 1, observer.ok)
	assert.Equal(t, 1, observer.failed)
}

func TestCreateDeliveryNotesAllFailedReleasesKey(t *testing.T) {
	svc, reader, writer := newFixture(orders.StatusConfirmed)
	guard := newFakeGuard()
	svc.SetIdempotency(guard)
	boom := errors.New("boom")
	writer.failFor = map[int64]error{20: boom}

	_, err := svc.CreateDeliveryNotes(context.Background(), 1, Request{
		Lines:          []LineSelection{sel(1, "3", 20)},
		IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"key-1"}, guard.deleted)
	assert.Empty(t, reader.syncs)
}

func TestCreateDeliveryNotesSyncFailureIsWarning(t *testing.T) {
	svc, reader, _ := newFixture(orders.StatusConfirmed)
	reader.syncErr = errors.New("db down")

	result, err := svc.CreateDeliveryNotes(context.Background(), 1, Request{Lines: []LineSelection{sel(1, "1", 20)}})
	require.NoError(t, err)
	assert.Len(t, result.DocumentsCreated, 1)
	assert.Nil(t, result.StatusUpdate)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	svc, _, writer := newFixture(orders.StatusConfirmed)
	guard := newFakeGuard()
	svc.SetIdempotency(guard)
	req := Request{Lines: []LineSelection{sel(1, "1", 0)}, IdempotencyKey: "abc"}

	_, err := svc.CreateInvoice(context.Background(), 1, req)
	require.NoError(t, err)
	_, err = svc.CreateInvoice(context.Background(), 1, req)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, writer.invoices, 1)
}

func TestCreateInvoiceFailureReleasesKey(t *testing.T) {
	svc, _, writer := newFixture(orders.StatusConfirmed)
	guard := newFakeGuard()
	svc.SetIdempotency(guard)
	writer.invoiceErr = ErrExceedsAvailable

	_, err := svc.CreateInvoice(context.Background(), 1, Request{Lines: []LineSelection{sel(1, "1", 0)}, IdempotencyKey: "k"})
	require.ErrorIs(t, err, ErrExceedsAvailable)
	assert.Equal(t, []string{"k"}, guard.deleted)
	assert.Empty(t, guard.keys)
}
