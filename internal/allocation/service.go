package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/sales/orders"
	salesshared "github.com/odyssey-erp/fulfillment/internal/sales/shared"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

var (
	ErrUnknownLine         = errors.New("allocation: line does not belong to order")
	ErrDuplicateLine       = errors.New("allocation: line selected more than once")
	ErrOrderNotAllocatable = errors.New("allocation: order status does not allow this document")
	ErrInvalidRequest      = errors.New("allocation: invalid request")
)

// OrderReader loads orders and re-derives delivery status.
type OrderReader interface {
	Get(ctx context.Context, id int64) (*orders.SalesOrder, error)
	SyncDeliveryStatus(ctx context.Context, id int64) (*orders.TransitionResult, error)
}

// DocumentRef identifies a created document.
type DocumentRef struct {
	ID          int64  `json:"id"`
	No          string `json:"no"`
	Kind        Kind   `json:"kind"`
	WarehouseID int64  `json:"warehouse_id,omitempty"`
}

// DocumentWriter creates documents and books the quantities on the order lines.
type DocumentWriter interface {
	CreateInvoice(ctx context.Context, req DocumentRequest) (DocumentRef, error)
	CreateDeliveryNote(ctx context.Context, req DocumentRequest) (DocumentRef, error)
}

// IdempotencyGuard rejects replayed submissions.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DocumentObserver is notified per document attempt.
type DocumentObserver interface {
	ObserveDocument(kind string, ok bool)
}

// LineSelection is the caller's quantity for one order line.
type LineSelection struct {
	LineID      int64           `json:"line_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	WarehouseID int64           `json:"warehouse_id,omitempty" validate:"gte=0"`
}

// Request is an invoice or delivery-note submission.
type Request struct {
	Lines          []LineSelection `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string          `json:"-"`
}

// WarehouseError reports a failed delivery-note group.
type WarehouseError struct {
	WarehouseID int64  `json:"warehouse_id"`
	Error       string `json:"error"`
}

// Result aggregates per-document outcomes.
type Result struct {
	DocumentsCreated   []DocumentRef            `json:"documents_created"`
	PerWarehouseErrors []WarehouseError         `json:"per_warehouse_errors"`
	StatusUpdate       *orders.TransitionResult `json:"status_update,omitempty"`
}

type Service struct {
	orders   OrderReader
	writer   DocumentWriter
	idem     IdempotencyGuard
	audit    AuditRecorder
	metrics  DocumentObserver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(reader OrderReader, writer DocumentWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: reader, writer: writer, validate: orders.NewValidator(), logger: logger}
}

// SetIdempotency enables Idempotency-Key handling.
func (s *Service) SetIdempotency(guard IdempotencyGuard) {
	s.idem = guard
}

// SetAudit configures audit logging for created documents.
func (s *Service) SetAudit(audit AuditRecorder) {
	s.audit = audit
}

// SetMetrics configures the document observer.
func (s *Service) SetMetrics(m DocumentObserver) {
	s.metrics = m
}

var invoiceStatuses = map[orders.Status]bool{
	orders.StatusConfirmed:          true,
	orders.StatusPartiallyDelivered: true,
	orders.StatusDelivered:          true,
}

var deliveryStatuses = map[orders.Status]bool{
	orders.StatusConfirmed:          true,
	orders.StatusPartiallyDelivered: true,
}

// CreateInvoice bills the selected quantities on a single invoice.
func (s *Service) CreateInvoice(ctx context.Context, orderID int64, req Request) (*Result, error) {
	order, lines, err := s.prepare(ctx, orderID, req, KindInvoice)
	if err != nil {
		return nil, err
	}
	doc, err := SplitInvoice(order.ID, lines)
	if err != nil {
		return nil, err
	}
	doc.DiscountAmount = ProrateDiscount(order.Discount.Amount, order.Subtotal.Add(order.TaxAmount), doc.LinesTotal())
	if err := s.claim(ctx, req.IdempotencyKey, KindInvoice); err != nil {
		return nil, err
	}

	ref, err := s.writer.CreateInvoice(ctx, doc)
	s.observe(KindInvoice, err == nil)
	if err != nil {
		s.release(ctx, req.IdempotencyKey)
		return nil, fmt.Errorf("create invoice for order %d: %w", order.ID, err)
	}
	s.record(ctx, ref, order.ID, doc)

	return &Result{DocumentsCreated: []DocumentRef{ref}, PerWarehouseErrors: []WarehouseError{}}, nil
}

// CreateDeliveryNotes creates one delivery note per warehouse. Groups are created
// sequentially and a failed group does not undo groups created before it.
func (s *Service) CreateDeliveryNotes(ctx context.Context, orderID int64, req Request) (*Result, error) {
	order, lines, err := s.prepare(ctx, orderID, req, KindDeliveryNote)
	if err != nil {
		return nil, err
	}
	docs, err := SplitDelivery(order.ID, lines)
	if err != nil {
		return nil, err
	}
	if err := s.claim(ctx, req.IdempotencyKey, KindDeliveryNote); err != nil {
		return nil, err
	}

	result := &Result{DocumentsCreated: []DocumentRef{}, PerWarehouseErrors: []WarehouseError{}}
	var firstErr error
	for _, doc := range docs {
		ref, err := s.writer.CreateDeliveryNote(ctx, doc)
		s.observe(KindDeliveryNote, err == nil)
		if err != nil {
			s.logger.Warn("delivery note group failed",
				slog.Int64("order_id", order.ID),
				slog.Int64("warehouse_id", doc.WarehouseID),
				slog.Any("error", err))
			result.PerWarehouseErrors = append(result.PerWarehouseErrors, WarehouseError{WarehouseID: doc.WarehouseID, Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.record(ctx, ref, order.ID, doc)
		result.DocumentsCreated = append(result.DocumentsCreated, ref)
	}

	if len(result.DocumentsCreated) == 0 {
		s.release(ctx, req.IdempotencyKey)
		return nil, fmt.Errorf("create delivery notes for order %d: %w", order.ID, firstErr)
	}

	update, err := s.orders.SyncDeliveryStatus(ctx, order.ID)
	if err != nil {
		s.logger.Warn("sync delivery status", slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
	result.StatusUpdate = update
	return result, nil
}

func (s *Service) prepare(ctx context.Context, orderID int64, req Request, kind Kind) (*orders.SalesOrder, []LineRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	allowed := invoiceStatuses
	if kind == KindDeliveryNote {
		allowed = deliveryStatuses
	}
	if !allowed[order.Status] {
		return nil, nil, fmt.Errorf("%w: %s on %s order", ErrOrderNotAllocatable, kind, order.Status)
	}

	known := make(map[int64]bool, len(order.Lines))
	for _, line := range order.Lines {
		known[line.ID] = true
	}
	selected := make(map[int64]LineSelection, len(req.Lines))
	for _, sel := range req.Lines {
		if !known[sel.LineID] {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnknownLine, sel.LineID)
		}
		if _, dup := selected[sel.LineID]; dup {
			return nil, nil, fmt.Errorf("%w: %d", ErrDuplicateLine, sel.LineID)
		}
		selected[sel.LineID] = sel
	}

	lines := make([]LineRequest, 0, len(order.Lines))
	for _, line := range order.Lines {
		sel, ok := selected[line.ID]
		if !ok {
			continue
		}
		pending := orders.PendingToBill(line)
		if kind == KindDeliveryNote {
			pending = orders.PendingToDeliver(line)
		}
		taxes := make([]salesshared.TaxRate, 0, len(line.Taxes))
		for _, tax := range line.Taxes {
			taxes = append(taxes, salesshared.TaxRate{Name: tax.Name, Percent: tax.Percent})
		}
		lines = append(lines, LineRequest{
			LineID:          line.ID,
			ItemID:          line.ItemID,
			UOM:             line.UOM,
			Rate:            line.Rate,
			DiscountPercent: line.DiscountPercent,
			Taxes:           taxes,
			Quantity:        sel.Quantity,
			Pending:         pending,
			WarehouseID:     sel.WarehouseID,
		})
	}
	return order, lines, nil
}

func (s *Service) claim(ctx context.Context, key string, kind Kind) error {
	if key == "" || s.idem == nil {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, key, string(kind))
}

func (s *Service) release(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) observe(kind Kind, ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveDocument(string(kind), ok)
	}
}

func (s *Service) record(ctx context.Context, ref DocumentRef, orderID int64, doc DocumentRequest) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "create",
		Entity:   string(doc.Kind),
		EntityID: strconv.FormatInt(ref.ID, 10),
		Meta: map[string]any{
			"no":             ref.No,
			"sales_order_id": orderID,
			"warehouse_id":   doc.WarehouseID,
			"total_quantity": doc.TotalQuantity().String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("document", ref.No), slog.Any("error", err))
	}
}
