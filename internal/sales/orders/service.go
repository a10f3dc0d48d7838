package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/sales/shared"
	appshared "github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists sales orders.
type Repository interface {
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	List(ctx context.Context, req ListRequest) ([]SalesOrder, int, error)
	Create(ctx context.Context, order SalesOrder) (int64, error)
	Update(ctx context.Context, id int64, changes Changes) (*SalesOrder, error)
	Delete(ctx context.Context, id int64) error
	GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error)
}

// StockAdjustment is the outcome of applying a stock action to an order.
type StockAdjustment struct {
	Applied  bool
	Warnings []string
}

// StockAdjuster reserves or releases stock for an order's lines.
type StockAdjuster interface {
	AdjustForOrder(ctx context.Context, order SalesOrder, action StockAction) (StockAdjustment, error)
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log appshared.AuditLog) error
}

// TransitionObserver is notified about committed status changes.
type TransitionObserver interface {
	ObserveTransition(from, to string, stockApplied bool, warnings int)
}

// numberAttempts bounds retries when a generated number is already taken.
const numberAttempts = 3

type Service struct {
	repo    Repository
	stock   StockAdjuster
	audit   AuditRecorder
	metrics TransitionObserver
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, stock StockAdjuster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, logger: logger, now: time.Now}
}

// SetAudit configures audit logging for status changes.
func (s *Service) SetAudit(audit AuditRecorder) {
	s.audit = audit
}

// SetMetrics configures the transition observer.
func (s *Service) SetMetrics(m TransitionObserver) {
	s.metrics = m
}

func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckInvariants(*order); err != nil {
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]SalesOrder, int, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, *req.Status)
	}
	return s.repo.List(ctx, req)
}

// Create stores a new draft order with computed totals.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy int64) (*SalesOrder, error) {
	orderDate := s.now().UTC()
	if req.OrderDate != nil {
		orderDate = *req.OrderDate
	}

	lines := buildLines(req.Lines)
	totals := computeTotals(lines, req.Discount)

	order := SalesOrder{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		OrderDate:  orderDate,
		Status:     StatusDraft,
		Currency:   req.Currency,
		Subtotal:   totals.Subtotal,
		TaxAmount:  totals.TaxAmount,
		Discount:   totals.Discount,
		GrandTotal: totals.GrandTotal,
		Remarks:    req.Remarks,
		CreatedBy:  createdBy,
		Lines:      lines,
	}

	var id int64
	for attempt := 1; ; attempt++ {
		docNumber, err := s.repo.GenerateNumber(ctx, req.CompanyID, orderDate)
		if err != nil {
			return nil, fmt.Errorf("generate doc number: %w", err)
		}
		order.DocNumber = docNumber
		id, err = s.repo.Create(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < numberAttempts {
			s.logger.Warn("sales order number taken, drawing another", slog.String("doc_number", docNumber))
			continue
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.record(ctx, createdBy, "create", id, map[string]any{"doc_number": order.DocNumber})
	return s.repo.Get(ctx, id)
}

// Update applies a partial update. A status in the patch equal to the current one is a no-op for status.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*TransitionResult, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, order, patch)
}

// Transition moves an order to req.Status. Staying in the same status is rejected.
func (s *Service) Transition(ctx context.Context, id int64, req TransitionRequest) (*TransitionResult, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == order.Status {
		return nil, &TransitionError{From: order.Status, To: req.Status}
	}
	status := req.Status
	return s.apply(ctx, order, Patch{Status: &status, Remarks: req.Remarks})
}

// SyncDeliveryStatus derives partially_delivered or delivered from delivered quantities.
// It returns a nil result when no status change applies.
func (s *Service) SyncDeliveryStatus(ctx context.Context, id int64) (*TransitionResult, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var target Status
	switch {
	case IsFullyDelivered(*order):
		target = StatusDelivered
	case HasDeliveries(*order):
		target = StatusPartiallyDelivered
	default:
		return nil, nil
	}
	if target == order.Status || !CanTransition(order.Status, target) {
		return nil, nil
	}
	return s.apply(ctx, order, Patch{Status: &target})
}

func (s *Service) apply(ctx context.Context, order *SalesOrder, patch Patch) (*TransitionResult, error) {
	prev := order.Status
	next := prev
	if patch.Status != nil {
		next = *patch.Status
	}

	if patch.Lines != nil {
		if err := ValidateLineEdit(prev); err != nil {
			return nil, err
		}
	}
	if next != prev {
		if err := ValidateTransition(prev, next); err != nil {
			return nil, err
		}
	}

	changes := Changes{Remarks: patch.Remarks}
	if next != prev {
		changes.Status = &next
	}

	working := *order
	if patch.Lines != nil {
		working.Lines = buildLines(patch.Lines)
		changes.Lines = working.Lines
	}
	if patch.Lines != nil || patch.Discount != nil {
		discount := patch.Discount
		if discount == nil {
			discount = discountRequestFrom(order.Discount)
		}
		totals := computeTotals(working.Lines, discount)
		changes.Totals = &totals
	}

	result := &TransitionResult{
		Success:        true,
		PreviousStatus: prev,
		NewStatus:      next,
		StockAction:    NextStockAction(prev, next),
	}

	if result.StockAction != StockActionNone && s.stock != nil {
		adj, err := s.stock.AdjustForOrder(ctx, working, result.StockAction)
		if err != nil {
			return nil, fmt.Errorf("%s stock for order %d: %w", result.StockAction, order.ID, err)
		}
		result.StockAdjustmentApplied = adj.Applied
		result.Warnings = adj.Warnings
	}

	updated, err := s.repo.Update(ctx, order.ID, changes)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", order.ID, err)
	}
	result.Order = updated

	if next != prev {
		s.logger.Info("sales order status changed",
			slog.Int64("order_id", order.ID),
			slog.String("from", string(prev)),
			slog.String("to", string(next)),
			slog.Bool("stock_applied", result.StockAdjustmentApplied))
		s.record(ctx, appshared.ActorFromContext(ctx), "status_change", order.ID, map[string]any{
			"from":          prev,
			"to":            next,
			"stock_action":  result.StockAction,
			"stock_applied": result.StockAdjustmentApplied,
			"warnings":      result.Warnings,
		})
		if s.metrics != nil {
			s.metrics.ObserveTransition(string(prev), string(next), result.StockAdjustmentApplied, len(result.Warnings))
		}
	}
	return result, nil
}

// Delete removes a draft order.
func (s *Service) Delete(ctx context.Context, id int64) error {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft {
		return ErrNotDraft
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	s.record(ctx, appshared.ActorFromContext(ctx), "delete", id, nil)
	return nil
}

// Progress returns the billing and delivery progress of an order.
func (s *Service) Progress(ctx context.Context, id int64) (Progress, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return OrderProgress(*order), nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, appshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func buildLines(reqs []CreateLineRequest) []SalesOrderLine {
	lines := make([]SalesOrderLine, 0, len(reqs))
	for i, req := range reqs {
		rates := make([]shared.TaxRate, 0, len(req.Taxes))
		for _, tax := range req.Taxes {
			rates = append(rates, shared.TaxRate{Name: tax.Name, Percent: tax.Percent})
		}
		totals := shared.CalculateLineTotals(req.Quantity, req.Rate, req.DiscountPercent, rates)

		taxes := make([]TaxComponent, 0, len(totals.Taxes))
		for _, tax := range totals.Taxes {
			taxes = append(taxes, TaxComponent{Name: tax.Name, Percent: tax.Percent, Amount: tax.Amount})
		}

		lines = append(lines, SalesOrderLine{
			ItemID:          req.ItemID,
			Description:     req.Description,
			Quantity:        req.Quantity,
			UOM:             req.UOM,
			Rate:            req.Rate,
			DiscountPercent: req.DiscountPercent,
			DiscountAmount:  totals.DiscountAmount,
			Taxes:           taxes,
			TaxAmount:       totals.TaxAmount,
			Amount:          totals.Total,
			BilledQty:       decimal.Zero,
			DeliveredQty:    decimal.Zero,
			LineOrder:       i + 1,
		})
	}
	return lines
}

func computeTotals(lines []SalesOrderLine, discount *DiscountRequest) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount.Sub(line.TaxAmount))
		tax = tax.Add(line.TaxAmount)
	}
	gross := subtotal.Add(tax)

	var d Discount
	if discount != nil {
		d = Discount{
			Type:   discount.Type,
			Value:  discount.Value,
			Amount: shared.HeaderDiscount(discount.Type == DiscountPercent, discount.Value, gross),
		}
	}
	return Totals{
		Subtotal:   subtotal,
		TaxAmount:  tax,
		Discount:   d,
		GrandTotal: gross.Sub(d.Amount),
	}
}

func discountRequestFrom(d Discount) *DiscountRequest {
	if d.Type == "" {
		return nil
	}
	return &DiscountRequest{Type: d.Type, Value: d.Value}
}
