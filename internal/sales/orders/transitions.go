package orders

// StockAction is the stock side effect a transition triggers.
type StockAction string

const (
	StockActionNone    StockAction = "none"
	StockActionReserve StockAction = "reserve"
	StockActionRelease StockAction = "release"
)

// allowedTransitions lists the legal next states. Terminal states map to nothing.
var allowedTransitions = map[Status][]Status{
	StatusDraft:              {StatusConfirmed, StatusCancelled},
	StatusConfirmed:          {StatusPartiallyDelivered, StatusDelivered, StatusCancelled},
	StatusPartiallyDelivered: {StatusDelivered, StatusCancelled},
	StatusDelivered:          {StatusClosed, StatusCancelled},
	StatusClosed:             nil,
	StatusCancelled:          nil,
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	next := allowedTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError wrapping ErrInvalidTransition when from -> to is illegal.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// NextStockAction maps a status change to its stock side effect.
func NextStockAction(prev, next Status) StockAction {
	switch {
	case prev == StatusDraft && next == StatusConfirmed:
		return StockActionReserve
	case next == StatusCancelled && (prev == StatusConfirmed || prev == StatusPartiallyDelivered):
		return StockActionRelease
	default:
		return StockActionNone
	}
}

// ValidateLineEdit rejects line-item edits outside draft.
func ValidateLineEdit(s Status) error {
	if !s.CanEditLines() {
		return ErrLineItemsLocked
	}
	return nil
}
