package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("sales order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLineItemsLocked   = errors.New("line items can only be edited while the order is draft")
	ErrNotDraft          = errors.New("only draft orders can be deleted")
	ErrMalformedPayload  = errors.New("malformed sales order payload")
	ErrDuplicateNumber   = errors.New("sales order number already used")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
