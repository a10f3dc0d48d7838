package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NewValidator returns a validator that understands decimal fields, ISO currency codes and order statuses.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, err := currency.ParseISO(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	return v
}

// Decoder converts request bodies into validated requests.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{validate: NewValidator()}
}

// DecodeCreate parses and validates a create payload.
func (d *Decoder) DecodeCreate(r io.Reader) (CreateRequest, error) {
	var req CreateRequest
	if err := decodeStrict(r, &req); err != nil {
		return CreateRequest{}, err
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := d.check(req); err != nil {
		return CreateRequest{}, err
	}
	return req, nil
}

// DecodePatch parses and validates a partial update.
func (d *Decoder) DecodePatch(r io.Reader) (Patch, error) {
	var patch Patch
	if err := decodeStrict(r, &patch); err != nil {
		return Patch{}, err
	}
	if patch.Lines != nil && len(patch.Lines) == 0 {
		return Patch{}, fmt.Errorf("%w: lines must not be empty when provided", ErrMalformedPayload)
	}
	if err := d.check(patch); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

// DecodeTransition parses and validates a status change request.
func (d *Decoder) DecodeTransition(r io.Reader) (TransitionRequest, error) {
	var req TransitionRequest
	if err := decodeStrict(r, &req); err != nil {
		return TransitionRequest{}, err
	}
	if err := d.check(req); err != nil {
		return TransitionRequest{}, err
	}
	return req, nil
}

func (d *Decoder) check(v any) error {
	if err := d.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func decodeStrict(r io.Reader, target any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// CheckInvariants verifies billed and delivered quantities stay within [0, quantity] on every line.
func CheckInvariants(order SalesOrder) error {
	if !order.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, order.Status)
	}
	for _, line := range order.Lines {
		if line.Quantity.IsNegative() {
			return fmt.Errorf("%w: line %d has negative quantity", ErrMalformedPayload, line.ID)
		}
		if line.BilledQty.IsNegative() || line.BilledQty.GreaterThan(line.Quantity) {
			return fmt.Errorf("%w: line %d billed %s outside [0, %s]", ErrMalformedPayload, line.ID, line.BilledQty, line.Quantity)
		}
		if line.DeliveredQty.IsNegative() || line.DeliveredQty.GreaterThan(line.Quantity) {
			return fmt.Errorf("%w: line %d delivered %s outside [0, %s]", ErrMalformedPayload, line.ID, line.DeliveredQty, line.Quantity)
		}
	}
	return nil
}
