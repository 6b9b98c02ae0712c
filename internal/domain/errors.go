package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoAvailability    = errors.New("no availability for the requested dates")
	ErrInvalidPromo      = errors.New("promo code is not valid for this stay")
	ErrInactive          = errors.New("business unit or room type is not bookable")
	ErrAmountMismatch    = errors.New("paid amount does not match payment")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidTransition = errors.New("reservation cannot change to the requested status")
	ErrGateway           = errors.New("payment provider unavailable")
	ErrDuplicate         = errors.New("duplicate key")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
