package models

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed value rejected at construction.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Ordering violation kinds.
const (
	OrderOutOfOrder = "out_of_order"
	OrderDuplicate  = "duplicate"
	OrderFutureSkew = "future_skew"
)

// OrderingError is returned under the raise policy when a bar arrives late,
// duplicated, or too far in the future. It is distinct from ValidationError.
type OrderingError struct {
	Kind     string
	BarTs    time.Time
	LastSeen time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("ordering violation (%s): bar %s, last seen %s",
		e.Kind, e.BarTs.UTC().Format(time.RFC3339), e.LastSeen.UTC().Format(time.RFC3339))
}

// IsOrderingError reports whether err carries an OrderingError.
func IsOrderingError(err error) bool {
	var oe *OrderingError
	return errors.As(err, &oe)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
