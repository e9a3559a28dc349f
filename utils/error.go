package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrItemNotTrackable is returned when a ledger operation targets an item that does
// not participate in inventory. Document-posting convenience paths treat this as a
// silent no-op; the direct ledger API surfaces it.
var ErrItemNotTrackable = errors.New("item is not tracked in inventory")

// ValidationError reports a business-rule violation detected before any write.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError is raised when a transfer requests more quantity than the
// source warehouse currently holds. No movement rows exist when this is returned.
type InsufficientStockError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in source warehouse: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}
