package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrStorage           = errors.New("storage failure")

	// ErrIncompleteDelete marks an order that left live storage without reaching the archive.
	ErrIncompleteDelete = errors.New("incomplete delete requires manual repair")
)

// StockError reports which item could not cover a requested quantity.
type StockError struct {
	ItemID    string
	ItemName  string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func NotFoundError(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func InvalidInputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err was caused by the caller rather than by infrastructure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidStatus)
}
