// internal/domain/order/errors.go
package order

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the order lifecycle. Handlers map them to
// HTTP status codes with errors.Is/As.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrMissingAddress    = errors.New("delivery address is required for home delivery")
	ErrMissingPhone      = errors.New("phone number is required")
	ErrAlreadyCancelled  = errors.New("order is already cancelled")
	ErrAlreadyAssigned   = errors.New("order is already assigned to another delivery agent")
	ErrTerminalState     = errors.New("order is in a terminal state")
	ErrNotOwner          = errors.New("access denied")
	ErrNotHomeDelivery   = errors.New("order is not a home delivery order")
	ErrNotCancelledState = errors.New("only cancelled orders can be deleted")
)

// InsufficientStockError names the product that failed the stock check
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product '%s': available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// InvalidTransitionError reports a rejected status change
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
