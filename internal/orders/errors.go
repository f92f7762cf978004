package orders

import "errors"

// Domain-level error values returned by the order state machine.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrLineNotFound      = errors.New("order line not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrEmptyOrder        = errors.New("order has no lines")
	ErrInvalidQuantity   = errors.New("invalid line quantity")
	ErrInvalidPrice      = errors.New("invalid unit price")
	ErrInvalidChannel    = errors.New("invalid order channel")
	ErrInvalidSettlement = errors.New("invalid line settlement")
	ErrInvalidTransition = errors.New("illegal order status transition")
	ErrLineReturned      = errors.New("order line already returned")
	// ErrIntegrityViolation signals the order's point bookkeeping no longer
	// matches its ledger side effects; a bug, not a business rejection.
	ErrIntegrityViolation   = errors.New("order integrity violation")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
