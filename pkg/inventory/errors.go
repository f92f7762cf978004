package inventory

import "errors"

// Domain-level error values returned by the reservation engine.
var (
	ErrStockNotFound        = errors.New("stock record not found")
	ErrNegativeStock        = errors.New("stock quantity would fall below its reserved portion")
	ErrInsufficientStock    = errors.New("insufficient available stock")
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidMovementKind  = errors.New("invalid movement kind")
	ErrInvalidAdjustKind    = errors.New("adjustment kind not allowed here")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	// ErrIntegrityViolation signals 0 <= reserved <= quantity was about to
	// break after a validated mutation; a bug, not a business rejection.
	ErrIntegrityViolation = errors.New("stock integrity violation")
)
