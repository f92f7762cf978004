package vouchers

import "errors"

// Domain-level error values returned by the voucher lifecycle.
var (
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrInvalidAmount        = errors.New("invalid voucher amount")
	ErrInvalidTransition    = errors.New("illegal voucher status transition")
	ErrVoucherRegistered    = errors.New("voucher already registered with a tailor shop")
	ErrLineNotEligible      = errors.New("order line not eligible for a voucher")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
