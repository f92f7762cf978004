package vouchers

import (
	"context"

	"github.com/quartermasterhq/pointstore/pkg/points"
)

// Status enumerates the voucher lifecycle.
type Status string

const (
	StatusIssued          Status = "issued"
	StatusRegistered      Status = "registered"
	StatusUsed            Status = "used"
	StatusCancelRequested Status = "cancel_requested"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
)

// String returns the wire representation.
func (status Status) String() string {
	return string(status)
}

// Voucher is a tailoring entitlement. Direct vouchers are funded by an
// immediate point deduction at issuance; order vouchers ride on an order
// line whose points the order state machine already handles.
type Voucher struct {
	ID                     uint
	Number                 string
	UserID                 uint
	OrderID                *uint
	LineID                 *uint
	TailorShopID           *uint
	Amount                 points.Amount
	Status                 Status
	Memo                   string
	// DetailsJSON carries the garment measurements captured when the member
	// registers the voucher with a tailor shop.
	DetailsJSON            string
	CancelReason           string
	IssuedAtUnixUTC        int64
	RegisteredAtUnixUTC    int64
	UsedAtUnixUTC          int64
	CancelRequestedUnixUTC int64
	CancelledAtUnixUTC     int64
	ValidUntilUnixUTC      int64
}

// PointFunded reports whether cancelling this voucher owes the member a
// point refund.
func (voucher Voucher) PointFunded() bool {
	return voucher.OrderID == nil
}

// Filter narrows List results.
type Filter struct {
	UserID       *uint
	TailorShopID *uint
	Status       *Status
	Page         int
	PageSize     int
}

// Store is the persistence contract used by Service.
type Store interface {
	CreateVoucher(ctx context.Context, voucher *Voucher) error
	GetVoucher(ctx context.Context, voucherID uint) (Voucher, error)
	GetVoucherForUpdate(ctx context.Context, voucherID uint) (Voucher, error)
	SaveVoucher(ctx context.Context, voucher *Voucher) error
	ListVouchers(ctx context.Context, filter Filter) ([]Voucher, int64, error)
}

// PointLedger is the slice of the point ledger voucher issuance drives.
// Satisfied by *points.Service.
type PointLedger interface {
	DeductImmediate(ctx context.Context, userID uint, amount points.Amount, ref points.Ref, memo string) (points.Entry, error)
	Refund(ctx context.Context, userID uint, amount points.Amount, ref points.Ref, memo string) (points.Entry, error)
}

// OrderDirectory resolves the voucher-settled order line a voucher is
// issued against.
type OrderDirectory interface {
	VoucherLine(ctx context.Context, orderID uint, lineID uint) (userID uint, amount points.Amount, err error)
}

// TxRunner executes fn within a single all-or-nothing transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
