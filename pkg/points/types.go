package points

import (
	"context"
	"fmt"
)

// Amount is an integer point value in minor units.
type Amount int64

// Int64 returns the raw value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// NewAmount validates an amount and ensures it is strictly positive.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Kind enumerates ledger entry kinds.
type Kind string

const (
	KindGrant   Kind = "grant"
	KindUse     Kind = "use"
	KindReserve Kind = "reserve"
	KindRelease Kind = "release"
	KindRefund  Kind = "refund"
	KindDeduct  Kind = "deduct"
)

// String returns the wire representation.
func (kind Kind) String() string {
	return string(kind)
}

// ParseKind validates a stored entry kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindGrant, KindUse, KindReserve, KindRelease, KindRefund, KindDeduct:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}

// Account holds the mutable point balance for one user. The ledger service
// is the only writer of these fields.
type Account struct {
	UserID        uint
	CurrentPoint  Amount
	ReservedPoint Amount
}

// Available returns the spendable portion of the balance.
func (account Account) Available() Amount {
	return account.CurrentPoint - account.ReservedPoint
}

// Balance is the read view of an account.
type Balance struct {
	CurrentPoint   Amount
	ReservedPoint  Amount
	AvailablePoint Amount
}

// Ref correlates a ledger entry with the order or voucher that caused it.
type Ref struct {
	OrderID   *uint
	VoucherID *uint
}

// OrderRef builds a Ref pointing at an order.
func OrderRef(orderID uint) Ref {
	return Ref{OrderID: &orderID}
}

// VoucherRef builds a Ref pointing at a voucher.
func VoucherRef(voucherID uint) Ref {
	return Ref{VoucherID: &voucherID}
}

// Entry is a single immutable line in the ledger. BalanceAfter and
// ReservedAfter witness the account fields immediately after the mutation.
type Entry struct {
	ID             uint
	UserID         uint
	Kind           Kind
	Amount         Amount
	BalanceAfter   Amount
	ReservedAfter  Amount
	OrderID        *uint
	VoucherID      *uint
	Memo           string
	CreatedUnixUTC int64
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	Kind        *Kind
	FromUnixUTC int64
	ToUnixUTC   int64
	Page        int
	PageSize    int
}

// BulkFailure reports one failed user in a bulk grant.
type BulkFailure struct {
	UserID uint
	Err    error
}

// Store is the persistence contract used by Service. Implementations must
// serialize concurrent mutations of the same account (GetAccountForUpdate
// takes a row lock inside the enclosing transaction).
type Store interface {
	GetAccount(ctx context.Context, userID uint) (Account, error)
	GetAccountForUpdate(ctx context.Context, userID uint) (Account, error)
	SaveAccount(ctx context.Context, account Account) error
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	ListEntries(ctx context.Context, userID uint, filter EntryFilter) ([]Entry, int64, error)
}

// TxRunner executes fn within a single all-or-nothing transaction. Nested
// calls join the enclosing transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
