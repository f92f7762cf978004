package inventory

import (
	"context"
	"fmt"
)

// StockKey identifies one stock record: warehouse x item x variant.
// Variant is nil for made-to-measure items that have no size variants.
type StockKey struct {
	WarehouseID uint
	ItemID      uint
	VariantID   *uint
}

// Stock is the per-key quantity tracker. Created lazily on first receipt and
// never deleted; a zero quantity marks it dormant.
type Stock struct {
	ID               uint
	WarehouseID      uint
	ItemID           uint
	VariantID        *uint
	Quantity         int
	ReservedQuantity int
}

// Key returns the identifying triple.
func (stock Stock) Key() StockKey {
	return StockKey{WarehouseID: stock.WarehouseID, ItemID: stock.ItemID, VariantID: stock.VariantID}
}

// Available returns the promisable portion of the quantity.
func (stock Stock) Available() int {
	return stock.Quantity - stock.ReservedQuantity
}

// MovementKind enumerates stock movement kinds.
type MovementKind string

const (
	KindIncrease   MovementKind = "increase"
	KindDecrease   MovementKind = "decrease"
	KindRestock    MovementKind = "restock"
	KindCorrection MovementKind = "correction"
	KindReturn     MovementKind = "return"
	// Reserved-portion movements. Before/After refer to ReservedQuantity
	// for these two kinds and to Quantity for all others.
	KindReserve MovementKind = "reserve"
	KindRelease MovementKind = "release"
)

// String returns the wire representation.
func (kind MovementKind) String() string {
	return string(kind)
}

// ParseMovementKind validates a stored movement kind.
func ParseMovementKind(raw string) (MovementKind, error) {
	switch MovementKind(raw) {
	case KindIncrease, KindDecrease, KindRestock, KindCorrection, KindReturn, KindReserve, KindRelease:
		return MovementKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMovementKind, raw)
}

// Movement is one append-only line of stock history.
type Movement struct {
	ID             uint
	StockID        uint
	Kind           MovementKind
	Delta          int
	Before         int
	After          int
	Reason         string
	ActorID        uint
	OrderID        *uint
	CreatedUnixUTC int64
}

// MovementFilter narrows ListMovements results.
type MovementFilter struct {
	StockID     *uint
	WarehouseID *uint
	OrderID     *uint
	Page        int
	PageSize    int
}

// StockFilter narrows ListStocks results.
type StockFilter struct {
	WarehouseID *uint
	ItemID      *uint
	Page        int
	PageSize    int
}

// Summary aggregates stock health for a warehouse view.
type Summary struct {
	TotalRecords int
	LowStock     int
	OutOfStock   int
}

// Store is the persistence contract used by Service. Implementations must
// serialize concurrent mutations of the same stock record.
type Store interface {
	GetStock(ctx context.Context, key StockKey) (Stock, error)
	GetStockForUpdate(ctx context.Context, key StockKey) (Stock, error)
	CreateStock(ctx context.Context, stock Stock) (Stock, error)
	SaveStock(ctx context.Context, stock Stock) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	ListStocks(ctx context.Context, filter StockFilter) ([]Stock, int64, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int64, error)
}

// TxRunner executes fn within a single all-or-nothing transaction. Nested
// calls join the enclosing transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
