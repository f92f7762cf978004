package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// PointAccount represents the point_accounts table. One row per member;
// the balance columns are authoritative and the entries are witnesses.
type PointAccount struct {
	UserID        uint      `gorm:"primaryKey"`
	CurrentPoint  int64     `gorm:"not null;default:0"`
	ReservedPoint int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (PointAccount) TableName() string { return "point_accounts" }

// PointEntry mirrors the point_entries table. Append only.
type PointEntry struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        uint      `gorm:"not null;index:idx_point_entries_user_created,priority:1"`
	Kind          string    `gorm:"not null"`
	Amount        int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	ReservedAfter int64     `gorm:"not null"`
	OrderID       *uint     `gorm:"index"`
	VoucherID     *uint     `gorm:"index"`
	Memo          string    `gorm:""`
	CreatedAt     time.Time `gorm:"not null;index:idx_point_entries_user_created,priority:2"`
}

func (PointEntry) TableName() string { return "point_entries" }

// Stock represents the stocks table, one row per warehouse/item/variant.
type Stock struct {
	ID               uint      `gorm:"primaryKey"`
	WarehouseID      uint      `gorm:"not null;index:idx_stocks_key,unique,priority:1"`
	ItemID           uint      `gorm:"not null;index:idx_stocks_key,unique,priority:2"`
	VariantID        *uint     `gorm:"index:idx_stocks_key,unique,priority:3"`
	Quantity         int       `gorm:"not null;default:0"`
	ReservedQuantity int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Stock) TableName() string { return "stocks" }

// StockMovement mirrors the stock_movements table. Append only.
type StockMovement struct {
	ID        uint      `gorm:"primaryKey"`
	StockID   uint      `gorm:"not null;index:idx_stock_movements_stock_created,priority:1"`
	Kind      string    `gorm:"not null"`
	Delta     int       `gorm:"not null"`
	Before    int       `gorm:"column:quantity_before;not null"`
	After     int       `gorm:"column:quantity_after;not null"`
	Reason    string    `gorm:""`
	ActorID   uint      `gorm:"not null"`
	OrderID   *uint     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null;index:idx_stock_movements_stock_created,priority:2"`
}

func (StockMovement) TableName() string { return "stock_movements" }

// Order represents the orders table.
type Order struct {
	ID                uint           `gorm:"primaryKey"`
	Number            string         `gorm:"not null;uniqueIndex"`
	UserID            uint           `gorm:"not null;index"`
	WarehouseID       uint           `gorm:"not null;index"`
	Channel           string         `gorm:"not null"`
	Status            string         `gorm:"not null;index"`
	TotalAmount       int64          `gorm:"not null;default:0"`
	ReservedPoint     int64          `gorm:"not null;default:0"`
	UsedPoint         int64          `gorm:"not null;default:0"`
	UsedVoucherAmount int64          `gorm:"not null;default:0"`
	CancelReason      string         `gorm:""`
	CancelledBy       *uint          `gorm:""`
	CancelledAt       *time.Time     `gorm:""`
	Lines             []OrderLine    `gorm:"foreignKey:OrderID"`
	Delivery          *OrderDelivery `gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time      `gorm:"not null"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// OrderLine represents the order_lines table.
type OrderLine struct {
	ID           uint       `gorm:"primaryKey"`
	OrderID      uint       `gorm:"not null;index"`
	ItemID       uint       `gorm:"not null"`
	VariantID    *uint      `gorm:""`
	Quantity     int        `gorm:"not null"`
	UnitPrice    int64      `gorm:"not null"`
	LineTotal    int64      `gorm:"not null"`
	Settlement   string     `gorm:"not null"`
	Returned     bool       `gorm:"not null;default:false"`
	ReturnedAt   *time.Time `gorm:""`
	ReturnReason string     `gorm:""`
}

func (OrderLine) TableName() string { return "order_lines" }

// OrderDelivery represents the order_deliveries table.
type OrderDelivery struct {
	ID             uint       `gorm:"primaryKey"`
	OrderID        uint       `gorm:"not null;uniqueIndex"`
	Mode           string     `gorm:"not null"`
	Status         string     `gorm:"not null"`
	DestinationID  *uint      `gorm:""`
	RecipientName  string     `gorm:""`
	RecipientPhone string     `gorm:""`
	Address        string     `gorm:""`
	Note           string     `gorm:""`
	TrackingNumber string     `gorm:""`
	ShippedAt      *time.Time `gorm:""`
	DeliveredAt    *time.Time `gorm:""`
}

func (OrderDelivery) TableName() string { return "order_deliveries" }

// Voucher represents the vouchers table.
type Voucher struct {
	ID                uint           `gorm:"primaryKey"`
	Number            string         `gorm:"not null;uniqueIndex"`
	UserID            uint           `gorm:"not null;index"`
	OrderID           *uint          `gorm:"index"`
	LineID            *uint          `gorm:""`
	TailorShopID      *uint          `gorm:"index"`
	Amount            int64          `gorm:"not null"`
	Status            string         `gorm:"not null;index"`
	Memo              string         `gorm:""`
	Details           datatypes.JSON `gorm:""`
	CancelReason      string         `gorm:""`
	IssuedAt          time.Time      `gorm:"not null"`
	RegisteredAt      *time.Time     `gorm:""`
	UsedAt            *time.Time     `gorm:""`
	CancelRequestedAt *time.Time     `gorm:""`
	CancelledAt       *time.Time     `gorm:""`
	ValidUntil        time.Time      `gorm:"not null"`
}

func (Voucher) TableName() string { return "vouchers" }

// User is the minimal member directory row the core needs for existence
// checks and scoping. Enrollment itself lives outside this service.
type User struct {
	ID            uint      `gorm:"primaryKey"`
	ServiceNumber string    `gorm:"not null;uniqueIndex"`
	Name          string    `gorm:"not null"`
	Role          string    `gorm:"not null;default:member"`
	// Pointer so an explicit false survives Create (GORM drops zero values
	// and the column default would resurrect the member).
	Active    *bool     `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Warehouse represents the warehouses table.
type Warehouse struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"not null"`
	Region string `gorm:""`
}

func (Warehouse) TableName() string { return "warehouses" }

// TailorShop represents the tailor_shops table.
type TailorShop struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"not null"`
	Region string `gorm:""`
	Active *bool  `gorm:"not null;default:true"`
}

func (TailorShop) TableName() string { return "tailor_shops" }

// Item represents the items table.
type Item struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	Category string `gorm:""`
}

func (Item) TableName() string { return "items" }

// ItemVariant represents the item_variants table. Price is the point value
// snapshotted onto order lines at creation.
type ItemVariant struct {
	ID     uint   `gorm:"primaryKey"`
	ItemID uint   `gorm:"not null;index"`
	SKU    string `gorm:"not null;uniqueIndex"`
	Size   string `gorm:""`
	Price  int64  `gorm:"not null"`
}

func (ItemVariant) TableName() string { return "item_variants" }
