package orders

import (
	"context"

	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

// Status enumerates the order lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusReceived   Status = "received"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
	StatusRefunded   Status = "refunded"
)

// String returns the wire representation.
func (status Status) String() string {
	return string(status)
}

// statusTransitions defines the legal moves of the state machine. Missing
// source states are terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusDelivered, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusReturned, StatusRefunded, StatusCancelled},
	StatusDelivered:  {StatusReceived, StatusReturned, StatusRefunded, StatusCancelled},
	StatusReceived:   {StatusReturned, StatusRefunded},
	StatusReturned:   {StatusRefunded, StatusCancelled},
}

// CanTransitionTo reports whether a move to target is legal.
func (status Status) CanTransitionTo(target Status) bool {
	for _, allowed := range statusTransitions[status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order can never change again through the
// cancellation path.
func (status Status) IsTerminal() bool {
	switch status {
	case StatusReceived, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Channel distinguishes shipped online orders from in-person offline sales.
type Channel string

const (
	ChannelOnline  Channel = "online"
	ChannelOffline Channel = "offline"
)

// Settlement is the per-line payment method.
type Settlement string

const (
	SettlementPoint   Settlement = "point"
	SettlementVoucher Settlement = "voucher"
)

// DeliveryMode is how an order reaches the member.
type DeliveryMode string

const (
	DeliveryParcel DeliveryMode = "parcel"
	DeliveryDirect DeliveryMode = "direct"
)

// DeliveryStatus tracks the delivery record's own ladder.
type DeliveryStatus string

const (
	DeliveryPreparing DeliveryStatus = "preparing"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Line is one ordered position. UnitPrice is a snapshot taken at creation
// and never re-read from the catalog.
type Line struct {
	ID                uint
	OrderID           uint
	ItemID            uint
	VariantID         *uint
	Quantity          int
	UnitPrice         points.Amount
	LineTotal         points.Amount
	Settlement        Settlement
	Returned          bool
	ReturnedAtUnixUTC int64
	ReturnReason      string
}

// Delivery is the optional shipping record attached to an order.
type Delivery struct {
	ID                 uint
	OrderID            uint
	Mode               DeliveryMode
	Status             DeliveryStatus
	DestinationID      *uint
	RecipientName      string
	RecipientPhone     string
	Address            string
	Note               string
	TrackingNumber     string
	ShippedAtUnixUTC   int64
	DeliveredAtUnixUTC int64
}

// Order is the aggregate driven by the state machine. ReservedPoint tracks
// the outstanding hold, UsedPoint the spent portion; together they never
// exceed the POINT-settled line total.
type Order struct {
	ID                 uint
	Number             string
	UserID             uint
	WarehouseID        uint
	Channel            Channel
	Status             Status
	TotalAmount        points.Amount
	ReservedPoint      points.Amount
	UsedPoint          points.Amount
	UsedVoucherAmount  points.Amount
	Lines              []Line
	Delivery           *Delivery
	PlacedAtUnixUTC    int64
	CancelledAtUnixUTC int64
	CancelReason       string
	CancelledBy        *uint
}

// PointLineTotal sums the POINT-settled line totals.
func (order Order) PointLineTotal() points.Amount {
	var total points.Amount
	for _, line := range order.Lines {
		if line.Settlement == SettlementPoint {
			total += line.LineTotal
		}
	}
	return total
}

// AllLinesReturned reports whether every line has been returned.
func (order Order) AllLinesReturned() bool {
	for _, line := range order.Lines {
		if !line.Returned {
			return false
		}
	}
	return len(order.Lines) > 0
}

// Filter narrows List results.
type Filter struct {
	UserID      *uint
	WarehouseID *uint
	Channel     *Channel
	Status      *Status
	Page        int
	PageSize    int
}

// LineRequest describes one position of a new order. UnitPrice is only
// honored for variant-less (made-to-measure) lines; priced variants are
// looked up in the catalog.
type LineRequest struct {
	ItemID     uint
	VariantID  *uint
	Quantity   int
	UnitPrice  points.Amount
	Settlement Settlement
}

// DeliveryRequest describes the shipping record of a new order.
type DeliveryRequest struct {
	Mode           DeliveryMode
	DestinationID  *uint
	RecipientName  string
	RecipientPhone string
	Address        string
	Note           string
}

// CreateRequest describes a new order. ActorID is the staff member keying
// in an offline sale; when zero it defaults to the ordering member.
type CreateRequest struct {
	UserID      uint
	WarehouseID uint
	Channel     Channel
	ActorID     uint
	Lines       []LineRequest
	Delivery    *DeliveryRequest
}

// ReturnRequest targets one line of a per-line return.
type ReturnRequest struct {
	LineID uint
	Reason string
}

// Store is the persistence contract used by Service.
type Store interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, orderID uint) (Order, error)
	GetOrderForUpdate(ctx context.Context, orderID uint) (Order, error)
	SaveOrder(ctx context.Context, order *Order) error
	SaveLine(ctx context.Context, line *Line) error
	SaveDelivery(ctx context.Context, delivery *Delivery) error
	ListOrders(ctx context.Context, filter Filter) ([]Order, int64, error)
}

// PointLedger is the slice of the point ledger the state machine drives.
// Satisfied by *points.Service.
type PointLedger interface {
	Balance(ctx context.Context, userID uint) (points.Balance, error)
	Reserve(ctx context.Context, userID uint, amount points.Amount, orderID uint, memo string) (points.Entry, error)
	Release(ctx context.Context, userID uint, amount points.Amount, orderID uint, memo string) (points.Entry, error)
	DeductReserved(ctx context.Context, userID uint, amount points.Amount, orderID uint, memo string) (points.Entry, error)
	DeductImmediate(ctx context.Context, userID uint, amount points.Amount, ref points.Ref, memo string) (points.Entry, error)
	Refund(ctx context.Context, userID uint, amount points.Amount, ref points.Ref, memo string) (points.Entry, error)
}

// StockEngine is the slice of the reservation engine the state machine
// drives. Satisfied by *inventory.Service.
type StockEngine interface {
	Reserve(ctx context.Context, key inventory.StockKey, quantity int, orderID uint, actorID uint) (inventory.Stock, inventory.Movement, error)
	Release(ctx context.Context, key inventory.StockKey, quantity int, orderID uint, actorID uint) (inventory.Stock, inventory.Movement, error)
	CommitReserved(ctx context.Context, key inventory.StockKey, quantity int, orderID uint, actorID uint) (inventory.Stock, inventory.Movement, error)
	CommitSale(ctx context.Context, key inventory.StockKey, quantity int, orderID uint, actorID uint) (inventory.Stock, inventory.Movement, error)
	Restore(ctx context.Context, key inventory.StockKey, quantity int, orderID uint, actorID uint, reason string) (inventory.Stock, inventory.Movement, error)
}

// Directory provides the existence and price lookups the core consumes from
// the excluded user/warehouse/catalog surfaces.
type Directory interface {
	UserExists(ctx context.Context, userID uint) (bool, error)
	WarehouseExists(ctx context.Context, warehouseID uint) (bool, error)
	UnitPrice(ctx context.Context, itemID uint, variantID uint) (points.Amount, error)
}

// TxRunner executes fn within a single all-or-nothing transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
