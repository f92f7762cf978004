package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service drives the order state machine. Every state change that has point
// or stock side effects runs inside a single transaction, so a failure in
// the inventory step rolls back the point step with it.
type Service struct {
	store     Store
	ledger    PointLedger
	stock     StockEngine
	directory Directory
	tx        TxRunner
	nowFn     func() time.Time
	logger    *zap.Logger
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger wires a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// NewService wires a Service.
func NewService(store Store, ledger PointLedger, stock StockEngine, directory Directory, tx TxRunner, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil || ledger == nil || stock == nil || directory == nil {
		return nil, fmt.Errorf("%w: store, ledger, stock, and directory dependencies are required", ErrInvalidServiceConfig)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction runner dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:     store,
		ledger:    ledger,
		stock:     stock,
		directory: directory,
		tx:        tx,
		nowFn:     now,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Get returns one order with its lines and delivery record.
func (service *Service) Get(ctx context.Context, orderID uint) (Order, error) {
	return service.store.GetOrder(ctx, orderID)
}

// GetForUser returns one order only if it belongs to userID.
func (service *Service) GetForUser(ctx context.Context, orderID uint, userID uint) (Order, error) {
	order, err := service.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// List lists orders matching the filter, newest first.
func (service *Service) List(ctx context.Context, filter Filter) ([]Order, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	return service.store.ListOrders(ctx, filter)
}

// Create places a new order. Online orders reserve points and stock and land
// in CONFIRMED; offline sales deduct points, decrement stock, and land in
// DELIVERED within the same call. All side effects share one transaction.
func (service *Service) Create(ctx context.Context, request CreateRequest) (Order, error) {
	if request.Channel != ChannelOnline && request.Channel != ChannelOffline {
		return Order{}, fmt.Errorf("%w: %s", ErrInvalidChannel, request.Channel)
	}
	if len(request.Lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	for _, line := range request.Lines {
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity %d", ErrInvalidQuantity, line.ItemID, line.Quantity)
		}
		if line.Settlement != SettlementPoint && line.Settlement != SettlementVoucher {
			return Order{}, fmt.Errorf("%w: %s", ErrInvalidSettlement, line.Settlement)
		}
	}

	exists, err := service.directory.UserExists(ctx, request.UserID)
	if err != nil {
		return Order{}, err
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: %d", ErrUserNotFound, request.UserID)
	}
	exists, err = service.directory.WarehouseExists(ctx, request.WarehouseID)
	if err != nil {
		return Order{}, err
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: %d", ErrWarehouseNotFound, request.WarehouseID)
	}

	now := service.nowFn()
	order := Order{
		Number:          GenerateNumber(now),
		UserID:          request.UserID,
		WarehouseID:     request.WarehouseID,
		Channel:         request.Channel,
		Status:          StatusPending,
		PlacedAtUnixUTC: now.Unix(),
	}

	// Prices are snapshotted here and never re-read. Made-to-measure lines
	// (no variant) carry the price supplied by the caller.
	for _, lineRequest := range request.Lines {
		unitPrice := lineRequest.UnitPrice
		if lineRequest.VariantID != nil {
			unitPrice, err = service.directory.UnitPrice(ctx, lineRequest.ItemID, *lineRequest.VariantID)
			if err != nil {
				return Order{}, err
			}
		}
		if unitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item %d price %d", ErrInvalidPrice, lineRequest.ItemID, unitPrice)
		}
		lineTotal := unitPrice * points.Amount(lineRequest.Quantity)
		order.Lines = append(order.Lines, Line{
			ItemID:     lineRequest.ItemID,
			VariantID:  lineRequest.VariantID,
			Quantity:   lineRequest.Quantity,
			UnitPrice:  unitPrice,
			LineTotal:  lineTotal,
			Settlement: lineRequest.Settlement,
		})
		order.TotalAmount += lineTotal
		if lineRequest.Settlement == SettlementVoucher {
			order.UsedVoucherAmount += lineTotal
		}
	}
	if request.Delivery != nil {
		order.Delivery = &Delivery{
			Mode:           request.Delivery.Mode,
			Status:         DeliveryPreparing,
			DestinationID:  request.Delivery.DestinationID,
			RecipientName:  request.Delivery.RecipientName,
			RecipientPhone: request.Delivery.RecipientPhone,
			Address:        request.Delivery.Address,
			Note:           request.Delivery.Note,
		}
	}

	actorID := request.ActorID
	if actorID == 0 {
		actorID = request.UserID
	}
	pointTotal := order.PointLineTotal()

	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := service.store.CreateOrder(ctx, &order); err != nil {
			return err
		}
		memo := fmt.Sprintf("order %s", order.Number)
		switch request.Channel {
		case ChannelOnline:
			if pointTotal > 0 {
				if _, err := service.ledger.Reserve(ctx, order.UserID, pointTotal, order.ID, memo); err != nil {
					return err
				}
				order.ReservedPoint = pointTotal
			}
			for _, line := range order.Lines {
				if line.VariantID == nil {
					continue
				}
				if _, _, err := service.stock.Reserve(ctx, service.stockKey(order, line), line.Quantity, order.ID, actorID); err != nil {
					return err
				}
			}
			order.Status = StatusConfirmed
		case ChannelOffline:
			if pointTotal > 0 {
				if _, err := service.ledger.DeductImmediate(ctx, order.UserID, pointTotal, points.OrderRef(order.ID), memo); err != nil {
					return err
				}
				order.UsedPoint = pointTotal
			}
			for _, line := range order.Lines {
				if line.VariantID == nil {
					continue
				}
				if _, _, err := service.stock.CommitSale(ctx, service.stockKey(order, line), line.Quantity, order.ID, actorID); err != nil {
					return err
				}
			}
			order.Status = StatusDelivered
			if order.Delivery != nil {
				order.Delivery.Status = DeliveryDelivered
				order.Delivery.DeliveredAtUnixUTC = now.Unix()
				if err := service.store.SaveDelivery(ctx, order.Delivery); err != nil {
					return err
				}
			}
		}
		return service.store.SaveOrder(ctx, &order)
	})
	if operationError != nil {
		return Order{}, operationError
	}
	service.logger.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.String("number", order.Number),
		zap.String("channel", string(order.Channel)),
		zap.Int64("point_total", pointTotal.Int64()))
	return order, nil
}

// StartProcessing moves a confirmed order into fulfilment.
func (service *Service) StartProcessing(ctx context.Context, orderID uint, actorID uint) (Order, error) {
	return service.transition(ctx, orderID, StatusProcessing, func(ctx context.Context, order *Order) error {
		return nil
	})
}

// MarkShipped commits the order's stock reservations into real decrements
// and stamps the delivery record. Points stay reserved until receipt.
func (service *Service) MarkShipped(ctx context.Context, orderID uint, actorID uint, trackingNumber string) (Order, error) {
	return service.transition(ctx, orderID, StatusShipped, func(ctx context.Context, order *Order) error {
		if order.Channel != ChannelOnline {
			return fmt.Errorf("%w: offline orders are never shipped", ErrInvalidTransition)
		}
		for _, line := range order.Lines {
			if line.VariantID == nil || line.Returned {
				continue
			}
			if _, _, err := service.stock.CommitReserved(ctx, service.stockKey(*order, line), line.Quantity, order.ID, actorID); err != nil {
				return err
			}
		}
		if order.Delivery != nil {
			order.Delivery.Status = DeliveryInTransit
			order.Delivery.TrackingNumber = trackingNumber
			order.Delivery.ShippedAtUnixUTC = service.nowFn().Unix()
			return service.store.SaveDelivery(ctx, order.Delivery)
		}
		return nil
	})
}

// MarkDelivered records physical arrival. No point movement happens here;
// the hold converts only on member receipt.
func (service *Service) MarkDelivered(ctx context.Context, orderID uint, actorID uint) (Order, error) {
	return service.transition(ctx, orderID, StatusDelivered, func(ctx context.Context, order *Order) error {
		if order.Delivery != nil {
			order.Delivery.Status = DeliveryDelivered
			order.Delivery.DeliveredAtUnixUTC = service.nowFn().Unix()
			return service.store.SaveDelivery(ctx, order.Delivery)
		}
		return nil
	})
}

// Receive is the member's confirmation of a delivered order. It converts the
// point hold into a final spend.
func (service *Service) Receive(ctx context.Context, orderID uint, userID uint) (Order, error) {
	return service.transition(ctx, orderID, StatusReceived, func(ctx context.Context, order *Order) error {
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.ReservedPoint > 0 {
			memo := fmt.Sprintf("order %s received", order.Number)
			if _, err := service.ledger.DeductReserved(ctx, order.UserID, order.ReservedPoint, order.ID, memo); err != nil {
				return err
			}
			order.UsedPoint += order.ReservedPoint
			order.ReservedPoint = 0
		}
		return nil
	})
}

// Cancel is the member-facing cancellation, allowed only before fulfilment
// starts. Point and stock holds return in full.
func (service *Service) Cancel(ctx context.Context, orderID uint, userID uint, reason string) (Order, error) {
	return service.transition(ctx, orderID, StatusCancelled, func(ctx context.Context, order *Order) error {
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.Status != StatusPending && order.Status != StatusConfirmed {
			return fmt.Errorf("%w: cannot cancel %s order after fulfilment started", ErrInvalidTransition, order.Status)
		}
		if err := service.releaseHolds(ctx, order, userID); err != nil {
			return err
		}
		service.stampCancellation(order, userID, reason)
		return nil
	})
}

// ForceCancel is the staff override. It reverses exactly what the order has
// taken so far: outstanding holds are released, spent points are refunded,
// and committed stock returns to the shelf.
func (service *Service) ForceCancel(ctx context.Context, orderID uint, actorID uint, reason string) (Order, error) {
	return service.transition(ctx, orderID, StatusCancelled, func(ctx context.Context, order *Order) error {
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order is already %s", ErrInvalidTransition, order.Status)
		}
		memo := fmt.Sprintf("order %s force-cancelled", order.Number)
		if order.ReservedPoint > 0 {
			if _, err := service.ledger.Release(ctx, order.UserID, order.ReservedPoint, order.ID, memo); err != nil {
				return err
			}
			order.ReservedPoint = 0
		}
		if order.UsedPoint > 0 {
			if _, err := service.ledger.Refund(ctx, order.UserID, order.UsedPoint, points.OrderRef(order.ID), memo); err != nil {
				return err
			}
			order.UsedPoint = 0
		}
		committed := service.stockCommitted(*order)
		for _, line := range order.Lines {
			if line.VariantID == nil || line.Returned {
				continue
			}
			key := service.stockKey(*order, line)
			if committed {
				if _, _, err := service.stock.Restore(ctx, key, line.Quantity, order.ID, actorID, "force cancellation"); err != nil {
					return err
				}
				continue
			}
			if _, _, err := service.stock.Release(ctx, key, line.Quantity, order.ID, actorID); err != nil {
				return err
			}
		}
		service.stampCancellation(order, actorID, reason)
		return nil
	})
}

// ProcessRefund returns the targeted lines. Stock goes back to the shelf and
// the point value comes back the way it went out: released while still held,
// refunded once spent. When every line is returned the order rolls to
// REFUNDED, otherwise to RETURNED.
func (service *Service) ProcessRefund(ctx context.Context, orderID uint, actorID uint, returns []ReturnRequest) (Order, error) {
	if len(returns) == 0 {
		return Order{}, ErrLineNotFound
	}
	var result Order
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := service.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusShipped, StatusDelivered, StatusReceived, StatusReturned:
		default:
			return fmt.Errorf("%w: cannot return lines of a %s order", ErrInvalidTransition, order.Status)
		}

		now := service.nowFn().Unix()
		var returnedPoint points.Amount
		for _, returnRequest := range returns {
			line := findLine(order.Lines, returnRequest.LineID)
			if line == nil {
				return fmt.Errorf("%w: %d", ErrLineNotFound, returnRequest.LineID)
			}
			if line.Returned {
				return fmt.Errorf("%w: %d", ErrLineReturned, returnRequest.LineID)
			}
			if line.VariantID != nil {
				if _, _, err := service.stock.Restore(ctx, service.stockKey(order, *line), line.Quantity, order.ID, actorID, "line return"); err != nil {
					return err
				}
			}
			line.Returned = true
			line.ReturnedAtUnixUTC = now
			line.ReturnReason = returnRequest.Reason
			if err := service.store.SaveLine(ctx, line); err != nil {
				return err
			}
			if line.Settlement == SettlementPoint {
				returnedPoint += line.LineTotal
			}
		}

		if returnedPoint > 0 {
			memo := fmt.Sprintf("order %s line return", order.Number)
			releaseAmount := returnedPoint
			if releaseAmount > order.ReservedPoint {
				releaseAmount = order.ReservedPoint
			}
			refundAmount := returnedPoint - releaseAmount
			if refundAmount > order.UsedPoint {
				return fmt.Errorf("%w: order %d returning %d points with reserved %d used %d",
					ErrIntegrityViolation, order.ID, returnedPoint, order.ReservedPoint, order.UsedPoint)
			}
			if releaseAmount > 0 {
				if _, err := service.ledger.Release(ctx, order.UserID, releaseAmount, order.ID, memo); err != nil {
					return err
				}
				order.ReservedPoint -= releaseAmount
			}
			if refundAmount > 0 {
				if _, err := service.ledger.Refund(ctx, order.UserID, refundAmount, points.OrderRef(order.ID), memo); err != nil {
					return err
				}
				order.UsedPoint -= refundAmount
			}
		}

		target := StatusReturned
		if order.AllLinesReturned() {
			target = StatusRefunded
		}
		if !order.Status.CanTransitionTo(target) && order.Status != target {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, target)
		}
		order.Status = target
		if err := service.store.SaveOrder(ctx, &order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if operationError != nil {
		return Order{}, operationError
	}
	service.logger.Info("order lines returned",
		zap.Uint("order_id", result.ID),
		zap.Int("lines", len(returns)),
		zap.String("status", result.Status.String()))
	return result, nil
}

// transition locks the order, verifies the move is legal, runs the side
// effects, and persists the new status, all in one transaction.
func (service *Service) transition(ctx context.Context, orderID uint, target Status, apply func(ctx context.Context, order *Order) error) (Order, error) {
	var result Order
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := service.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, target)
		}
		if err := apply(ctx, &order); err != nil {
			return err
		}
		order.Status = target
		if err := service.store.SaveOrder(ctx, &order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if operationError != nil {
		return Order{}, operationError
	}
	service.logger.Info("order status changed",
		zap.Uint("order_id", result.ID),
		zap.String("status", result.Status.String()))
	return result, nil
}

// releaseHolds returns an unfulfilled order's point and stock reservations.
func (service *Service) releaseHolds(ctx context.Context, order *Order, actorID uint) error {
	if order.ReservedPoint > 0 {
		memo := fmt.Sprintf("order %s cancelled", order.Number)
		if _, err := service.ledger.Release(ctx, order.UserID, order.ReservedPoint, order.ID, memo); err != nil {
			return err
		}
		order.ReservedPoint = 0
	}
	for _, line := range order.Lines {
		if line.VariantID == nil || line.Returned {
			continue
		}
		if _, _, err := service.stock.Release(ctx, service.stockKey(*order, line), line.Quantity, order.ID, actorID); err != nil {
			return err
		}
	}
	return nil
}

// stockCommitted reports whether the order's stock has left the shelf, as
// opposed to still sitting under reservation.
func (service *Service) stockCommitted(order Order) bool {
	if order.Channel == ChannelOffline {
		return true
	}
	switch order.Status {
	case StatusShipped, StatusDelivered, StatusReturned:
		return true
	}
	return false
}

func (service *Service) stampCancellation(order *Order, actorID uint, reason string) {
	order.CancelledAtUnixUTC = service.nowFn().Unix()
	order.CancelReason = reason
	cancelledBy := actorID
	order.CancelledBy = &cancelledBy
}

func (service *Service) stockKey(order Order, line Line) inventory.StockKey {
	return inventory.StockKey{WarehouseID: order.WarehouseID, ItemID: line.ItemID, VariantID: line.VariantID}
}

func findLine(lines []Line, lineID uint) *Line {
	for index := range lines {
		if lines[index].ID == lineID {
			return &lines[index]
		}
	}
	return nil
}
