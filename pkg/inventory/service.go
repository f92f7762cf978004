package inventory

import (
	"context"
	"errors"
	"fmt"
)

const (
	operationReceive        = "receive"
	operationAdjust         = "adjust"
	operationReserve        = "reserve"
	operationRelease        = "release"
	operationCommitReserved = "commit_reserved"
	operationCommitSale     = "commit_sale"
	operationRestore        = "restore"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	lowStockThreshold = 10
	defaultPageSize   = 50
	maxPageSize       = 200
)

// Service contains the reservation engine domain logic over a Store. It is
// the sole writer of stock quantity fields.
type Service struct {
	store  Store
	tx     TxRunner
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, tx TxRunner, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction runner dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, tx: tx, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetStock returns the stock record for a key.
func (service *Service) GetStock(ctx context.Context, key StockKey) (Stock, error) {
	return service.store.GetStock(ctx, key)
}

// ListStocks lists stock records.
func (service *Service) ListStocks(ctx context.Context, filter StockFilter) ([]Stock, int64, error) {
	normalizePages(&filter.Page, &filter.PageSize)
	return service.store.ListStocks(ctx, filter)
}

// ListMovements lists stock history, newest first.
func (service *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int64, error) {
	normalizePages(&filter.Page, &filter.PageSize)
	return service.store.ListMovements(ctx, filter)
}

// Summarize aggregates stock health, optionally per warehouse. It walks
// every page so counts stay correct past the page-size cap.
func (service *Service) Summarize(ctx context.Context, warehouseID *uint) (Summary, error) {
	var summary Summary
	for page := 1; ; page++ {
		stocks, total, err := service.store.ListStocks(ctx, StockFilter{WarehouseID: warehouseID, Page: page, PageSize: maxPageSize})
		if err != nil {
			return Summary{}, err
		}
		summary.TotalRecords = int(total)
		for _, stock := range stocks {
			switch {
			case stock.Quantity == 0:
				summary.OutOfStock++
			case stock.Quantity <= lowStockThreshold:
				summary.LowStock++
			}
		}
		if len(stocks) < maxPageSize {
			return summary, nil
		}
	}
}

// Receive books incoming stock, creating the record on first receipt.
func (service *Service) Receive(ctx context.Context, key StockKey, quantity int, actorID uint, reason string) (Stock, Movement, error) {
	if quantity <= 0 {
		return Stock{}, Movement{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	var stock Stock
	var movement Movement
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := service.store.GetStockForUpdate(ctx, key)
		if errors.Is(err, ErrStockNotFound) {
			current, err = service.store.CreateStock(ctx, Stock{
				WarehouseID: key.WarehouseID,
				ItemID:      key.ItemID,
				VariantID:   key.VariantID,
			})
		}
		if err != nil {
			return err
		}
		before := current.Quantity
		current.Quantity += quantity
		if err := service.store.SaveStock(ctx, current); err != nil {
			return err
		}
		if reason == "" {
			reason = "stock receipt"
		}
		inserted, err := service.store.InsertMovement(ctx, Movement{
			StockID:        current.ID,
			Kind:           KindIncrease,
			Delta:          quantity,
			Before:         before,
			After:          current.Quantity,
			Reason:         reason,
			ActorID:        actorID,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		stock = current
		movement = inserted
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationReceive, Key: key, Quantity: quantity, ActorID: actorID, Error: operationError})
	if operationError != nil {
		return Stock{}, Movement{}, operationError
	}
	return stock, movement, nil
}

// Adjust applies a manual stock correction. INCREASE and RESTOCK add,
// DECREASE subtracts, CORRECTION sets the absolute quantity. The quantity
// never drops below the reserved portion.
func (service *Service) Adjust(ctx context.Context, key StockKey, kind MovementKind, quantity int, actorID uint, reason string) (Stock, Movement, error) {
	if quantity < 0 {
		return Stock{}, Movement{}, fmt.Errorf("%w: must not be negative", ErrInvalidQuantity)
	}
	switch kind {
	case KindIncrease, KindRestock, KindDecrease, KindCorrection:
	default:
		return Stock{}, Movement{}, fmt.Errorf("%w: %s", ErrInvalidAdjustKind, kind)
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, nil, reason, func(stock *Stock) (MovementKind, int, error) {
		before := stock.Quantity
		switch kind {
		case KindIncrease, KindRestock:
			stock.Quantity += quantity
		case KindDecrease:
			if stock.Quantity-quantity < stock.ReservedQuantity {
				return "", 0, fmt.Errorf("%w: quantity %d reserved %d decrease %d",
					ErrNegativeStock, stock.Quantity, stock.ReservedQuantity, quantity)
			}
			stock.Quantity -= quantity
		case KindCorrection:
			if quantity < stock.ReservedQuantity {
				return "", 0, fmt.Errorf("%w: correction %d below reserved %d",
					ErrNegativeStock, quantity, stock.ReservedQuantity)
			}
			stock.Quantity = quantity
		}
		return kind, stock.Quantity - before, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationAdjust, Key: key, Quantity: quantity, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// Reserve places a soft hold for an online order line.
func (service *Service) Reserve(ctx context.Context, key StockKey, quantity int, orderID uint, actorID uint) (Stock, Movement, error) {
	if err := requirePositive(quantity); err != nil {
		return Stock{}, Movement{}, err
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, &orderID, "order stock reservation", func(stock *Stock) (MovementKind, int, error) {
		if quantity > stock.Available() {
			return "", 0, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, stock.Available(), quantity)
		}
		stock.ReservedQuantity += quantity
		return KindReserve, quantity, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationReserve, Key: key, Quantity: quantity, OrderID: &orderID, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// Release returns a soft hold to the shelf on cancellation.
func (service *Service) Release(ctx context.Context, key StockKey, quantity int, orderID uint, actorID uint) (Stock, Movement, error) {
	if err := requirePositive(quantity); err != nil {
		return Stock{}, Movement{}, err
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, &orderID, "order stock release", func(stock *Stock) (MovementKind, int, error) {
		if quantity > stock.ReservedQuantity {
			return "", 0, fmt.Errorf("%w: reserved %d, requested %d", ErrInsufficientReserved, stock.ReservedQuantity, quantity)
		}
		stock.ReservedQuantity -= quantity
		return KindRelease, -quantity, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRelease, Key: key, Quantity: quantity, OrderID: &orderID, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// CommitReserved converts a soft hold into an outbound decrement at
// shipment time.
func (service *Service) CommitReserved(ctx context.Context, key StockKey, quantity int, orderID uint, actorID uint) (Stock, Movement, error) {
	if err := requirePositive(quantity); err != nil {
		return Stock{}, Movement{}, err
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, &orderID, "order shipment", func(stock *Stock) (MovementKind, int, error) {
		if quantity > stock.ReservedQuantity {
			return "", 0, fmt.Errorf("%w: reserved %d, requested %d", ErrInsufficientReserved, stock.ReservedQuantity, quantity)
		}
		stock.ReservedQuantity -= quantity
		stock.Quantity -= quantity
		return KindDecrease, -quantity, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationCommitReserved, Key: key, Quantity: quantity, OrderID: &orderID, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// CommitSale decrements shelf stock immediately for an offline sale.
func (service *Service) CommitSale(ctx context.Context, key StockKey, quantity int, orderID uint, actorID uint) (Stock, Movement, error) {
	if err := requirePositive(quantity); err != nil {
		return Stock{}, Movement{}, err
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, &orderID, "offline sale", func(stock *Stock) (MovementKind, int, error) {
		if quantity > stock.Available() {
			return "", 0, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, stock.Available(), quantity)
		}
		stock.Quantity -= quantity
		return KindDecrease, -quantity, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationCommitSale, Key: key, Quantity: quantity, OrderID: &orderID, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// Restore reverses a committed decrement on cancellation or return.
func (service *Service) Restore(ctx context.Context, key StockKey, quantity int, orderID uint, actorID uint, reason string) (Stock, Movement, error) {
	if err := requirePositive(quantity); err != nil {
		return Stock{}, Movement{}, err
	}
	if reason == "" {
		reason = "return stock restore"
	}
	stock, movement, operationError := service.mutate(ctx, key, actorID, &orderID, reason, func(stock *Stock) (MovementKind, int, error) {
		stock.Quantity += quantity
		return KindReturn, quantity, nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRestore, Key: key, Quantity: quantity, OrderID: &orderID, ActorID: actorID, Error: operationError})
	return stock, movement, operationError
}

// mutate runs one atomic read-validate-write-append unit over an existing
// stock record. Reserved-portion kinds record reserved before/after values;
// all other kinds record quantity before/after.
func (service *Service) mutate(ctx context.Context, key StockKey, actorID uint, orderID *uint, reason string, apply func(stock *Stock) (MovementKind, int, error)) (Stock, Movement, error) {
	var stock Stock
	var movement Movement
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := service.store.GetStockForUpdate(ctx, key)
		if err != nil {
			return err
		}
		beforeQuantity := current.Quantity
		beforeReserved := current.ReservedQuantity
		kind, delta, err := apply(&current)
		if err != nil {
			return err
		}
		if current.Quantity < 0 || current.ReservedQuantity < 0 || current.ReservedQuantity > current.Quantity {
			return fmt.Errorf("%w: quantity %d reserved %d after %s",
				ErrIntegrityViolation, current.Quantity, current.ReservedQuantity, kind)
		}
		if err := service.store.SaveStock(ctx, current); err != nil {
			return err
		}
		before, after := beforeQuantity, current.Quantity
		if kind == KindReserve || kind == KindRelease {
			before, after = beforeReserved, current.ReservedQuantity
		}
		inserted, err := service.store.InsertMovement(ctx, Movement{
			StockID:        current.ID,
			Kind:           kind,
			Delta:          delta,
			Before:         before,
			After:          after,
			Reason:         reason,
			ActorID:        actorID,
			OrderID:        orderID,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		stock = current
		movement = inserted
		return nil
	})
	if operationError != nil {
		return Stock{}, Movement{}, operationError
	}
	return stock, movement, nil
}

func requirePositive(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return nil
}

func normalizePages(page *int, pageSize *int) {
	if *page <= 0 {
		*page = 1
	}
	if *pageSize <= 0 {
		*pageSize = defaultPageSize
	}
	if *pageSize > maxPageSize {
		*pageSize = maxPageSize
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
