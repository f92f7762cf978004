package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quartermasterhq/pointstore/pkg/inventory"
)

func (store *Store) GetStock(ctx context.Context, key inventory.StockKey) (inventory.Stock, error) {
	return store.getStock(ctx, key, false)
}

func (store *Store) GetStockForUpdate(ctx context.Context, key inventory.StockKey) (inventory.Stock, error) {
	return store.getStock(ctx, key, true)
}

func (store *Store) getStock(ctx context.Context, key inventory.StockKey, lock bool) (inventory.Stock, error) {
	query := store.conn(ctx).Where("warehouse_id = ? AND item_id = ?", key.WarehouseID, key.ItemID)
	if key.VariantID != nil {
		query = query.Where("variant_id = ?", *key.VariantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Stock
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return inventory.Stock{}, inventory.ErrStockNotFound
		}
		return inventory.Stock{}, err
	}
	return stockToDomain(row), nil
}

func (store *Store) CreateStock(ctx context.Context, stock inventory.Stock) (inventory.Stock, error) {
	row := Stock{
		WarehouseID:      stock.WarehouseID,
		ItemID:           stock.ItemID,
		VariantID:        stock.VariantID,
		Quantity:         stock.Quantity,
		ReservedQuantity: stock.ReservedQuantity,
	}
	if err := store.conn(ctx).Create(&row).Error; err != nil {
		return inventory.Stock{}, err
	}
	return stockToDomain(row), nil
}

func (store *Store) SaveStock(ctx context.Context, stock inventory.Stock) error {
	return store.conn(ctx).
		Model(&Stock{}).
		Where("id = ?", stock.ID).
		Updates(map[string]interface{}{
			"quantity":          stock.Quantity,
			"reserved_quantity": stock.ReservedQuantity,
		}).Error
}

func (store *Store) InsertMovement(ctx context.Context, movement inventory.Movement) (inventory.Movement, error) {
	row := StockMovement{
		StockID:   movement.StockID,
		Kind:      movement.Kind.String(),
		Delta:     movement.Delta,
		Before:    movement.Before,
		After:     movement.After,
		Reason:    movement.Reason,
		ActorID:   movement.ActorID,
		OrderID:   movement.OrderID,
		CreatedAt: time.Unix(movement.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.conn(ctx).Create(&row).Error; err != nil {
		return inventory.Movement{}, err
	}
	movement.ID = row.ID
	return movement, nil
}

func (store *Store) ListStocks(ctx context.Context, filter inventory.StockFilter) ([]inventory.Stock, int64, error) {
	query := store.conn(ctx).Model(&Stock{})
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []Stock
	err := query.
		Order("warehouse_id, item_id, variant_id").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	stocks := make([]inventory.Stock, 0, len(rows))
	for _, row := range rows {
		stocks = append(stocks, stockToDomain(row))
	}
	return stocks, total, nil
}

func (store *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, int64, error) {
	query := store.conn(ctx).Model(&StockMovement{})
	if filter.StockID != nil {
		query = query.Where("stock_id = ?", *filter.StockID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("stock_id IN (?)",
			store.conn(ctx).Model(&Stock{}).Select("id").Where("warehouse_id = ?", *filter.WarehouseID))
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []StockMovement
	err := query.
		Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	movements := make([]inventory.Movement, 0, len(rows))
	for _, row := range rows {
		kind, err := inventory.ParseMovementKind(row.Kind)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, inventory.Movement{
			ID:             row.ID,
			StockID:        row.StockID,
			Kind:           kind,
			Delta:          row.Delta,
			Before:         row.Before,
			After:          row.After,
			Reason:         row.Reason,
			ActorID:        row.ActorID,
			OrderID:        row.OrderID,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return movements, total, nil
}

func stockToDomain(row Stock) inventory.Stock {
	return inventory.Stock{
		ID:               row.ID,
		WarehouseID:      row.WarehouseID,
		ItemID:           row.ItemID,
		VariantID:        row.VariantID,
		Quantity:         row.Quantity,
		ReservedQuantity: row.ReservedQuantity,
	}
}
