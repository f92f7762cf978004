package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

// Directory lookups backing orders.Directory. The rows come from upstream
// enrollment and catalog systems; this service only reads them.

func (store *Store) UserExists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := store.conn(ctx).
		Model(&User{}).
		Where("id = ? AND active", userID).
		Count(&count).Error
	return count > 0, err
}

func (store *Store) WarehouseExists(ctx context.Context, warehouseID uint) (bool, error) {
	var count int64
	err := store.conn(ctx).
		Model(&Warehouse{}).
		Where("id = ?", warehouseID).
		Count(&count).Error
	return count > 0, err
}

func (store *Store) UnitPrice(ctx context.Context, itemID uint, variantID uint) (points.Amount, error) {
	var variant ItemVariant
	err := store.conn(ctx).
		Where("id = ? AND item_id = ?", variantID, itemID).
		Take(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: item %d variant %d", orders.ErrItemNotFound, itemID, variantID)
	}
	if err != nil {
		return 0, err
	}
	return points.Amount(variant.Price), nil
}
