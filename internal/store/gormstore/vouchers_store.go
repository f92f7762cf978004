package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

func (store *Store) CreateVoucher(ctx context.Context, voucher *vouchers.Voucher) error {
	row := voucherFromDomain(*voucher)
	err := store.conn(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return ErrDuplicateNumber
	}
	if err != nil {
		return err
	}
	voucher.ID = row.ID
	return nil
}

func (store *Store) GetVoucher(ctx context.Context, voucherID uint) (vouchers.Voucher, error) {
	return store.getVoucher(ctx, voucherID, false)
}

func (store *Store) GetVoucherForUpdate(ctx context.Context, voucherID uint) (vouchers.Voucher, error) {
	return store.getVoucher(ctx, voucherID, true)
}

func (store *Store) getVoucher(ctx context.Context, voucherID uint, lock bool) (vouchers.Voucher, error) {
	query := store.conn(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Voucher
	if err := query.Take(&row, "id = ?", voucherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vouchers.Voucher{}, vouchers.ErrVoucherNotFound
		}
		return vouchers.Voucher{}, err
	}
	return voucherToDomain(row), nil
}

func (store *Store) SaveVoucher(ctx context.Context, voucher *vouchers.Voucher) error {
	return store.conn(ctx).
		Model(&Voucher{}).
		Where("id = ?", voucher.ID).
		Updates(map[string]interface{}{
			"status":              voucher.Status.String(),
			"tailor_shop_id":      voucher.TailorShopID,
			"details":             detailsJSON(voucher.DetailsJSON),
			"cancel_reason":       voucher.CancelReason,
			"registered_at":       unixOrNil(voucher.RegisteredAtUnixUTC),
			"used_at":             unixOrNil(voucher.UsedAtUnixUTC),
			"cancel_requested_at": unixOrNil(voucher.CancelRequestedUnixUTC),
			"cancelled_at":        unixOrNil(voucher.CancelledAtUnixUTC),
		}).Error
}

func (store *Store) ListVouchers(ctx context.Context, filter vouchers.Filter) ([]vouchers.Voucher, int64, error) {
	query := store.conn(ctx).Model(&Voucher{})
	if filter.UserID != nil {
		query = query.Scopes(OwnedBy(*filter.UserID))
	}
	if filter.TailorShopID != nil {
		query = query.Where("tailor_shop_id = ?", *filter.TailorShopID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []Voucher
	err := query.
		Order("issued_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	result := make([]vouchers.Voucher, 0, len(rows))
	for _, row := range rows {
		result = append(result, voucherToDomain(row))
	}
	return result, total, nil
}

func voucherFromDomain(voucher vouchers.Voucher) Voucher {
	return Voucher{
		ID:                voucher.ID,
		Number:            voucher.Number,
		UserID:            voucher.UserID,
		OrderID:           voucher.OrderID,
		LineID:            voucher.LineID,
		TailorShopID:      voucher.TailorShopID,
		Amount:            voucher.Amount.Int64(),
		Status:            voucher.Status.String(),
		Memo:              voucher.Memo,
		Details:           detailsJSON(voucher.DetailsJSON),
		CancelReason:      voucher.CancelReason,
		IssuedAt:          time.Unix(voucher.IssuedAtUnixUTC, 0).UTC(),
		RegisteredAt:      unixOrNil(voucher.RegisteredAtUnixUTC),
		UsedAt:            unixOrNil(voucher.UsedAtUnixUTC),
		CancelRequestedAt: unixOrNil(voucher.CancelRequestedUnixUTC),
		CancelledAt:       unixOrNil(voucher.CancelledAtUnixUTC),
		ValidUntil:        time.Unix(voucher.ValidUntilUnixUTC, 0).UTC(),
	}
}

func voucherToDomain(row Voucher) vouchers.Voucher {
	return vouchers.Voucher{
		ID:                     row.ID,
		Number:                 row.Number,
		UserID:                 row.UserID,
		OrderID:                row.OrderID,
		LineID:                 row.LineID,
		TailorShopID:           row.TailorShopID,
		Amount:                 points.Amount(row.Amount),
		Status:                 vouchers.Status(row.Status),
		Memo:                   row.Memo,
		DetailsJSON:            string(row.Details),
		CancelReason:           row.CancelReason,
		IssuedAtUnixUTC:        row.IssuedAt.Unix(),
		RegisteredAtUnixUTC:    timeOrZero(row.RegisteredAt),
		UsedAtUnixUTC:          timeOrZero(row.UsedAt),
		CancelRequestedUnixUTC: timeOrZero(row.CancelRequestedAt),
		CancelledAtUnixUTC:     timeOrZero(row.CancelledAt),
		ValidUntilUnixUTC:      row.ValidUntil.Unix(),
	}
}

func detailsJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON([]byte(raw))
}
