package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quartermasterhq/pointstore/pkg/points"
)

const (
	errorOperationStore = "store"
	errorSubjectAccount = "account"
	errorSubjectEntry   = "entry"
	errorCodeCreate     = "create"
	errorCodeGet        = "get"
	errorCodeSave       = "save"
	errorCodeInsert     = "insert"
	errorCodeList       = "list"
	errorCodeInvalid    = "invalid"
)

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

// CreateAccount opens a zero-balance point account for a member. It is
// called by enrollment, not by the ledger itself.
func (store *Store) CreateAccount(ctx context.Context, userID uint) error {
	account := PointAccount{UserID: userID}
	err := store.conn(ctx).Create(&account).Error
	if isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, userID uint) (points.Account, error) {
	return store.getAccount(ctx, userID, false)
}

func (store *Store) GetAccountForUpdate(ctx context.Context, userID uint) (points.Account, error) {
	return store.getAccount(ctx, userID, true)
}

func (store *Store) getAccount(ctx context.Context, userID uint, lock bool) (points.Account, error) {
	query := store.conn(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account PointAccount
	if err := query.Take(&account, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, points.ErrAccountNotFound)
		}
		return points.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return points.Account{
		UserID:        account.UserID,
		CurrentPoint:  points.Amount(account.CurrentPoint),
		ReservedPoint: points.Amount(account.ReservedPoint),
	}, nil
}

func (store *Store) SaveAccount(ctx context.Context, account points.Account) error {
	err := store.conn(ctx).
		Model(&PointAccount{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]interface{}{
			"current_point":  account.CurrentPoint.Int64(),
			"reserved_point": account.ReservedPoint.Int64(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, err)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry points.Entry) (points.Entry, error) {
	row := PointEntry{
		UserID:        entry.UserID,
		Kind:          entry.Kind.String(),
		Amount:        entry.Amount.Int64(),
		BalanceAfter:  entry.BalanceAfter.Int64(),
		ReservedAfter: entry.ReservedAfter.Int64(),
		OrderID:       entry.OrderID,
		VoucherID:     entry.VoucherID,
		Memo:          entry.Memo,
		CreatedAt:     time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.conn(ctx).Create(&row).Error; err != nil {
		return points.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	entry.ID = row.ID
	return entry, nil
}

func (store *Store) ListEntries(ctx context.Context, userID uint, filter points.EntryFilter) ([]points.Entry, int64, error) {
	query := store.conn(ctx).Model(&PointEntry{}).Where("user_id = ?", userID)
	if filter.Kind != nil {
		query = query.Where("kind = ?", filter.Kind.String())
	}
	if filter.FromUnixUTC != 0 {
		query = query.Where("created_at >= ?", time.Unix(filter.FromUnixUTC, 0).UTC())
	}
	if filter.ToUnixUTC != 0 {
		query = query.Where("created_at < ?", time.Unix(filter.ToUnixUTC, 0).UTC())
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	var rows []PointEntry
	err := query.
		Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]points.Entry, 0, len(rows))
	for _, row := range rows {
		kind, err := points.ParseKind(row.Kind)
		if err != nil {
			return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, points.Entry{
			ID:             row.ID,
			UserID:         row.UserID,
			Kind:           kind,
			Amount:         points.Amount(row.Amount),
			BalanceAfter:   points.Amount(row.BalanceAfter),
			ReservedAfter:  points.Amount(row.ReservedAfter),
			OrderID:        row.OrderID,
			VoucherID:      row.VoucherID,
			Memo:           row.Memo,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return entries, total, nil
}
