package points

import (
	"context"
	"fmt"
)

// Service contains the point ledger domain logic over a Store. It is the
// sole writer of account balance fields; orders and vouchers mutate points
// only through its operations.
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

// Balance returns current, reserved, and available points for a user.
func (service *Service) Balance(ctx context.Context, userID uint) (Balance, error) {
	account, err := service.store.GetAccount(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		CurrentPoint:   account.CurrentPoint,
		ReservedPoint:  account.ReservedPoint,
		AvailablePoint: account.Available(),
	}, nil
}

// ListEntries lists a user's ledger entries, newest first.
func (service *Service) ListEntries(ctx context.Context, userID uint, filter EntryFilter) ([]Entry, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	return service.store.ListEntries(ctx, userID, filter)
}

// Grant credits a user's balance. There is no upper bound.
func (service *Service) Grant(ctx context.Context, userID uint, amount Amount, memo string) (Entry, error) {
	entry, operationError := service.mutate(ctx, userID, amount, Ref{}, memo, "point grant",
		func(account *Account) (Kind, error) {
			account.CurrentPoint += amount
			return KindGrant, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationGrant,
		UserID:    userID,
		Amount:    amount,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// GrantBulk credits the same amount to every listed user. Failures do not
// abort the batch; each is reported per user.
func (service *Service) GrantBulk(ctx context.Context, userIDs []uint, amount Amount, memo string) (int, []BulkFailure) {
	granted := 0
	var failures []BulkFailure
	for _, userID := range userIDs {
		if _, err := service.Grant(ctx, userID, amount, memo); err != nil {
			failures = append(failures, BulkFailure{UserID: userID, Err: err})
			continue
		}
		granted++
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGrantBulk,
		Amount:    amount,
		Memo:      memo,
		Status:    operationStatusOK,
	})
	return granted, failures
}

// Reserve places a soft hold against the available balance. The current
// balance is unchanged; only the reserved portion grows.
func (service *Service) Reserve(ctx context.Context, userID uint, amount Amount, orderID uint, memo string) (Entry, error) {
	ref := OrderRef(orderID)
	entry, operationError := service.mutate(ctx, userID, amount, ref, memo, "point reservation",
		func(account *Account) (Kind, error) {
			if amount > account.Available() {
				return "", fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, account.Available(), amount)
			}
			account.ReservedPoint += amount
			return KindReserve, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationReserve,
		UserID:    userID,
		Amount:    amount,
		OrderID:   ref.OrderID,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// Release returns reserved points to the available balance.
func (service *Service) Release(ctx context.Context, userID uint, amount Amount, orderID uint, memo string) (Entry, error) {
	ref := OrderRef(orderID)
	entry, operationError := service.mutate(ctx, userID, amount, ref, memo, "reservation release",
		func(account *Account) (Kind, error) {
			if amount > account.ReservedPoint {
				return "", fmt.Errorf("%w: reserved %d, requested %d", ErrInsufficientReservation, account.ReservedPoint, amount)
			}
			account.ReservedPoint -= amount
			return KindRelease, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationRelease,
		UserID:    userID,
		Amount:    amount,
		OrderID:   ref.OrderID,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// DeductReserved confirms a reservation into a real spend. This is the only
// operation that reduces the reserved and current balances together.
func (service *Service) DeductReserved(ctx context.Context, userID uint, amount Amount, orderID uint, memo string) (Entry, error) {
	ref := OrderRef(orderID)
	entry, operationError := service.mutate(ctx, userID, amount, ref, memo, "reserved point spend",
		func(account *Account) (Kind, error) {
			if amount > account.ReservedPoint {
				return "", fmt.Errorf("%w: reserved %d, requested %d", ErrInsufficientReservation, account.ReservedPoint, amount)
			}
			account.ReservedPoint -= amount
			account.CurrentPoint -= amount
			return KindUse, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeductReserved,
		UserID:    userID,
		Amount:    amount,
		OrderID:   ref.OrderID,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// DeductImmediate spends against the available balance with no prior hold,
// as in an offline point-of-sale transaction or direct voucher issuance.
func (service *Service) DeductImmediate(ctx context.Context, userID uint, amount Amount, ref Ref, memo string) (Entry, error) {
	entry, operationError := service.mutate(ctx, userID, amount, ref, memo, "immediate point spend",
		func(account *Account) (Kind, error) {
			if amount > account.Available() {
				return "", fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, account.Available(), amount)
			}
			account.CurrentPoint -= amount
			return KindDeduct, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeductImmediate,
		UserID:    userID,
		Amount:    amount,
		OrderID:   ref.OrderID,
		VoucherID: ref.VoucherID,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// Refund restores previously spent points. It is unconditional; reversing a
// spend may legitimately exceed any historical ceiling.
func (service *Service) Refund(ctx context.Context, userID uint, amount Amount, ref Ref, memo string) (Entry, error) {
	entry, operationError := service.mutate(ctx, userID, amount, ref, memo, "point refund",
		func(account *Account) (Kind, error) {
			account.CurrentPoint += amount
			return KindRefund, nil
		})
	service.logOperation(ctx, OperationLog{
		Operation: operationRefund,
		UserID:    userID,
		Amount:    amount,
		OrderID:   ref.OrderID,
		VoucherID: ref.VoucherID,
		Memo:      memo,
		Error:     operationError,
	})
	return entry, operationError
}

// mutate runs one atomic read-validate-write-append unit: lock the account
// row, apply the mutation, verify the balance invariant, persist the account,
// and append the witnessing entry.
func (service *Service) mutate(ctx context.Context, userID uint, amount Amount, ref Ref, memo string, defaultMemo string, apply func(account *Account) (Kind, error)) (Entry, error) {
	if amount <= 0 {
		return Entry{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	var entry Entry
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		account, err := service.store.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		kind, err := apply(&account)
		if err != nil {
			return err
		}
		if account.ReservedPoint < 0 || account.ReservedPoint > account.CurrentPoint {
			return fmt.Errorf("%w: user %d current %d reserved %d after %s",
				ErrIntegrityViolation, userID, account.CurrentPoint, account.ReservedPoint, kind)
		}
		if err := service.store.SaveAccount(ctx, account); err != nil {
			return err
		}
		if memo == "" {
			memo = defaultMemo
		}
		inserted, err := service.store.InsertEntry(ctx, Entry{
			UserID:         userID,
			Kind:           kind,
			Amount:         amount,
			BalanceAfter:   account.CurrentPoint,
			ReservedAfter:  account.ReservedPoint,
			OrderID:        ref.OrderID,
			VoucherID:      ref.VoucherID,
			Memo:           memo,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
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
