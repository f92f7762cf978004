package vouchers

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quartermasterhq/pointstore/pkg/points"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// Vouchers stay redeemable for a year unless cancelled first.
	validityDays = 365
)

// Service drives the voucher lifecycle.
type Service struct {
	store  Store
	ledger PointLedger
	orders OrderDirectory
	tx     TxRunner
	nowFn  func() time.Time
	logger *zap.Logger
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
func NewService(store Store, ledger PointLedger, orders OrderDirectory, tx TxRunner, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil || ledger == nil || orders == nil {
		return nil, fmt.Errorf("%w: store, ledger, and order directory dependencies are required", ErrInvalidServiceConfig)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction runner dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, ledger: ledger, orders: orders, tx: tx, nowFn: now, logger: zap.NewNop()}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GenerateNumber returns a new voucher number of the form TV-20260901-3FA85F64.
func GenerateNumber(now time.Time) string {
	identifier := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(identifier[:4]))
	return fmt.Sprintf("TV-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Get returns one voucher.
func (service *Service) Get(ctx context.Context, voucherID uint) (Voucher, error) {
	return service.store.GetVoucher(ctx, voucherID)
}

// GetForUser returns one voucher only if it belongs to userID.
func (service *Service) GetForUser(ctx context.Context, voucherID uint, userID uint) (Voucher, error) {
	voucher, err := service.store.GetVoucher(ctx, voucherID)
	if err != nil {
		return Voucher{}, err
	}
	if voucher.UserID != userID {
		return Voucher{}, ErrVoucherNotFound
	}
	return voucher, nil
}

// List lists vouchers matching the filter, newest first.
func (service *Service) List(ctx context.Context, filter Filter) ([]Voucher, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	return service.store.ListVouchers(ctx, filter)
}

// IssueDirect issues a voucher paid for by an immediate point deduction.
// The deduction and the voucher row commit or fail together.
func (service *Service) IssueDirect(ctx context.Context, userID uint, amount points.Amount, memo string) (Voucher, error) {
	if amount <= 0 {
		return Voucher{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	now := service.nowFn()
	voucher := Voucher{
		Number:            GenerateNumber(now),
		UserID:            userID,
		Amount:            amount,
		Status:            StatusIssued,
		Memo:              memo,
		IssuedAtUnixUTC:   now.Unix(),
		ValidUntilUnixUTC: now.AddDate(0, 0, validityDays).Unix(),
	}
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := service.store.CreateVoucher(ctx, &voucher); err != nil {
			return err
		}
		deductionMemo := fmt.Sprintf("voucher %s issued", voucher.Number)
		if memo != "" {
			deductionMemo = memo
		}
		_, err := service.ledger.DeductImmediate(ctx, userID, amount, points.VoucherRef(voucher.ID), deductionMemo)
		return err
	})
	if operationError != nil {
		return Voucher{}, operationError
	}
	service.logger.Info("voucher issued",
		zap.Uint("voucher_id", voucher.ID),
		zap.String("number", voucher.Number),
		zap.Int64("amount", amount.Int64()))
	return voucher, nil
}

// IssueForOrder issues a voucher against a voucher-settled order line. The
// line's point value was handled by the order, so no deduction happens here.
func (service *Service) IssueForOrder(ctx context.Context, orderID uint, lineID uint) (Voucher, error) {
	userID, amount, err := service.orders.VoucherLine(ctx, orderID, lineID)
	if err != nil {
		return Voucher{}, err
	}
	now := service.nowFn()
	voucher := Voucher{
		Number:            GenerateNumber(now),
		UserID:            userID,
		OrderID:           &orderID,
		LineID:            &lineID,
		Amount:            amount,
		Status:            StatusIssued,
		IssuedAtUnixUTC:   now.Unix(),
		ValidUntilUnixUTC: now.AddDate(0, 0, validityDays).Unix(),
	}
	if err := service.store.CreateVoucher(ctx, &voucher); err != nil {
		return Voucher{}, err
	}
	service.logger.Info("order voucher issued",
		zap.Uint("voucher_id", voucher.ID),
		zap.Uint("order_id", orderID),
		zap.Uint("line_id", lineID))
	return voucher, nil
}

// Register binds an issued voucher to the tailor shop that will fulfil it,
// recording the garment measurements taken on site.
func (service *Service) Register(ctx context.Context, voucherID uint, userID uint, tailorShopID uint, detailsJSON string) (Voucher, error) {
	return service.transition(ctx, voucherID, func(ctx context.Context, voucher *Voucher) error {
		if voucher.UserID != userID {
			return ErrVoucherNotFound
		}
		if voucher.Status != StatusIssued {
			return fmt.Errorf("%w: cannot register a %s voucher", ErrInvalidTransition, voucher.Status)
		}
		voucher.Status = StatusRegistered
		voucher.TailorShopID = &tailorShopID
		voucher.DetailsJSON = detailsJSON
		voucher.RegisteredAtUnixUTC = service.nowFn().Unix()
		return nil
	})
}

// MarkUsed records redemption at the registered tailor shop.
func (service *Service) MarkUsed(ctx context.Context, voucherID uint, tailorShopID uint) (Voucher, error) {
	return service.transition(ctx, voucherID, func(ctx context.Context, voucher *Voucher) error {
		if voucher.Status != StatusRegistered {
			return fmt.Errorf("%w: cannot redeem a %s voucher", ErrInvalidTransition, voucher.Status)
		}
		if voucher.TailorShopID == nil || *voucher.TailorShopID != tailorShopID {
			return ErrVoucherNotFound
		}
		voucher.Status = StatusUsed
		voucher.UsedAtUnixUTC = service.nowFn().Unix()
		return nil
	})
}

// RequestCancel starts the member-side cancellation. Only an issued,
// unregistered voucher can enter the request state.
func (service *Service) RequestCancel(ctx context.Context, voucherID uint, userID uint, reason string) (Voucher, error) {
	return service.transition(ctx, voucherID, func(ctx context.Context, voucher *Voucher) error {
		if voucher.UserID != userID {
			return ErrVoucherNotFound
		}
		if voucher.Status == StatusRegistered {
			return ErrVoucherRegistered
		}
		if voucher.Status != StatusIssued {
			return fmt.Errorf("%w: cannot request cancellation of a %s voucher", ErrInvalidTransition, voucher.Status)
		}
		voucher.Status = StatusCancelRequested
		voucher.CancelReason = reason
		voucher.CancelRequestedUnixUTC = service.nowFn().Unix()
		return nil
	})
}

// ResolveCancel settles a pending cancellation request. Approval cancels
// the voucher and refunds point-funded vouchers in the same transaction;
// rejection puts the voucher back into circulation.
func (service *Service) ResolveCancel(ctx context.Context, voucherID uint, approve bool) (Voucher, error) {
	return service.transition(ctx, voucherID, func(ctx context.Context, voucher *Voucher) error {
		if voucher.Status != StatusCancelRequested {
			return fmt.Errorf("%w: no pending cancellation on a %s voucher", ErrInvalidTransition, voucher.Status)
		}
		if !approve {
			voucher.Status = StatusIssued
			voucher.CancelReason = ""
			voucher.CancelRequestedUnixUTC = 0
			return nil
		}
		voucher.Status = StatusCancelled
		voucher.CancelledAtUnixUTC = service.nowFn().Unix()
		if voucher.PointFunded() {
			memo := fmt.Sprintf("voucher %s cancelled", voucher.Number)
			if _, err := service.ledger.Refund(ctx, voucher.UserID, voucher.Amount, points.VoucherRef(voucher.ID), memo); err != nil {
				return err
			}
		}
		return nil
	})
}

// transition locks the voucher, applies the change, and persists it in one
// transaction.
func (service *Service) transition(ctx context.Context, voucherID uint, apply func(ctx context.Context, voucher *Voucher) error) (Voucher, error) {
	var result Voucher
	operationError := service.tx.WithTx(ctx, func(ctx context.Context) error {
		voucher, err := service.store.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			return err
		}
		if err := apply(ctx, &voucher); err != nil {
			return err
		}
		if err := service.store.SaveVoucher(ctx, &voucher); err != nil {
			return err
		}
		result = voucher
		return nil
	})
	if operationError != nil {
		return Voucher{}, operationError
	}
	service.logger.Info("voucher status changed",
		zap.Uint("voucher_id", result.ID),
		zap.String("status", result.Status.String()))
	return result, nil
}
