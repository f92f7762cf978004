package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
)

// ErrDuplicateNumber signals a generated order or voucher number collided
// with an existing row.
var ErrDuplicateNumber = errors.New("duplicate document number")

// Store implements the points, inventory, orders, and vouchers store
// contracts plus the directory lookups, all over one gorm.DB.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table the store owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PointAccount{},
		&PointEntry{},
		&Stock{},
		&StockMovement{},
		&Order{},
		&OrderLine{},
		&OrderDelivery{},
		&Voucher{},
		&User{},
		&Warehouse{},
		&TailorShop{},
		&Item{},
		&ItemVariant{},
	)
}

type txContextKey struct{}

// TxRunner carries transactions through context so the point, stock, order,
// and voucher services can share one all-or-nothing unit of work. Nested
// WithTx calls join the enclosing transaction.
type TxRunner struct {
	db *gorm.DB
}

// NewTxRunner returns a TxRunner over db.
func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithTx executes fn within a transaction resolved from or injected into ctx.
func (runner *TxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return runner.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, transaction))
	})
}

func txFromContext(ctx context.Context) *gorm.DB {
	transaction, _ := ctx.Value(txContextKey{}).(*gorm.DB)
	return transaction
}

// conn resolves the ambient transaction if one is in flight, otherwise the
// base connection.
func (store *Store) conn(ctx context.Context) *gorm.DB {
	if transaction := txFromContext(ctx); transaction != nil {
		return transaction
	}
	return store.db.WithContext(ctx)
}

// OwnedBy scopes a query to one member's rows.
func OwnedBy(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func unixOrNil(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	at := time.Unix(value, 0).UTC()
	return &at
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}
