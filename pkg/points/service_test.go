package points

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// stubStore keeps accounts and entries in memory for service tests.
type stubStore struct {
	accounts map[uint]Account
	entries  []Entry
	nextID   uint
}

func newStubStore() *stubStore {
	return &stubStore{accounts: map[uint]Account{}}
}

func (store *stubStore) seed(userID uint, current Amount, reserved Amount) {
	store.accounts[userID] = Account{UserID: userID, CurrentPoint: current, ReservedPoint: reserved}
}

func (store *stubStore) GetAccount(ctx context.Context, userID uint) (Account, error) {
	account, ok := store.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, userID uint) (Account, error) {
	return store.GetAccount(ctx, userID)
}

func (store *stubStore) SaveAccount(ctx context.Context, account Account) error {
	if _, ok := store.accounts[account.UserID]; !ok {
		return ErrAccountNotFound
	}
	store.accounts[account.UserID] = account
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	store.nextID++
	entry.ID = store.nextID
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) ListEntries(ctx context.Context, userID uint, filter EntryFilter) ([]Entry, int64, error) {
	var matched []Entry
	for _, entry := range store.entries {
		if entry.UserID != userID {
			continue
		}
		if filter.Kind != nil && entry.Kind != *filter.Kind {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, int64(len(matched)), nil
}

// stubTx runs the function directly; atomicity is the real store's concern.
type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, stubTx{}, func() int64 { return 1700000000 })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func TestNewServiceRejectsNilDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, stubTx{}, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(), nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil tx runner, got %v", err)
	}
	if _, err := NewService(newStubStore(), stubTx{}, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}

func TestGrantIncreasesBalanceAndAppendsEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(7, 1000, 0)
	service := mustNewService(test, store)

	entry, err := service.Grant(context.Background(), 7, 500, "annual grant")
	if err != nil {
		test.Fatalf("grant: %v", err)
	}
	if entry.Kind != KindGrant {
		test.Fatalf("expected grant entry, got %s", entry.Kind)
	}
	if entry.BalanceAfter != 1500 || entry.ReservedAfter != 0 {
		test.Fatalf("unexpected snapshot: balance %d reserved %d", entry.BalanceAfter, entry.ReservedAfter)
	}
	balance, err := service.Balance(context.Background(), 7)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.CurrentPoint != 1500 || balance.AvailablePoint != 1500 {
		test.Fatalf("unexpected balance: %+v", balance)
	}
}

func TestGrantUnknownUser(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore())
	if _, err := service.Grant(context.Background(), 99, 100, ""); !errors.Is(err, ErrAccountNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMutationsRejectNonPositiveAmounts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(1, 100, 0)
	service := mustNewService(test, store)

	if _, err := service.Grant(context.Background(), 1, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for zero grant, got %v", err)
	}
	if _, err := service.Reserve(context.Background(), 1, -5, 1, ""); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for negative reserve, got %v", err)
	}
	if len(store.entries) != 0 {
		test.Fatalf("rejected operations must not append entries, got %d", len(store.entries))
	}
}

func TestDeductImmediateSpendsAvailableOnly(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(3, 50000, 20000)
	service := mustNewService(test, store)

	// available is 30000; spending 25000 leaves the reservation intact
	entry, err := service.DeductImmediate(context.Background(), 3, 25000, OrderRef(11), "")
	if err != nil {
		test.Fatalf("deduct immediate: %v", err)
	}
	if entry.Kind != KindDeduct {
		test.Fatalf("expected deduct entry, got %s", entry.Kind)
	}
	if entry.BalanceAfter != 25000 || entry.ReservedAfter != 20000 {
		test.Fatalf("unexpected snapshot: %+v", entry)
	}

	if _, err := service.DeductImmediate(context.Background(), 3, 10000, OrderRef(12), ""); !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds beyond available, got %v", err)
	}
}

func TestRefundIsUnconditional(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(4, 0, 0)
	service := mustNewService(test, store)

	entry, err := service.Refund(context.Background(), 4, 70000, VoucherRef(5), "voucher cancel refund")
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if entry.Kind != KindRefund || entry.BalanceAfter != 70000 {
		test.Fatalf("unexpected refund entry: %+v", entry)
	}
	if entry.VoucherID == nil || *entry.VoucherID != 5 {
		test.Fatalf("expected voucher correlation, got %+v", entry.VoucherID)
	}
}

func TestGrantBulkReportsPerUserFailures(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(1, 0, 0)
	store.seed(2, 0, 0)
	service := mustNewService(test, store)

	granted, failures := service.GrantBulk(context.Background(), []uint{1, 2, 3}, 1000, "bulk")
	if granted != 2 {
		test.Fatalf("expected 2 grants, got %d", granted)
	}
	if len(failures) != 1 || failures[0].UserID != 3 || !errors.Is(failures[0].Err, ErrAccountNotFound) {
		test.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestLedgerReplayReconstructsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(8, 0, 0)
	service := mustNewService(test, store)
	ctx := context.Background()

	if _, err := service.Grant(ctx, 8, 100000, ""); err != nil {
		test.Fatalf("grant: %v", err)
	}
	if _, err := service.Reserve(ctx, 8, 30000, 1, ""); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if _, err := service.DeductReserved(ctx, 8, 30000, 1, ""); err != nil {
		test.Fatalf("deduct reserved: %v", err)
	}
	if _, err := service.DeductImmediate(ctx, 8, 20000, OrderRef(2), ""); err != nil {
		test.Fatalf("deduct immediate: %v", err)
	}
	if _, err := service.Refund(ctx, 8, 5000, OrderRef(2), ""); err != nil {
		test.Fatalf("refund: %v", err)
	}

	entries, _, err := service.ListEntries(ctx, 8, EntryFilter{})
	if err != nil {
		test.Fatalf("list entries: %v", err)
	}
	if len(entries) == 0 {
		test.Fatalf("expected entries")
	}
	last := entries[len(entries)-1]
	balance, err := service.Balance(ctx, 8)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if last.BalanceAfter != balance.CurrentPoint || last.ReservedAfter != balance.ReservedPoint {
		test.Fatalf("entry fold %d/%d does not match balance %d/%d",
			last.BalanceAfter, last.ReservedAfter, balance.CurrentPoint, balance.ReservedPoint)
	}
	if balance.CurrentPoint != 55000 || balance.ReservedPoint != 0 {
		test.Fatalf("unexpected final balance: %+v", balance)
	}
}
