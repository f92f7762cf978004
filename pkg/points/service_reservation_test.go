package points

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func TestReserveHoldsAvailablePoints(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(10, 100000, 0)
	service := mustNewService(test, store)

	entry, err := service.Reserve(context.Background(), 10, 30000, 42, "")
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if entry.Kind != KindReserve {
		test.Fatalf("expected reserve entry, got %s", entry.Kind)
	}
	if entry.BalanceAfter != 100000 || entry.ReservedAfter != 30000 {
		test.Fatalf("reserve must not touch the current balance: %+v", entry)
	}
	if entry.OrderID == nil || *entry.OrderID != 42 {
		test.Fatalf("expected order correlation, got %+v", entry.OrderID)
	}
}

func TestReserveInsufficientAvailable(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(10, 100000, 90000)
	service := mustNewService(test, store)

	_, err := service.Reserve(context.Background(), 10, 20000, 42, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(store.entries) != 0 {
		test.Fatalf("failed reserve must not append entries")
	}
	account := store.accounts[10]
	if account.ReservedPoint != 90000 {
		test.Fatalf("failed reserve must not mutate the account, reserved %d", account.ReservedPoint)
	}
}

func TestReserveThenReleaseIsANoOp(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(11, 100000, 10000)
	service := mustNewService(test, store)
	ctx := context.Background()

	if _, err := service.Reserve(ctx, 11, 25000, 7, ""); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	entry, err := service.Release(ctx, 11, 25000, 7, "")
	if err != nil {
		test.Fatalf("release: %v", err)
	}
	if entry.BalanceAfter != 100000 || entry.ReservedAfter != 10000 {
		test.Fatalf("release must restore the pre-reserve state: %+v", entry)
	}
}

func TestReleaseBeyondReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(11, 100000, 5000)
	service := mustNewService(test, store)

	if _, err := service.Release(context.Background(), 11, 6000, 7, ""); !errors.Is(err, ErrInsufficientReservation) {
		test.Fatalf("expected ErrInsufficientReservation, got %v", err)
	}
}

func TestDeductReservedMovesBothFields(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(12, 100000, 0)
	service := mustNewService(test, store)
	ctx := context.Background()

	if _, err := service.Reserve(ctx, 12, 30000, 9, ""); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	entry, err := service.DeductReserved(ctx, 12, 30000, 9, "")
	if err != nil {
		test.Fatalf("deduct reserved: %v", err)
	}
	if entry.Kind != KindUse {
		test.Fatalf("expected use entry, got %s", entry.Kind)
	}
	if entry.BalanceAfter != 70000 || entry.ReservedAfter != 0 {
		test.Fatalf("unexpected snapshot after capture: %+v", entry)
	}
	if got := len(store.entries); got != 2 {
		test.Fatalf("expected exactly one entry per operation, got %d", got)
	}
}

func TestDeductReservedWithoutReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(12, 100000, 0)
	service := mustNewService(test, store)

	if _, err := service.DeductReserved(context.Background(), 12, 100, 9, ""); !errors.Is(err, ErrInsufficientReservation) {
		test.Fatalf("expected ErrInsufficientReservation, got %v", err)
	}
}

// Property: random valid operation sequences never break
// 0 <= reserved <= current, and violating operations are rejected whole.
func TestRandomOperationSequenceKeepsInvariant(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(20, 0, 0)
	service := mustNewService(test, store)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for step := 0; step < 500; step++ {
		amount := Amount(rng.Int63n(5000) + 1)
		var err error
		switch rng.Intn(6) {
		case 0:
			_, err = service.Grant(ctx, 20, amount, "")
		case 1:
			_, err = service.Reserve(ctx, 20, amount, 1, "")
		case 2:
			_, err = service.Release(ctx, 20, amount, 1, "")
		case 3:
			_, err = service.DeductReserved(ctx, 20, amount, 1, "")
		case 4:
			_, err = service.DeductImmediate(ctx, 20, amount, OrderRef(1), "")
		case 5:
			_, err = service.Refund(ctx, 20, amount, OrderRef(1), "")
		}
		if err != nil &&
			!errors.Is(err, ErrInsufficientFunds) &&
			!errors.Is(err, ErrInsufficientReservation) {
			test.Fatalf("step %d: unexpected error %v", step, err)
		}
		account := store.accounts[20]
		if account.ReservedPoint < 0 || account.ReservedPoint > account.CurrentPoint {
			test.Fatalf("step %d: invariant broken, current %d reserved %d", step, account.CurrentPoint, account.ReservedPoint)
		}
	}
}
