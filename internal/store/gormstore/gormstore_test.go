package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

func openTestDB(test *testing.T) *gorm.DB {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return db
}

func uintPtr(value uint) *uint {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

func TestAccountRoundTrip(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()

	_, err := store.GetAccount(ctx, 7)
	if !errors.Is(err, points.ErrAccountNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	var operationError points.OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("store failures must carry operation metadata, got %v", err)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "account" || operationError.Code() != "get" {
		test.Fatalf("unexpected error metadata: %s.%s.%s",
			operationError.Operation(), operationError.Subject(), operationError.Code())
	}
	if err := store.CreateAccount(ctx, 7); err != nil {
		test.Fatalf("create account: %v", err)
	}
	if err := store.CreateAccount(ctx, 7); err != nil {
		test.Fatalf("repeated creation must be a no-op, got %v", err)
	}

	account, err := store.GetAccount(ctx, 7)
	if err != nil {
		test.Fatalf("get account: %v", err)
	}
	if account.CurrentPoint != 0 || account.ReservedPoint != 0 {
		test.Fatalf("new account must start empty: %+v", account)
	}

	account.CurrentPoint = 100000
	account.ReservedPoint = 30000
	if err := store.SaveAccount(ctx, account); err != nil {
		test.Fatalf("save account: %v", err)
	}
	reloaded, err := store.GetAccountForUpdate(ctx, 7)
	if err != nil {
		test.Fatalf("get for update: %v", err)
	}
	if reloaded.CurrentPoint != 100000 || reloaded.ReservedPoint != 30000 {
		test.Fatalf("unexpected reloaded account: %+v", reloaded)
	}
}

func TestEntryListFiltersAndPaginates(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()
	base := int64(1700000000)

	kinds := []points.Kind{points.KindGrant, points.KindReserve, points.KindGrant}
	for index, kind := range kinds {
		_, err := store.InsertEntry(ctx, points.Entry{
			UserID:         7,
			Kind:           kind,
			Amount:         1000,
			BalanceAfter:   points.Amount(1000 * (index + 1)),
			CreatedUnixUTC: base + int64(index),
		})
		if err != nil {
			test.Fatalf("insert entry %d: %v", index, err)
		}
	}

	grant := points.KindGrant
	entries, total, err := store.ListEntries(ctx, 7, points.EntryFilter{Kind: &grant, Page: 1, PageSize: 10})
	if err != nil {
		test.Fatalf("list entries: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		test.Fatalf("expected 2 grant entries, got total %d len %d", total, len(entries))
	}
	if entries[0].CreatedUnixUTC < entries[1].CreatedUnixUTC {
		test.Fatalf("entries must come newest first")
	}

	page, total, err := store.ListEntries(ctx, 7, points.EntryFilter{Page: 2, PageSize: 2})
	if err != nil {
		test.Fatalf("list page 2: %v", err)
	}
	if total != 3 || len(page) != 1 {
		test.Fatalf("expected 1 entry on page 2 of 3, got total %d len %d", total, len(page))
	}
}

func TestStockRoundTripDistinguishesVariants(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()

	variantKey := inventory.StockKey{WarehouseID: 1, ItemID: 10, VariantID: uintPtr(100)}
	plainKey := inventory.StockKey{WarehouseID: 1, ItemID: 10}

	if _, err := store.GetStock(ctx, variantKey); !errors.Is(err, inventory.ErrStockNotFound) {
		test.Fatalf("expected ErrStockNotFound, got %v", err)
	}
	created, err := store.CreateStock(ctx, inventory.Stock{WarehouseID: 1, ItemID: 10, VariantID: uintPtr(100), Quantity: 5})
	if err != nil {
		test.Fatalf("create stock: %v", err)
	}
	if created.ID == 0 {
		test.Fatalf("create must assign an identifier")
	}
	if _, err := store.CreateStock(ctx, inventory.Stock{WarehouseID: 1, ItemID: 10, Quantity: 2}); err != nil {
		test.Fatalf("variant-less record for the same item must coexist: %v", err)
	}

	created.Quantity = 8
	created.ReservedQuantity = 3
	if err := store.SaveStock(ctx, created); err != nil {
		test.Fatalf("save stock: %v", err)
	}
	reloaded, err := store.GetStockForUpdate(ctx, variantKey)
	if err != nil {
		test.Fatalf("get for update: %v", err)
	}
	if reloaded.Quantity != 8 || reloaded.ReservedQuantity != 3 {
		test.Fatalf("unexpected reloaded stock: %+v", reloaded)
	}
	plain, err := store.GetStock(ctx, plainKey)
	if err != nil {
		test.Fatalf("get plain stock: %v", err)
	}
	if plain.Quantity != 2 || plain.VariantID != nil {
		test.Fatalf("variant-less lookup must not match the variant row: %+v", plain)
	}
}

func TestMovementsFilterByOrder(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()

	stock, err := store.CreateStock(ctx, inventory.Stock{WarehouseID: 1, ItemID: 10, VariantID: uintPtr(100)})
	if err != nil {
		test.Fatalf("create stock: %v", err)
	}
	for index, orderID := range []*uint{uintPtr(5), uintPtr(5), nil} {
		_, err := store.InsertMovement(ctx, inventory.Movement{
			StockID:        stock.ID,
			Kind:           inventory.KindIncrease,
			Delta:          1,
			OrderID:        orderID,
			CreatedUnixUTC: 1700000000 + int64(index),
		})
		if err != nil {
			test.Fatalf("insert movement: %v", err)
		}
	}

	movements, total, err := store.ListMovements(ctx, inventory.MovementFilter{OrderID: uintPtr(5), Page: 1, PageSize: 10})
	if err != nil {
		test.Fatalf("list movements: %v", err)
	}
	if total != 2 || len(movements) != 2 {
		test.Fatalf("expected 2 order movements, got total %d len %d", total, len(movements))
	}
}

func seedOrder(test *testing.T, store *Store) orders.Order {
	test.Helper()
	order := orders.Order{
		Number:      "ORD-20260901-AAAA0001",
		UserID:      7,
		WarehouseID: 1,
		Channel:     orders.ChannelOnline,
		Status:      orders.StatusConfirmed,
		TotalAmount: 75000,
		Lines: []orders.Line{
			{ItemID: 10, VariantID: uintPtr(100), Quantity: 1, UnitPrice: 30000, LineTotal: 30000, Settlement: orders.SettlementPoint},
			{ItemID: 30, Quantity: 1, UnitPrice: 45000, LineTotal: 45000, Settlement: orders.SettlementVoucher},
		},
		Delivery: &orders.Delivery{Mode: orders.DeliveryParcel, Status: orders.DeliveryPreparing, RecipientName: "recipient"},
	}
	if err := store.CreateOrder(context.Background(), &order); err != nil {
		test.Fatalf("create order: %v", err)
	}
	return order
}

func TestOrderPersistenceRoundTrip(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()
	order := seedOrder(test, store)

	if order.ID == 0 || order.Lines[0].ID == 0 || order.Delivery.ID == 0 {
		test.Fatalf("create must assign identifiers: %+v", order)
	}

	order.Status = orders.StatusShipped
	order.ReservedPoint = 30000
	if err := store.SaveOrder(ctx, &order); err != nil {
		test.Fatalf("save order: %v", err)
	}
	order.Delivery.Status = orders.DeliveryInTransit
	order.Delivery.TrackingNumber = "TRK001"
	order.Delivery.ShippedAtUnixUTC = 1700000000
	if err := store.SaveDelivery(ctx, order.Delivery); err != nil {
		test.Fatalf("save delivery: %v", err)
	}
	line := order.Lines[0]
	line.Returned = true
	line.ReturnedAtUnixUTC = 1700000100
	line.ReturnReason = "wrong size"
	if err := store.SaveLine(ctx, &line); err != nil {
		test.Fatalf("save line: %v", err)
	}

	reloaded, err := store.GetOrderForUpdate(ctx, order.ID)
	if err != nil {
		test.Fatalf("get order: %v", err)
	}
	if reloaded.Status != orders.StatusShipped || reloaded.ReservedPoint != 30000 {
		test.Fatalf("unexpected reloaded order: %+v", reloaded)
	}
	if len(reloaded.Lines) != 2 {
		test.Fatalf("expected 2 lines, got %d", len(reloaded.Lines))
	}
	var returned *orders.Line
	for index := range reloaded.Lines {
		if reloaded.Lines[index].ID == line.ID {
			returned = &reloaded.Lines[index]
		}
	}
	if returned == nil || !returned.Returned || returned.ReturnReason != "wrong size" {
		test.Fatalf("line return must persist: %+v", returned)
	}
	if reloaded.Delivery == nil || reloaded.Delivery.TrackingNumber != "TRK001" || reloaded.Delivery.ShippedAtUnixUTC != 1700000000 {
		test.Fatalf("delivery must persist: %+v", reloaded.Delivery)
	}

	if _, err := store.GetOrder(ctx, order.ID+100); !errors.Is(err, orders.ErrOrderNotFound) {
		test.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	duplicate := orders.Order{Number: order.Number, UserID: 7, WarehouseID: 1, Channel: orders.ChannelOnline, Status: orders.StatusPending}
	if err := store.CreateOrder(ctx, &duplicate); !errors.Is(err, ErrDuplicateNumber) {
		test.Fatalf("expected ErrDuplicateNumber, got %v", err)
	}
}

func TestListOrdersScopesToOwner(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()
	seedOrder(test, store)

	other := orders.Order{Number: "ORD-20260901-BBBB0002", UserID: 8, WarehouseID: 1, Channel: orders.ChannelOffline, Status: orders.StatusDelivered}
	if err := store.CreateOrder(ctx, &other); err != nil {
		test.Fatalf("create second order: %v", err)
	}

	owned, total, err := store.ListOrders(ctx, orders.Filter{UserID: uintPtr(7), Page: 1, PageSize: 10})
	if err != nil {
		test.Fatalf("list orders: %v", err)
	}
	if total != 1 || len(owned) != 1 || owned[0].UserID != 7 {
		test.Fatalf("owner scope must hide other members' orders: total %d %+v", total, owned)
	}
}

func TestVoucherLineResolvesOnlyVoucherSettledLines(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()
	order := seedOrder(test, store)

	var pointLineID, voucherLineID uint
	for _, line := range order.Lines {
		if line.Settlement == orders.SettlementVoucher {
			voucherLineID = line.ID
		} else {
			pointLineID = line.ID
		}
	}

	userID, amount, err := store.VoucherLine(ctx, order.ID, voucherLineID)
	if err != nil {
		test.Fatalf("voucher line: %v", err)
	}
	if userID != 7 || amount != 45000 {
		test.Fatalf("unexpected voucher line: user %d amount %d", userID, amount)
	}
	if _, _, err := store.VoucherLine(ctx, order.ID, pointLineID); !errors.Is(err, vouchers.ErrLineNotEligible) {
		test.Fatalf("point line must not be voucher eligible, got %v", err)
	}
	if _, _, err := store.VoucherLine(ctx, order.ID, 9999); !errors.Is(err, orders.ErrLineNotFound) {
		test.Fatalf("missing line must report not found, got %v", err)
	}
}

func TestVoucherRoundTrip(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()

	voucher := vouchers.Voucher{
		Number:            "TV-20260901-AAAA0001",
		UserID:            7,
		Amount:            50000,
		Status:            vouchers.StatusIssued,
		IssuedAtUnixUTC:   1700000000,
		ValidUntilUnixUTC: 1731536000,
	}
	if err := store.CreateVoucher(ctx, &voucher); err != nil {
		test.Fatalf("create voucher: %v", err)
	}
	if voucher.ID == 0 {
		test.Fatalf("create must assign an identifier")
	}

	voucher.Status = vouchers.StatusRegistered
	shopID := uint(3)
	voucher.TailorShopID = &shopID
	voucher.DetailsJSON = `{"chest":102}`
	voucher.RegisteredAtUnixUTC = 1700000100
	if err := store.SaveVoucher(ctx, &voucher); err != nil {
		test.Fatalf("save voucher: %v", err)
	}

	reloaded, err := store.GetVoucherForUpdate(ctx, voucher.ID)
	if err != nil {
		test.Fatalf("get voucher: %v", err)
	}
	if reloaded.Status != vouchers.StatusRegistered || reloaded.DetailsJSON != `{"chest":102}` {
		test.Fatalf("unexpected reloaded voucher: %+v", reloaded)
	}
	if reloaded.TailorShopID == nil || *reloaded.TailorShopID != shopID {
		test.Fatalf("tailor shop binding must persist")
	}

	registered := vouchers.StatusRegistered
	listed, total, err := store.ListVouchers(ctx, vouchers.Filter{UserID: uintPtr(7), Status: &registered, Page: 1, PageSize: 10})
	if err != nil {
		test.Fatalf("list vouchers: %v", err)
	}
	if total != 1 || len(listed) != 1 {
		test.Fatalf("expected 1 registered voucher, got total %d len %d", total, len(listed))
	}
}

func TestTxRunnerRollsBackAndJoins(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	runner := NewTxRunner(db)
	ctx := context.Background()
	failure := errors.New("boom")

	err := runner.WithTx(ctx, func(ctx context.Context) error {
		if err := store.CreateAccount(ctx, 7); err != nil {
			return err
		}
		// Nested call joins the same transaction and sees the row.
		return runner.WithTx(ctx, func(ctx context.Context) error {
			if _, err := store.GetAccount(ctx, 7); err != nil {
				return err
			}
			return failure
		})
	})
	if !errors.Is(err, failure) {
		test.Fatalf("expected failure to surface, got %v", err)
	}
	if _, err := store.GetAccount(ctx, 7); !errors.Is(err, points.ErrAccountNotFound) {
		test.Fatalf("rolled-back account must not exist, got %v", err)
	}

	if err := runner.WithTx(ctx, func(ctx context.Context) error {
		return store.CreateAccount(ctx, 7)
	}); err != nil {
		test.Fatalf("committing transaction: %v", err)
	}
	if _, err := store.GetAccount(ctx, 7); err != nil {
		test.Fatalf("committed account must exist, got %v", err)
	}
}

func TestDirectoryLookups(test *testing.T) {
	test.Parallel()
	db := openTestDB(test)
	store := New(db)
	ctx := context.Background()

	if err := db.Create(&User{ID: 7, ServiceNumber: "SN-0007", Name: "member", Role: "member", Active: boolPtr(true), CreatedAt: time.Now().UTC()}).Error; err != nil {
		test.Fatalf("seed user: %v", err)
	}
	if err := db.Create(&User{ID: 8, ServiceNumber: "SN-0008", Name: "discharged", Role: "member", Active: boolPtr(false), CreatedAt: time.Now().UTC()}).Error; err != nil {
		test.Fatalf("seed inactive user: %v", err)
	}
	if err := db.Create(&Warehouse{ID: 1, Name: "central depot"}).Error; err != nil {
		test.Fatalf("seed warehouse: %v", err)
	}
	if err := db.Create(&Item{ID: 10, Name: "service coat"}).Error; err != nil {
		test.Fatalf("seed item: %v", err)
	}
	if err := db.Create(&ItemVariant{ID: 100, ItemID: 10, SKU: "COAT-95", Size: "95", Price: 30000}).Error; err != nil {
		test.Fatalf("seed variant: %v", err)
	}

	if ok, err := store.UserExists(ctx, 7); err != nil || !ok {
		test.Fatalf("active member must exist: ok %v err %v", ok, err)
	}
	if ok, err := store.UserExists(ctx, 8); err != nil || ok {
		test.Fatalf("inactive member must not pass: ok %v err %v", ok, err)
	}
	if ok, err := store.WarehouseExists(ctx, 2); err != nil || ok {
		test.Fatalf("unknown warehouse must not pass: ok %v err %v", ok, err)
	}

	price, err := store.UnitPrice(ctx, 10, 100)
	if err != nil || price != 30000 {
		test.Fatalf("unexpected price: %d err %v", price, err)
	}
	if _, err := store.UnitPrice(ctx, 10, 999); !errors.Is(err, orders.ErrItemNotFound) {
		test.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
