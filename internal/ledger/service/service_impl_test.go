package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	accountrepo "github.com/tapkeeper/tapkeeper/internal/account/repository"
	itemdomain "github.com/tapkeeper/tapkeeper/internal/item/domain"
	itemrepo "github.com/tapkeeper/tapkeeper/internal/item/repository"
	ledgerdomain "github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	ledgerrepo "github.com/tapkeeper/tapkeeper/internal/ledger/repository"
	ledgerservice "github.com/tapkeeper/tapkeeper/internal/ledger/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE accounts (
			id BIGINT PRIMARY KEY,
			slack_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			is_employee BOOLEAN NOT NULL DEFAULT FALSE,
			total_purchased BIGINT NOT NULL DEFAULT 0,
			total_paid BIGINT NOT NULL DEFAULT 0,
			last_purchase_at TIMESTAMP,
			last_payment_at TIMESTAMP,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			item_id BIGINT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE items (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			price BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (ledgerdomain.Service, accountdomain.Repository) {
	t.Helper()

	accounts := accountrepo.Provide()
	return ledgerservice.NewService(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        ledgerrepo.Provide(),
		AccountRepo: accounts,
		ItemRepo:    itemrepo.Provide(),
	}), accounts
}

func seedAccount(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO accounts (id, slack_id, name) VALUES (?, ?, ?)`,
		id, fmt.Sprintf("U%d", id), "Test Member",
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func seedItem(t *testing.T, db *gorm.DB, id snowflake.ID, name string, price int64) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO items (id, name, price) VALUES (?, ?, ?)`,
		id, name, price,
	).Error
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

func TestRecordPaymentUpdatesTotals(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1001)
	seedAccount(t, db, accountID)

	txn, err := svc.RecordPayment(ctx, accountID, 1250, "tr_checkout_1")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if txn.ID != "tr_checkout_1" {
		t.Fatalf("expected transaction id tr_checkout_1, got %s", txn.ID)
	}
	if txn.Type != ledgerdomain.TypePayment {
		t.Fatalf("expected payment type, got %s", txn.Type)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPaid != 1250 {
		t.Fatalf("expected total_paid 1250, got %d", account.TotalPaid)
	}
	if account.Balance() != 1250 {
		t.Fatalf("expected balance 1250, got %d", account.Balance())
	}
	if account.LastPaymentAt == nil {
		t.Fatal("expected last_payment_at to be set")
	}
}

func TestRecordPaymentReplayIsRejectedOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1002)
	seedAccount(t, db, accountID)

	if _, err := svc.RecordPayment(ctx, accountID, 500, "tr_replay"); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err := svc.RecordPayment(ctx, accountID, 500, "tr_replay")
	if !errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPaid != 500 {
		t.Fatalf("replay must not double-count, total_paid = %d", account.TotalPaid)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM transactions WHERE id = ?`, "tr_replay").Scan(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one transaction row, got %d", count)
	}
}

func TestRecordPaymentRaceLoserGetsDuplicate(t *testing.T) {
	// Simulates losing the insert race: the row exists by the time this
	// call reaches the table even though the pre-read was clean.
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1003)
	seedAccount(t, db, accountID)

	err := db.Exec(
		`INSERT INTO transactions (id, account_id, type, amount) VALUES (?, ?, 'payment', 750)`,
		"tr_race", accountID,
	).Error
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	_, err = svc.RecordPayment(ctx, accountID, 750, "tr_race")
	if !errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPaid != 0 {
		t.Fatalf("loser must not touch totals, total_paid = %d", account.TotalPaid)
	}
}

func TestRecordPaymentConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	// Pin the pool to one connection so both transactions hit the same
	// database serially and the race resolves through the pre-read and the
	// primary key rather than through driver-level file locking.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1009)
	seedAccount(t, db, accountID)

	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := svc.RecordPayment(ctx, accountID, 650, "tr_contended")
			errs <- err
		}()
	}
	close(start)

	var ok, dup int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ledgerdomain.ErrDuplicateTransaction):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("expected exactly one success and one duplicate, got ok=%d dup=%d", ok, dup)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPaid != 650 {
		t.Fatalf("contended payment must count once, total_paid = %d", account.TotalPaid)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM transactions WHERE id = ?`, "tr_contended").Scan(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one transaction row, got %d", count)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	if _, err := svc.RecordPayment(ctx, snowflake.ID(1), 0, "tr_zero"); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, snowflake.ID(1), -10, "tr_neg"); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, snowflake.ID(99999), 100, "tr_ghost"); !errors.Is(err, accountdomain.ErrNotFound) {
		t.Fatalf("expected account ErrNotFound, got %v", err)
	}
}

func TestRecordPaymentGeneratesIDWhenEmpty(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	accountID := snowflake.ID(1004)
	seedAccount(t, db, accountID)

	first, err := svc.RecordPayment(ctx, accountID, 300, "")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a generated transaction id")
	}

	// Generated IDs provide no replay protection; a second empty-ID call
	// records a second payment.
	second, err := svc.RecordPayment(ctx, accountID, 300, "")
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected distinct generated ids")
	}
}

func TestRecordPurchaseCopiesItemPrice(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1005)
	itemID := snowflake.ID(2001)
	seedAccount(t, db, accountID)
	seedItem(t, db, itemID, "Beer", 100)

	txn, err := svc.RecordPurchase(ctx, accountID, itemID)
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	if txn.Amount != 100 {
		t.Fatalf("expected amount 100 from item price, got %d", txn.Amount)
	}
	if txn.ItemID == nil || *txn.ItemID != itemID {
		t.Fatalf("expected item id %d on transaction", itemID)
	}

	// A later price change must not rewrite history.
	if err := db.Exec(`UPDATE items SET price = 200 WHERE id = ?`, itemID).Error; err != nil {
		t.Fatalf("update price: %v", err)
	}
	again, err := svc.RecordPurchase(ctx, accountID, itemID)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if again.Amount != 200 {
		t.Fatalf("expected new purchase at 200, got %d", again.Amount)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPurchased != 300 {
		t.Fatalf("expected total_purchased 300, got %d", account.TotalPurchased)
	}
	if account.Balance() != -300 {
		t.Fatalf("expected balance -300, got %d", account.Balance())
	}
}

func TestRecordPurchaseUnknownItem(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	accountID := snowflake.ID(1006)
	seedAccount(t, db, accountID)

	if _, err := svc.RecordPurchase(ctx, accountID, snowflake.ID(777)); !errors.Is(err, itemdomain.ErrNotFound) {
		t.Fatalf("expected item ErrNotFound, got %v", err)
	}
}

func TestDeleteTransactionReversesTotals(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1007)
	itemID := snowflake.ID(2002)
	seedAccount(t, db, accountID)
	seedItem(t, db, itemID, "Soda", 50)

	payment, err := svc.RecordPayment(ctx, accountID, 400, "tr_del")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	purchase, err := svc.RecordPurchase(ctx, accountID, itemID)
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	if err := svc.DeleteTransaction(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, purchase.ID); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.TotalPaid != 0 || account.TotalPurchased != 0 {
		t.Fatalf("expected totals reversed to zero, got paid=%d purchased=%d",
			account.TotalPaid, account.TotalPurchased)
	}

	if err := svc.DeleteTransaction(ctx, payment.ID); !errors.Is(err, ledgerdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteTransactionKeepsActivityTimestamps(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, accounts := newTestService(t, db)

	accountID := snowflake.ID(1010)
	itemID := snowflake.ID(2003)
	seedAccount(t, db, accountID)
	seedItem(t, db, itemID, "Stout", 80)

	payment, err := svc.RecordPayment(ctx, accountID, 900, "tr_keep_ts")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	purchase, err := svc.RecordPurchase(ctx, accountID, itemID)
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	// Backdate the activity timestamps so any rewrite during reversal is
	// unambiguous.
	past := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err = db.Exec(
		`UPDATE accounts SET last_payment_at = ?, last_purchase_at = ? WHERE id = ?`,
		past, past, accountID,
	).Error
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if err := svc.DeleteTransaction(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, purchase.ID); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}

	account, err := accounts.FindByID(ctx, db, accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.LastPaymentAt == nil || !account.LastPaymentAt.Equal(past) {
		t.Fatalf("reversal must not rewrite last_payment_at, got %v", account.LastPaymentAt)
	}
	if account.LastPurchaseAt == nil || !account.LastPurchaseAt.Equal(past) {
		t.Fatalf("reversal must not rewrite last_purchase_at, got %v", account.LastPurchaseAt)
	}
}

func TestListByAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	accountID := snowflake.ID(1008)
	seedAccount(t, db, accountID)

	if _, err := svc.RecordPayment(ctx, accountID, 100, "tr_a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, accountID, 200, "tr_b"); err != nil {
		t.Fatalf("record: %v", err)
	}

	txns, err := svc.ListByAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
}
