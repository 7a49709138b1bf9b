package server

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountrepo "github.com/tapkeeper/tapkeeper/internal/account/repository"
	"github.com/tapkeeper/tapkeeper/internal/config"
	itemrepo "github.com/tapkeeper/tapkeeper/internal/item/repository"
	ledgerrepo "github.com/tapkeeper/tapkeeper/internal/ledger/repository"
	ledgerservice "github.com/tapkeeper/tapkeeper/internal/ledger/service"
	"github.com/tapkeeper/tapkeeper/internal/providers/mollie"
	"github.com/tapkeeper/tapkeeper/internal/providers/slack"
	"github.com/tapkeeper/tapkeeper/internal/reconcile"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeGateway struct {
	payments    map[string]*mollie.Payment
	created     []mollie.CreatePaymentRequest
	createErr   error
	nextID      string
	checkoutURL string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:    map[string]*mollie.Payment{},
		nextID:      "tr_fake_1",
		checkoutURL: "https://pay.example/checkout",
	}
}

func (f *fakeGateway) CreatePayment(ctx context.Context, req mollie.CreatePaymentRequest) (*mollie.Payment, error) {
	_ = ctx
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	p := &mollie.Payment{
		ID:          f.nextID,
		Status:      mollie.StatusOpen,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CheckoutURL: f.checkoutURL,
		Metadata:    req.Metadata,
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, id string) (*mollie.Payment, error) {
	_ = ctx
	p, ok := f.payments[id]
	if !ok {
		return nil, mollie.ErrPaymentNotFound
	}
	return p, nil
}

type fakeSlackProvider struct {
	members []slack.Member
	listErr error
	dms     []string
	sendErr error
}

func (f *fakeSlackProvider) ListMembers(ctx context.Context) ([]slack.Member, error) {
	_ = ctx
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.members, nil
}

func (f *fakeSlackProvider) SendDirectMessage(ctx context.Context, userID string, text string) error {
	_ = ctx
	if f.sendErr != nil {
		return f.sendErr
	}
	f.dms = append(f.dms, userID+": "+text)
	return nil
}

func setupServerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

type testEnv struct {
	srv     *Server
	router  *gin.Engine
	db      *gorm.DB
	gateway *fakeGateway
	slack   *fakeSlackProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupServerDB(t)
	gateway := newFakeGateway()
	messenger := &fakeSlackProvider{}

	accounts := accountrepo.Provide()
	items := itemrepo.Provide()
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        ledgerrepo.Provide(),
		AccountRepo: accounts,
		ItemRepo:    items,
	})

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	domains, err := config.NewDomainsHolder(config.Config{
		EmployeeDomains: []string{"brewhouse.example"},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("domains holder: %v", err)
	}
	reconcileSvc := reconcile.NewService(reconcile.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Slack:       messenger,
		AccountRepo: accounts,
		Domains:     domains,
	})

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine: router,
		cfg: config.Config{
			APIToken: "test-token",
			BaseURL:  "https://tab.example",
			Mollie:   config.MollieConfig{Currency: "EUR"},
		},
		db:           db,
		log:          zap.NewNop(),
		genID:        node,
		ledgerSvc:    ledgerSvc,
		reconcileSvc: reconcileSvc,
		accountRepo:  accounts,
		itemRepo:     items,
		slack:        messenger,
		payments:     gateway,
	}
	srv.registerAPIRoutes()

	return &testEnv{srv: srv, router: router, db: db, gateway: gateway, slack: messenger}
}

func (e *testEnv) seedAccount(t *testing.T, id snowflake.ID, slackID string, paid, purchased int64) {
	t.Helper()
	err := e.db.Exec(
		`INSERT INTO accounts (id, slack_id, name, total_paid, total_purchased) VALUES (?, ?, ?, ?, ?)`,
		id, slackID, "Test Member", paid, purchased,
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func (e *testEnv) seedItem(t *testing.T, id snowflake.ID, name string, price int64) {
	t.Helper()
	err := e.db.Exec(`INSERT INTO items (id, name, price) VALUES (?, ?, ?)`, id, name, price).Error
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}
