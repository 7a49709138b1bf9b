package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	itemdomain "github.com/tapkeeper/tapkeeper/internal/item/domain"
	itemrepo "github.com/tapkeeper/tapkeeper/internal/item/repository"
	"github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	ledgerrepo "github.com/tapkeeper/tapkeeper/internal/ledger/repository"
	obsmetrics "github.com/tapkeeper/tapkeeper/internal/observability/metrics"
	"github.com/tapkeeper/tapkeeper/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxTxAttempts bounds retries on transient serialization conflicts.
const maxTxAttempts = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        ledgerrepo.Repository
	AccountRepo accountdomain.Repository
	ItemRepo    itemrepo.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        ledgerrepo.Repository
	accountRepo accountdomain.Repository
	itemRepo    itemrepo.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		itemRepo:    p.ItemRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

// RecordPayment creates a payment transaction and increments the account's
// total_paid in one atomic unit. The transaction ID doubles as the
// idempotency key: the pre-read inside the transaction catches replays, and
// the primary-key constraint catches the loser of a concurrent race, so for
// any given ID exactly one call ever succeeds.
func (s *Service) RecordPayment(ctx context.Context, accountID snowflake.ID, amount int64, transactionID string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	generated := false
	if transactionID == "" {
		transactionID = uuid.NewString()
		generated = true
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        transactionID,
		AccountID: accountID,
		Type:      domain.TypePayment,
		Amount:    amount,
		Metadata:  datatypes.JSONMap{"generated_id": generated},
		CreatedAt: now,
	}

	err := s.withTransaction(ctx, func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrNotFound
		}

		existing, err := s.repo.FindByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateTransaction
		}

		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateTransaction
			}
			return err
		}

		return s.repo.AddPaid(ctx, tx, accountID, amount, now)
	})
	if err != nil {
		if err == domain.ErrDuplicateTransaction {
			s.log.Info("duplicate payment ignored",
				zap.String("transaction_id", transactionID),
				zap.String("account_id", accountID.String()),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordDuplicatePayment()
			}
		}
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.String("transaction_id", transactionID),
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(amount)
	}
	return txn, nil
}

// RecordPurchase records a purchase of the item at its current price and
// increments the account's total_purchased atomically with the record.
func (s *Service) RecordPurchase(ctx context.Context, accountID, itemID snowflake.ID) (*domain.Transaction, error) {
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      domain.TypePurchase,
		CreatedAt: now,
	}

	err := s.withTransaction(ctx, func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrNotFound
		}

		item, err := s.itemRepo.FindByID(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return itemdomain.ErrNotFound
		}

		txn.Amount = item.Price
		txn.ItemID = &item.ID
		txn.Metadata = datatypes.JSONMap{"item_name": item.Name}

		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			return err
		}
		return s.repo.AddPurchased(ctx, tx, accountID, item.Price, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase recorded",
		zap.String("transaction_id", txn.ID),
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", txn.Amount),
	)
	return txn, nil
}

// DeleteTransaction removes a record and reverses the account total it
// contributed to, keeping balance = total_paid - total_purchased intact.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.withTransaction(ctx, func(tx *gorm.DB) error {
		txn, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrNotFound
		}

		switch txn.Type {
		case domain.TypePayment:
			if err := s.repo.RevertPaid(ctx, tx, txn.AccountID, txn.Amount); err != nil {
				return err
			}
		case domain.TypePurchase:
			if err := s.repo.RevertPurchased(ctx, tx, txn.AccountID, txn.Amount); err != nil {
				return err
			}
		}

		return s.repo.Delete(ctx, tx, id)
	})
}

func (s *Service) ListByAccount(ctx context.Context, accountID snowflake.ID) ([]*domain.Transaction, error) {
	return s.repo.ListByAccount(ctx, s.db, accountID)
}

// withTransaction runs fn inside a database transaction, retrying a bounded
// number of times on serialization conflicts. Domain errors pass through
// untouched.
func (s *Service) withTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !db.IsSerializationErr(err) {
			return err
		}
		s.log.Warn("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}
