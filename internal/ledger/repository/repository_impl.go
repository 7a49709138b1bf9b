package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Transaction, error)
	Delete(ctx context.Context, db *gorm.DB, id string) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*domain.Transaction, error)

	AddPaid(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) error
	AddPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) error
	RevertPaid(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) error
	RevertPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transactions WHERE id = ?`,
		id,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == "" {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Exec(`DELETE FROM transactions WHERE id = ?`, id).Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("account_id = ?", accountID).
		Order("created_at desc, id desc").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) AddPaid(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_paid = total_paid + ?, last_payment_at = ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		at,
		at,
		accountID,
	).Error
}

func (r *repo) AddPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_purchased = total_purchased + ?, last_purchase_at = ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		at,
		at,
		accountID,
	).Error
}

// RevertPaid undoes a payment's contribution to the running total. The
// activity timestamp records when the member actually paid, so a reversal
// leaves last_payment_at alone.
func (r *repo) RevertPaid(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_paid = total_paid - ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		time.Now().UTC(),
		accountID,
	).Error
}

func (r *repo) RevertPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_purchased = total_purchased - ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		time.Now().UTC(),
		accountID,
	).Error
}
