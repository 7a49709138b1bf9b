package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TypePurchase TransactionType = "purchase"
	TypePayment  TransactionType = "payment"
)

// Transaction is one append-only purchase or payment record. Payment IDs are
// the external checkout reference; that choice is what makes webhook replays
// collide instead of double-recording.
type Transaction struct {
	ID        string            `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID      `gorm:"not null;index" json:"account_id"`
	Type      TransactionType   `gorm:"not null" json:"type"`
	Amount    int64             `gorm:"not null" json:"amount"`
	ItemID    *snowflake.ID     `json:"item_id,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

var (
	// ErrDuplicateTransaction signals the transaction ID was already
	// recorded. On the webhook path this is an acknowledgement, not a
	// failure.
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrNotFound             = errors.New("transaction_not_found")
)

type Service interface {
	// RecordPayment records a payment at most once per transactionID. An
	// empty transactionID generates one, which offers no duplicate
	// protection and is reserved for manually entered payments.
	RecordPayment(ctx context.Context, accountID snowflake.ID, amount int64, transactionID string) (*Transaction, error)

	// RecordPurchase records a purchase of the item at its current price.
	RecordPurchase(ctx context.Context, accountID, itemID snowflake.ID) (*Transaction, error)

	// DeleteTransaction removes a record and reverses the owning account's
	// corresponding total in the same atomic unit.
	DeleteTransaction(ctx context.Context, id string) error

	ListByAccount(ctx context.Context, accountID snowflake.ID) ([]*Transaction, error)
}
