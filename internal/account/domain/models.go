package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account tracks one workspace member's profile mirror and running totals.
// The balance is never stored; it is always derived from the totals.
type Account struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SlackID        string            `gorm:"not null;uniqueIndex" json:"slack_id"`
	Name           string            `gorm:"not null" json:"name"`
	Username       string            `gorm:"not null" json:"username"`
	Email          string            `json:"email,omitempty"`
	AvatarURL      string            `json:"avatar_url,omitempty"`
	IsEmployee     bool              `gorm:"not null;default:false" json:"is_employee"`
	TotalPurchased int64             `gorm:"not null;default:0" json:"total_purchased"`
	TotalPaid      int64             `gorm:"not null;default:0" json:"total_paid"`
	LastPurchaseAt *time.Time        `json:"last_purchase_at,omitempty"`
	LastPaymentAt  *time.Time        `json:"last_payment_at,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Balance is total paid minus total purchased; negative means the member
// owes money.
func (a *Account) Balance() int64 {
	return a.TotalPaid - a.TotalPurchased
}

var (
	ErrNotFound  = errors.New("account_not_found")
	ErrInvalidID = errors.New("invalid_account_id")
)
