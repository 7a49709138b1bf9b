package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Item is one entry of the drinks catalog. Purchases copy the price at the
// time of recording, so price changes never rewrite history.
type Item struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null;uniqueIndex" json:"name"`
	Price     int64        `gorm:"not null" json:"price"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

var ErrNotFound = errors.New("item_not_found")
