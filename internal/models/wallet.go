package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a balance holder in the wallet ledger. Every pot owns exactly one wallet of type "pot".
type Wallet struct {
	ID        string          `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string          `gorm:"size:64;not null;index" json:"user_id"`
	Type      string          `gorm:"size:20;not null" json:"type"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	Status    string          `gorm:"size:20;not null;index" json:"status"` // ACTIVE, FROZEN, CLOSED
	Version   int64           `gorm:"not null" json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
