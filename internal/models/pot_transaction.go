package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PotTransaction is an append-only record of a pot balance change.
// Only Status, BalanceAfter, FailureReason and RetryCount move after insert.
type PotTransaction struct {
	ID                  string              `gorm:"type:char(36);primaryKey" json:"id"`
	PotID               string              `gorm:"type:char(36);not null;index" json:"pot_id"`
	Type                string              `gorm:"size:20;not null;index" json:"type"` // contribution, withdrawal, penalty, auto_deposit
	Amount              decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceAfter        decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"balance_after"`
	Status              string              `gorm:"size:20;not null;index" json:"status"` // PENDING, COMPLETED, FAILED
	Reference           string              `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	SourceWalletID      string              `gorm:"size:36" json:"source_wallet_id,omitempty"`
	DestinationWalletID string              `gorm:"size:36" json:"destination_wallet_id,omitempty"`
	Description         string              `gorm:"size:255" json:"description"`
	FailureReason       string              `gorm:"type:text" json:"failure_reason,omitempty"`
	RetryCount          int                 `gorm:"not null" json:"retry_count"`
	CreatedAt           time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (PotTransaction) TableName() string {
	return "pot_transactions"
}
