package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Compensation is a durable outbox entry for a wallet adjustment that could
// not be applied inline while undoing a partially applied operation.
type Compensation struct {
	ID            string          `gorm:"type:char(36);primaryKey" json:"id"`
	Reference     string          `gorm:"size:64;not null;index" json:"reference"`
	WalletID      string          `gorm:"size:36;not null;index" json:"wallet_id"`
	Delta         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"delta"` // signed adjustment to apply
	Reason        string          `gorm:"type:text" json:"reason"`
	Status        string          `gorm:"size:20;not null;index" json:"status"` // PENDING, RESOLVED, ABANDONED
	Attempts      int             `gorm:"not null" json:"attempts"`
	LastError     string          `gorm:"type:text" json:"last_error"`
	NextAttemptAt time.Time       `gorm:"index" json:"next_attempt_at"`
	ResolvedAt    *time.Time      `json:"resolved_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Compensation) TableName() string {
	return "compensations"
}
