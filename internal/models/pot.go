package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pot is a locked savings container backed 1:1 by a wallet. Its balance is
// never stored here; it is read through from the wallet.
type Pot struct {
	ID          string              `gorm:"type:char(36);primaryKey" json:"id"`
	UserID      string              `gorm:"size:64;not null;index" json:"user_id"`
	WalletID    string              `gorm:"type:char(36);not null;uniqueIndex" json:"wallet_id"`
	Name        string              `gorm:"size:100;not null" json:"name"`
	Description string              `gorm:"size:500" json:"description"`
	Icon        string              `gorm:"size:50" json:"icon"`
	Color       string              `gorm:"size:20" json:"color"`
	GoalAmount  decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"goal_amount"`

	LockType       string     `gorm:"size:20;not null" json:"lock_type"` // time_based, goal_based, hybrid
	LockPeriodDays *int       `json:"lock_period_days"`
	LockStartDate  time.Time  `json:"lock_start_date"`
	LockEndDate    *time.Time `json:"lock_end_date"`
	MaturityDate   *time.Time `json:"maturity_date"`

	Status            string `gorm:"size:20;not null;index" json:"status"`      // ACTIVE, CLOSED
	LockStatus        string `gorm:"size:20;not null" json:"lock_status"`       // LOCKED, UNLOCKED
	WithdrawalEnabled bool   `gorm:"not null" json:"withdrawal_enabled"`

	AutoDepositEnabled        bool                `gorm:"not null" json:"auto_deposit_enabled"`
	AutoDepositAmount         decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"auto_deposit_amount"`
	AutoDepositFrequency      string              `gorm:"size:20" json:"auto_deposit_frequency"`
	AutoDepositSourceWalletID string              `gorm:"size:36" json:"auto_deposit_source_wallet_id"`
	NextAutoDepositDate       *time.Time          `gorm:"index" json:"next_auto_deposit_date"`
	LastAutoDepositDate       *time.Time          `json:"last_auto_deposit_date"`

	AdminLocked     bool       `gorm:"not null" json:"admin_locked"`
	AdminLockedBy   string     `gorm:"size:64" json:"admin_locked_by"`
	AdminLockedAt   *time.Time `json:"admin_locked_at"`
	AdminLockReason string     `gorm:"size:500" json:"admin_lock_reason"`

	ClosedAt  *time.Time `json:"closed_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Pot) TableName() string {
	return "pots"
}
