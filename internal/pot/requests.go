package pot

import (
	"time"

	"potledger/internal/models"

	"github.com/shopspring/decimal"
)

// PotView is a pot with its balance read through from the backing wallet.
type PotView struct {
	models.Pot
	Balance decimal.Decimal `json:"balance"`
}

type AutoDepositConfig struct {
	Enabled        bool            `json:"enabled"`
	Amount         decimal.Decimal `json:"amount"`
	Frequency      string          `json:"frequency"`
	SourceWalletID string          `json:"source_wallet_id"`
}

type CreatePotRequest struct {
	UserID         string             `json:"-"`
	Name           string             `json:"name" binding:"required"`
	Description    string             `json:"description"`
	Icon           string             `json:"icon"`
	Color          string             `json:"color"`
	GoalAmount     *decimal.Decimal   `json:"goal_amount"`
	LockType       string             `json:"lock_type" binding:"required"`
	LockPeriodDays *int               `json:"lock_period_days"`
	MaturityDate   *time.Time         `json:"maturity_date"`
	AutoDeposit    *AutoDepositConfig `json:"auto_deposit"`
}

type ContributeRequest struct {
	PotID          string          `json:"-"`
	SourceWalletID string          `json:"source_wallet_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
}

type WithdrawRequest struct {
	PotID               string          `json:"-"`
	DestinationWalletID string          `json:"destination_wallet_id" binding:"required"`
	Amount              decimal.Decimal `json:"amount"`
	ForceWithPenalty    bool            `json:"force_with_penalty"`
	Description         string          `json:"description"`
}

type WithdrawResult struct {
	Withdrawal    *models.PotTransaction `json:"withdrawal"`
	Penalty       *models.PotTransaction `json:"penalty,omitempty"`
	PenaltyAmount decimal.Decimal        `json:"penalty_amount"`
	ActualAmount  decimal.Decimal        `json:"actual_amount"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
}

type CloseResult struct {
	Pot        PotView         `json:"pot"`
	Withdrawal *WithdrawResult `json:"withdrawal,omitempty"`
}

// UpdatePotRequest is sparse: nil fields are left alone.
type UpdatePotRequest struct {
	PotID                     string           `json:"-"`
	Name                      *string          `json:"name"`
	Description               *string          `json:"description"`
	Icon                      *string          `json:"icon"`
	Color                     *string          `json:"color"`
	GoalAmount                *decimal.Decimal `json:"goal_amount"`
	AutoDepositEnabled        *bool            `json:"auto_deposit_enabled"`
	AutoDepositAmount         *decimal.Decimal `json:"auto_deposit_amount"`
	AutoDepositFrequency      *string          `json:"auto_deposit_frequency"`
	AutoDepositSourceWalletID *string          `json:"auto_deposit_source_wallet_id"`
}

type AutoDepositResult struct {
	PotID               string                 `json:"pot_id"`
	Transaction         *models.PotTransaction `json:"transaction"`
	Succeeded           bool                   `json:"succeeded"`
	Skipped             bool                   `json:"skipped"`
	FailureReason       string                 `json:"failure_reason,omitempty"`
	NextAutoDepositDate *time.Time             `json:"next_auto_deposit_date"`
}
