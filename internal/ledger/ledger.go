// Package ledger defines how pot operations move money between wallets.
//
// Every multi-wallet mutation goes through Ledger.ExecuteAtomic. Stores that
// support multi-row transactions implement it directly; stores that only
// guarantee single-row compare-and-swap are wrapped in a Saga.
package ledger

import (
	"context"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
)

type Leg struct {
	WalletID string
	Amount   decimal.Decimal
}

// Operation debits one wallet and credits one or more others. The debit may
// exceed the credited total; the difference leaves the ledger (penalties).
type Operation struct {
	Reference string
	Debit     Leg
	Credits   []Leg
}

type Result struct {
	Reference string
	Balances  map[string]decimal.Decimal
}

type Ledger interface {
	Wallet(ctx context.Context, id string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	DeleteWallet(ctx context.Context, id string) error
	SetWalletStatus(ctx context.Context, id, status string) error
	ExecuteAtomic(ctx context.Context, op Operation) (*Result, error)
}

// RowStore only promises atomicity for a single wallet row.
type RowStore interface {
	Wallet(ctx context.Context, id string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	DeleteWallet(ctx context.Context, id string) error
	SetWalletStatus(ctx context.Context, id, status string) error
	// CompareAndSwapBalance writes balance only if the row is still at version,
	// returning domain.ErrVersionMismatch otherwise.
	CompareAndSwapBalance(ctx context.Context, id string, version int64, balance decimal.Decimal) (*models.Wallet, error)
}

// Outbox persists compensations that could not be applied inline.
type Outbox interface {
	Enqueue(ctx context.Context, c *models.Compensation) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.Compensation, error)
	MarkResolved(ctx context.Context, id string, at time.Time) error
	MarkAttempt(ctx context.Context, id string, attempts int, lastErr string, next time.Time, status string) error
}

func (op Operation) Validate() error {
	if op.Reference == "" {
		return domain.Validationf("operation reference is required")
	}
	if op.Debit.WalletID == "" {
		return domain.Validationf("debit wallet is required")
	}
	if !op.Debit.Amount.IsPositive() {
		return domain.Validationf("debit amount must be positive")
	}
	if len(op.Credits) == 0 {
		return domain.Validationf("at least one credit is required")
	}
	total := decimal.Zero
	seen := make(map[string]bool, len(op.Credits))
	for _, c := range op.Credits {
		if c.WalletID == "" {
			return domain.Validationf("credit wallet is required")
		}
		if c.WalletID == op.Debit.WalletID {
			return domain.Validationf("cannot credit the debited wallet")
		}
		if seen[c.WalletID] {
			return domain.Validationf("wallet %s credited twice", c.WalletID)
		}
		seen[c.WalletID] = true
		if !c.Amount.IsPositive() {
			return domain.Validationf("credit amount must be positive")
		}
		total = total.Add(c.Amount)
	}
	if total.GreaterThan(op.Debit.Amount) {
		return domain.Validationf("credits exceed debit")
	}
	return nil
}

// CheckDebit enforces the preconditions for taking amount out of w.
func CheckDebit(w *models.Wallet, amount decimal.Decimal) error {
	if w.Status != domain.WalletStatusActive {
		return domain.Conflictf("wallet %s is %s", w.ID, w.Status)
	}
	if w.Balance.LessThan(amount) {
		return domain.InsufficientFundsf("wallet %s balance %s is below %s", w.ID, w.Balance.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

func CheckCredit(w *models.Wallet) error {
	if w.Status != domain.WalletStatusActive {
		return domain.Conflictf("wallet %s is %s", w.ID, w.Status)
	}
	return nil
}
