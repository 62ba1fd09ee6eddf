package pot

import (
	"context"
	"fmt"
	"time"

	"potledger/internal/alert"
	"potledger/internal/domain"
	"potledger/internal/models"
	"potledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DueAutoDeposits lists pots whose next auto-deposit is due. Triggering them
// is left to an external scheduler calling ProcessAutoDeposit.
func (m *Manager) DueAutoDeposits(ctx context.Context, limit int) ([]models.Pot, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return m.pots.ListDueAutoDeposits(ctx, m.clock(), limit)
}

// ProcessAutoDeposit makes one attempt at a pot's due auto-deposit. A failed
// attempt is reported in the result, not as an error; errors are reserved for
// pots that are missing, not due, or an unavailable store.
func (m *Manager) ProcessAutoDeposit(ctx context.Context, potID string) (res *AutoDepositResult, err error) {
	defer observe("auto_deposit", time.Now(), &err)

	var p *models.Pot
	var before decimal.Decimal
	err = m.withPotLock(ctx, potID, func() error {
		if p, err = m.pots.GetByID(ctx, potID); err != nil {
			return err
		}
		if p.Status == domain.PotStatusClosed {
			return domain.Conflictf("pot %s is closed", p.ID)
		}
		if !p.AutoDepositEnabled || p.NextAutoDepositDate == nil {
			return domain.Conflictf("auto-deposit is not enabled for pot %s", p.ID)
		}
		now := m.clock()
		scheduled := p.NextAutoDepositDate.UTC()
		if scheduled.After(now) {
			return domain.Conflictf("auto-deposit for pot %s is not due until %s", p.ID, scheduled.Format(time.RFC3339))
		}

		failed, err := m.txs.CountFailedSince(ctx, p.ID, domain.TxTypeAutoDeposit, scheduled)
		if err != nil {
			return fmt.Errorf("count failed auto-deposits: %w", err)
		}
		retryCount := int(failed) + 1

		res = &AutoDepositResult{PotID: p.ID}
		rec, prior, cerr := m.contribute(ctx, p, contribution{
			sourceWalletID: p.AutoDepositSourceWalletID,
			amount:         p.AutoDepositAmount.Decimal,
			description:    "Scheduled auto-deposit",
			txType:         domain.TxTypeAutoDeposit,
			retryCount:     retryCount,
		})
		if cerr == nil {
			before = prior
			res.Transaction = rec
			res.Succeeded = true
			return m.advanceAutoDeposit(ctx, p, scheduled, now, true, res)
		}

		m.logger.Warn("auto-deposit attempt failed",
			zap.String("pot_id", p.ID),
			zap.Int("retry_count", retryCount),
			zap.Error(cerr))
		if rec == nil {
			// Rejected before anything was written; keep a trace of the attempt.
			rec = &models.PotTransaction{
				ID:                  idgen.NewID(),
				PotID:               p.ID,
				Type:                domain.TxTypeAutoDeposit,
				Amount:              p.AutoDepositAmount.Decimal,
				Status:              domain.TxStatusFailed,
				Reference:           idgen.Reference(refAutoDeposit),
				SourceWalletID:      p.AutoDepositSourceWalletID,
				DestinationWalletID: p.WalletID,
				Description:         "Scheduled auto-deposit",
				FailureReason:       cerr.Error(),
				RetryCount:          retryCount,
				CreatedAt:           now,
			}
			if err := m.txs.Append(ctx, rec); err != nil {
				return fmt.Errorf("record failed auto-deposit: %w", err)
			}
		}
		res.Transaction = rec
		res.FailureReason = domain.Message(cerr)
		if res.FailureReason == "internal error" {
			res.FailureReason = cerr.Error()
		}
		res.NextAutoDepositDate = p.NextAutoDepositDate

		if now.Sub(scheduled) <= m.Settings().RetryWindow() {
			return nil
		}
		res.Skipped = true
		return m.advanceAutoDeposit(ctx, p, scheduled, now, false, res)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Succeeded:
		after := res.Transaction.BalanceAfter.Decimal
		m.notify(ctx, p, domain.NotifAutoDepositCompleted, "Auto-deposit completed",
			fmt.Sprintf("%s %s was auto-deposited into %q.", domain.DefaultCurrency, res.Transaction.Amount.StringFixed(2), p.Name),
			map[string]interface{}{"amount": res.Transaction.Amount.StringFixed(2), "balance": after.StringFixed(2), "reference": res.Transaction.Reference})
		m.notifyGoalReached(ctx, p, before, after)
	case res.Skipped:
		m.notify(ctx, p, domain.NotifAutoDepositFailed, "Auto-deposit failed",
			fmt.Sprintf("The scheduled auto-deposit into %q could not be completed: %s", p.Name, res.FailureReason),
			map[string]interface{}{"reason": res.FailureReason, "retry_count": res.Transaction.RetryCount})
	}
	return res, nil
}

// advanceAutoDeposit moves the schedule past now. completed also stamps the
// last deposit date.
func (m *Manager) advanceAutoDeposit(ctx context.Context, p *models.Pot, scheduled, now time.Time, completed bool, res *AutoDepositResult) error {
	next, err := nextAfter(p.AutoDepositFrequency, scheduled, now)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"next_auto_deposit_date": next,
		"updated_at":             now,
	}
	if completed {
		fields["last_auto_deposit_date"] = now
		p.LastAutoDepositDate = &now
	}
	if err := m.pots.Update(ctx, p.ID, fields); err != nil {
		m.logger.Error("advance auto-deposit schedule",
			zap.String("pot_id", p.ID),
			zap.Bool("completed", completed),
			zap.Error(err))
		if completed {
			// The deposit stands. Until the schedule moves the pot stays due.
			m.alerter.Alert(ctx, alert.Alert{
				Kind:      alert.KindRecordFailure,
				Reference: res.Transaction.Reference,
				WalletID:  p.WalletID,
				PotID:     p.ID,
				Amount:    res.Transaction.Amount,
				Message:   "auto-deposit completed but schedule not advanced: " + err.Error(),
			})
			res.NextAutoDepositDate = p.NextAutoDepositDate
			return nil
		}
		return fmt.Errorf("advance auto-deposit: %w", err)
	}
	p.NextAutoDepositDate = &next
	res.NextAutoDepositDate = &next
	return nil
}
