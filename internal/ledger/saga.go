package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"potledger/internal/alert"
	"potledger/internal/domain"
	"potledger/internal/models"
	"potledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SagaOptions struct {
	CASRetries           int
	CompensationAttempts int
	CompensationBackoff  time.Duration
	OutboxMaxAttempts    int
	OutboxBatch          int
}

func DefaultSagaOptions() SagaOptions {
	return SagaOptions{
		CASRetries:           5,
		CompensationAttempts: 3,
		CompensationBackoff:  100 * time.Millisecond,
		OutboxMaxAttempts:    10,
		OutboxBatch:          50,
	}
}

// Saga executes operations over a RowStore one leg at a time. A failed leg
// reverses every leg already applied; reversals that keep failing land in the
// outbox and raise an operator alert.
type Saga struct {
	store   RowStore
	outbox  Outbox
	alerter alert.Alerter
	opts    SagaOptions
	logger  *zap.Logger
	now     func() time.Time
}

func NewSaga(store RowStore, outbox Outbox, alerter alert.Alerter, opts SagaOptions, logger *zap.Logger) *Saga {
	if opts.CASRetries <= 0 {
		opts.CASRetries = 1
	}
	if opts.CompensationAttempts <= 0 {
		opts.CompensationAttempts = 1
	}
	if opts.OutboxBatch <= 0 {
		opts.OutboxBatch = 50
	}
	return &Saga{
		store:   store,
		outbox:  outbox,
		alerter: alerter,
		opts:    opts,
		logger:  logger.Named("saga"),
		now:     time.Now,
	}
}

func (s *Saga) Wallet(ctx context.Context, id string) (*models.Wallet, error) {
	return s.store.Wallet(ctx, id)
}

func (s *Saga) CreateWallet(ctx context.Context, w *models.Wallet) error {
	return s.store.CreateWallet(ctx, w)
}

func (s *Saga) DeleteWallet(ctx context.Context, id string) error {
	return s.store.DeleteWallet(ctx, id)
}

func (s *Saga) SetWalletStatus(ctx context.Context, id, status string) error {
	return s.store.SetWalletStatus(ctx, id, status)
}

func (s *Saga) ExecuteAtomic(ctx context.Context, op Operation) (*Result, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Reference: op.Reference, Balances: make(map[string]decimal.Decimal, len(op.Credits)+1)}

	debited, err := s.apply(ctx, op.Debit.WalletID, op.Debit.Amount.Neg(), true)
	if err != nil {
		return nil, err
	}
	res.Balances[debited.ID] = debited.Balance
	applied := []Leg{{WalletID: op.Debit.WalletID, Amount: op.Debit.Amount.Neg()}}

	for _, c := range op.Credits {
		credited, err := s.apply(ctx, c.WalletID, c.Amount, false)
		if err != nil {
			s.logger.Warn("credit failed, compensating",
				zap.String("reference", op.Reference),
				zap.String("wallet_id", c.WalletID),
				zap.Error(err))
			if cerr := s.compensate(ctx, op.Reference, applied, err); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
		res.Balances[credited.ID] = credited.Balance
		applied = append(applied, Leg{WalletID: c.WalletID, Amount: c.Amount})
	}
	return res, nil
}

// apply adds delta to a wallet, re-reading on version conflicts.
func (s *Saga) apply(ctx context.Context, walletID string, delta decimal.Decimal, debit bool) (*models.Wallet, error) {
	for i := 0; i < s.opts.CASRetries; i++ {
		w, err := s.store.Wallet(ctx, walletID)
		if err != nil {
			return nil, err
		}
		if debit {
			err = CheckDebit(w, delta.Neg())
		} else {
			err = CheckCredit(w)
		}
		if err != nil {
			return nil, err
		}
		updated, err := s.store.CompareAndSwapBalance(ctx, walletID, w.Version, w.Balance.Add(delta))
		if errors.Is(err, domain.ErrVersionMismatch) {
			continue
		}
		return updated, err
	}
	return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrVersionMismatch)
}

// adjust applies a compensating delta. Wallet status is ignored but the
// balance may not go negative.
func (s *Saga) adjust(ctx context.Context, walletID string, delta decimal.Decimal) error {
	for i := 0; i < s.opts.CASRetries; i++ {
		w, err := s.store.Wallet(ctx, walletID)
		if err != nil {
			return err
		}
		next := w.Balance.Add(delta)
		if next.IsNegative() {
			return domain.InsufficientFundsf("wallet %s cannot absorb %s", walletID, delta.StringFixed(2))
		}
		_, err = s.store.CompareAndSwapBalance(ctx, walletID, w.Version, next)
		if errors.Is(err, domain.ErrVersionMismatch) {
			continue
		}
		return err
	}
	return fmt.Errorf("wallet %s: %w", walletID, domain.ErrVersionMismatch)
}

func (s *Saga) compensate(ctx context.Context, reference string, applied []Leg, cause error) error {
	// The undo must run even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	var first error
	for i := len(applied) - 1; i >= 0; i-- {
		leg := applied[i]
		delta := leg.Amount.Neg()
		err := s.retry(ctx, func() error { return s.adjust(ctx, leg.WalletID, delta) })
		if err == nil {
			compensationsTotal.WithLabelValues("applied").Inc()
			s.logger.Info("compensation applied",
				zap.String("reference", reference),
				zap.String("wallet_id", leg.WalletID),
				zap.String("delta", delta.String()))
			continue
		}

		compensationsTotal.WithLabelValues("queued").Inc()
		entry := &models.Compensation{
			ID:            idgen.NewID(),
			Reference:     reference,
			WalletID:      leg.WalletID,
			Delta:         delta,
			Reason:        cause.Error(),
			Status:        domain.CompensationPending,
			Attempts:      s.opts.CompensationAttempts,
			LastError:     err.Error(),
			NextAttemptAt: s.now().UTC(),
		}
		msg := "compensation failed after inline retries; queued for retry"
		if qerr := s.outbox.Enqueue(ctx, entry); qerr != nil {
			msg = "compensation failed and could not be queued: " + qerr.Error()
			s.logger.Error("enqueue compensation", zap.String("reference", reference), zap.Error(qerr))
		}
		s.alerter.Alert(ctx, alert.Alert{
			Kind:      alert.KindCompensationFailure,
			Reference: reference,
			WalletID:  leg.WalletID,
			Amount:    delta,
			Message:   msg,
			Attempts:  s.opts.CompensationAttempts,
		})
		if first == nil {
			first = &domain.CompensationError{Reference: reference, WalletID: leg.WalletID, Cause: cause, Undo: err}
		}
	}
	return first
}

func (s *Saga) retry(ctx context.Context, fn func() error) error {
	var err error
	backoff := s.opts.CompensationBackoff
	for attempt := 0; attempt < s.opts.CompensationAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.opts.CompensationAttempts-1 || backoff <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// RetryPending re-applies due outbox entries and reports how many resolved.
func (s *Saga) RetryPending(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.outbox.Due(ctx, now, s.opts.OutboxBatch)
	if err != nil {
		return 0, fmt.Errorf("load due compensations: %w", err)
	}

	resolved := 0
	for _, c := range due {
		err := s.adjust(ctx, c.WalletID, c.Delta)
		if err == nil {
			if err := s.outbox.MarkResolved(ctx, c.ID, now); err != nil {
				// Leaving it PENDING would apply the delta twice.
				s.alerter.Alert(ctx, alert.Alert{
					Kind:      alert.KindRecordFailure,
					Reference: c.Reference,
					WalletID:  c.WalletID,
					Amount:    c.Delta,
					Message:   "compensation applied but outbox entry not resolved: " + err.Error(),
				})
				return resolved, fmt.Errorf("resolve compensation %s: %w", c.ID, err)
			}
			compensationsTotal.WithLabelValues("resolved").Inc()
			resolved++
			continue
		}

		attempts := c.Attempts + 1
		status := domain.CompensationPending
		if s.opts.OutboxMaxAttempts > 0 && attempts >= s.opts.OutboxMaxAttempts {
			status = domain.CompensationAbandoned
			compensationsTotal.WithLabelValues("abandoned").Inc()
			s.alerter.Alert(ctx, alert.Alert{
				Kind:      alert.KindCompensationAbandoned,
				Reference: c.Reference,
				WalletID:  c.WalletID,
				Amount:    c.Delta,
				Message:   "compensation abandoned, manual reconciliation required: " + err.Error(),
				Attempts:  attempts,
			})
		}
		next := now.Add(time.Duration(attempts) * time.Minute)
		if merr := s.outbox.MarkAttempt(ctx, c.ID, attempts, err.Error(), next, status); merr != nil {
			return resolved, fmt.Errorf("record compensation attempt %s: %w", c.ID, merr)
		}
		s.logger.Warn("compensation retry failed",
			zap.String("reference", c.Reference),
			zap.String("wallet_id", c.WalletID),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	return resolved, nil
}
