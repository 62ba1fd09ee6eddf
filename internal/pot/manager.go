// Package pot implements the savings pot lifecycle: creation, contributions,
// withdrawals with lock evaluation, closure and admin overrides.
package pot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"potledger/internal/alert"
	"potledger/internal/domain"
	"potledger/internal/ledger"
	"potledger/internal/lock"
	"potledger/internal/models"
	"potledger/internal/repository"
	"potledger/internal/service"
	"potledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transaction reference prefixes.
const (
	refContribution = "CTB"
	refAutoDeposit  = "ATD"
	refWithdrawal   = "WDR"
	refPenalty      = "PEN"
)

type PotStore interface {
	Create(ctx context.Context, p *models.Pot) error
	GetByID(ctx context.Context, id string) (*models.Pot, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	List(ctx context.Context, f repository.PotFilter, page, limit int) ([]models.Pot, int64, error)
	CountOpenByUser(ctx context.Context, userID string) (int64, error)
	ListDueAutoDeposits(ctx context.Context, now time.Time, limit int) ([]models.Pot, error)
}

type TransactionLog interface {
	Append(ctx context.Context, t *models.PotTransaction) error
	Complete(ctx context.Context, id string, balanceAfter decimal.Decimal) error
	Fail(ctx context.Context, id, reason string, retryCount int) error
	GetByReference(ctx context.Context, reference string) (*models.PotTransaction, error)
	ListByPot(ctx context.Context, potID, txType string, page, limit int) ([]models.PotTransaction, int64, error)
	CountFailedSince(ctx context.Context, potID, txType string, since time.Time) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, n service.Notification) error
}

type Deps struct {
	Pots         PotStore
	Transactions TransactionLog
	Ledger       ledger.Ledger
	Notifier     Notifier
	Locker       lock.Locker
	Alerter      alert.Alerter
	Logger       *zap.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPenaltyWallet credits early-withdrawal penalties to walletID instead of
// letting them leave the ledger.
func WithPenaltyWallet(walletID string) Option {
	return func(m *Manager) { m.penaltyWalletID = walletID }
}

type Manager struct {
	pots            PotStore
	txs             TransactionLog
	ledger          ledger.Ledger
	notifier        Notifier
	locker          lock.Locker
	alerter         alert.Alerter
	logger          *zap.Logger
	settings        atomic.Pointer[Settings]
	penaltyWalletID string
	now             func() time.Time
}

func NewManager(d Deps, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		pots:     d.Pots,
		txs:      d.Transactions,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		locker:   d.Locker,
		alerter:  d.Alerter,
		logger:   d.Logger,
		now:      time.Now,
	}
	if m.locker == nil {
		m.locker = lock.NewLocal()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("pot")
	if m.alerter == nil {
		m.alerter = alert.NewPublisher(nil, m.logger)
	}
	m.settings.Store(&settings)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Settings() Settings {
	return *m.settings.Load()
}

func (m *Manager) setSettings(s Settings) {
	m.settings.Store(&s)
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

// withPotLock runs fn while holding the pot's mutation lock.
func (m *Manager) withPotLock(ctx context.Context, potID string, fn func() error) error {
	return m.withLock(ctx, "pot:"+potID, fn)
}

func (m *Manager) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, key)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.Conflictf("%s is busy, try again", key)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

func (m *Manager) CreatePot(ctx context.Context, req CreatePotRequest) (view *PotView, err error) {
	defer observe("create", time.Now(), &err)

	s := m.Settings()
	now := m.clock()
	if err := validateCreate(req, s, now); err != nil {
		return nil, err
	}
	if ad := req.AutoDeposit; ad != nil && ad.Enabled {
		if err := m.checkFundingWallet(ctx, ad.SourceWalletID); err != nil {
			return nil, err
		}
	}

	// The open-pot count and the insert share a per-user lock.
	err = m.withLock(ctx, "user:"+req.UserID, func() error {
		view, err = m.createPot(ctx, req, s, now)
		return err
	})
	return view, err
}

func (m *Manager) createPot(ctx context.Context, req CreatePotRequest, s Settings, now time.Time) (*PotView, error) {
	open, err := m.pots.CountOpenByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("count pots: %w", err)
	}
	if open >= int64(s.MaxPotsPerUser) {
		return nil, domain.Conflictf("maximum of %d open pots reached", s.MaxPotsPerUser)
	}

	p := &models.Pot{
		ID:                idgen.NewID(),
		UserID:            req.UserID,
		WalletID:          idgen.NewID(),
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Icon:              req.Icon,
		Color:             req.Color,
		LockType:          req.LockType,
		LockPeriodDays:    req.LockPeriodDays,
		LockStartDate:     now,
		MaturityDate:      req.MaturityDate,
		Status:            domain.PotStatusActive,
		LockStatus:        domain.LockStatusLocked,
		WithdrawalEnabled: true,
	}
	if req.GoalAmount != nil {
		p.GoalAmount = decimal.NewNullDecimal(*req.GoalAmount)
	}
	switch {
	case req.MaturityDate != nil:
		end := req.MaturityDate.UTC()
		p.LockEndDate = &end
	case req.LockPeriodDays != nil:
		end := now.AddDate(0, 0, *req.LockPeriodDays)
		p.LockEndDate = &end
	}
	if ad := req.AutoDeposit; ad != nil && ad.Enabled {
		next, err := NextAutoDepositDate(ad.Frequency, now)
		if err != nil {
			return nil, err
		}
		p.AutoDepositEnabled = true
		p.AutoDepositAmount = decimal.NewNullDecimal(ad.Amount)
		p.AutoDepositFrequency = ad.Frequency
		p.AutoDepositSourceWalletID = ad.SourceWalletID
		p.NextAutoDepositDate = &next
	}

	wallet := &models.Wallet{
		ID:       p.WalletID,
		UserID:   req.UserID,
		Type:     domain.WalletTypePot,
		Balance:  decimal.Zero,
		Currency: domain.DefaultCurrency,
		Status:   domain.WalletStatusActive,
	}
	if err := m.ledger.CreateWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("create pot wallet: %w", err)
	}

	if err := m.pots.Create(ctx, p); err != nil {
		m.logger.Warn("pot insert failed, removing wallet",
			zap.String("pot_id", p.ID),
			zap.String("wallet_id", wallet.ID),
			zap.Error(err))
		if derr := m.ledger.DeleteWallet(context.WithoutCancel(ctx), wallet.ID); derr != nil {
			m.alerter.Alert(ctx, alert.Alert{
				Kind:      alert.KindCompensationFailure,
				Reference: "create:" + p.ID,
				WalletID:  wallet.ID,
				PotID:     p.ID,
				Amount:    decimal.Zero,
				Message:   "orphaned pot wallet could not be deleted: " + derr.Error(),
			})
			return nil, &domain.CompensationError{Reference: "create:" + p.ID, WalletID: wallet.ID, Cause: err, Undo: derr}
		}
		return nil, fmt.Errorf("create pot: %w", err)
	}

	m.logger.Info("pot created",
		zap.String("pot_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("lock_type", p.LockType))
	m.notify(ctx, p, domain.NotifPotCreated, "Pot created",
		fmt.Sprintf("Your pot %q is ready for contributions.", p.Name), nil)
	return &PotView{Pot: *p, Balance: decimal.Zero}, nil
}

func validateCreate(req CreatePotRequest, s Settings, now time.Time) error {
	if req.UserID == "" {
		return domain.Validationf("user id is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return domain.Validationf("name must be 1 to 100 characters")
	}
	if !domain.ValidLockType(req.LockType) {
		return domain.Validationf("invalid lock type %q", req.LockType)
	}
	if req.LockPeriodDays != nil {
		d := *req.LockPeriodDays
		if d < s.MinLockPeriodDays || d > s.MaxLockPeriodDays {
			return domain.Validationf("lock period must be between %d and %d days", s.MinLockPeriodDays, s.MaxLockPeriodDays)
		}
	}
	if req.MaturityDate != nil {
		if !req.MaturityDate.After(now) {
			return domain.Validationf("maturity date must be in the future")
		}
		days := daysUntil(now, *req.MaturityDate)
		if days < s.MinLockPeriodDays {
			return domain.Validationf("maturity date must be at least %d days away", s.MinLockPeriodDays)
		}
		if days > s.MaxLockPeriodDays {
			return domain.Validationf("maturity date is beyond the %d day maximum", s.MaxLockPeriodDays)
		}
	}
	if hasTimeLock(req.LockType) && req.MaturityDate == nil && req.LockPeriodDays == nil {
		return domain.Validationf("%s pots need a maturity date or lock period", req.LockType)
	}
	if req.GoalAmount != nil && !req.GoalAmount.IsPositive() {
		return domain.Validationf("goal amount must be positive")
	}
	if hasGoalLock(req.LockType) && req.GoalAmount == nil {
		return domain.Validationf("%s pots need a goal amount", req.LockType)
	}
	if ad := req.AutoDeposit; ad != nil && ad.Enabled {
		return validateAutoDeposit(ad.Amount, ad.Frequency, ad.SourceWalletID, s)
	}
	return nil
}

func validateAutoDeposit(amount decimal.Decimal, frequency, sourceWalletID string, s Settings) error {
	if err := validateAmount(amount, s); err != nil {
		return err
	}
	if !domain.ValidFrequency(frequency) {
		return domain.Validationf("invalid auto-deposit frequency %q", frequency)
	}
	if sourceWalletID == "" {
		return domain.Validationf("auto-deposit needs a source wallet")
	}
	return nil
}

// checkFundingWallet rejects an auto-deposit source that is missing or backs a pot.
func (m *Manager) checkFundingWallet(ctx context.Context, walletID string) error {
	w, err := m.ledger.Wallet(ctx, walletID)
	if err != nil {
		return err
	}
	if w.Type == domain.WalletTypePot {
		return domain.Validationf("auto-deposit source cannot be a pot wallet")
	}
	return nil
}

// validateAmount checks a contribution amount against the configured bounds.
func validateAmount(amount decimal.Decimal, s Settings) error {
	if !amount.IsPositive() {
		return domain.Validationf("amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.Validationf("amount has more than two decimal places")
	}
	if amount.LessThan(s.MinContribution) || amount.GreaterThan(s.MaxContribution) {
		return domain.Validationf("amount must be between %s and %s", s.MinContribution.StringFixed(2), s.MaxContribution.StringFixed(2))
	}
	return nil
}

func (m *Manager) GetPot(ctx context.Context, potID string) (*PotView, error) {
	p, err := m.pots.GetByID(ctx, potID)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, p)
}

func (m *Manager) ListUserPots(ctx context.Context, userID, status string, page, limit int) ([]PotView, int64, error) {
	return m.listViews(ctx, repository.PotFilter{UserID: userID, Status: status}, page, limit)
}

func (m *Manager) listViews(ctx context.Context, f repository.PotFilter, page, limit int) ([]PotView, int64, error) {
	pots, total, err := m.pots.List(ctx, f, page, limit)
	if err != nil {
		return nil, 0, err
	}
	views := make([]PotView, 0, len(pots))
	for i := range pots {
		v, err := m.view(ctx, &pots[i])
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *v)
	}
	return views, total, nil
}

func (m *Manager) view(ctx context.Context, p *models.Pot) (*PotView, error) {
	w, err := m.ledger.Wallet(ctx, p.WalletID)
	if err != nil {
		return nil, fmt.Errorf("pot %s wallet: %w", p.ID, err)
	}
	return &PotView{Pot: *p, Balance: w.Balance}, nil
}

// CheckWalletOwner reports a wallet belonging to someone else as missing.
func (m *Manager) CheckWalletOwner(ctx context.Context, walletID, userID string) error {
	w, err := m.ledger.Wallet(ctx, walletID)
	if err != nil {
		return err
	}
	if w.UserID != userID {
		return domain.NotFoundf("wallet %s not found", walletID)
	}
	return nil
}

func (m *Manager) ListTransactions(ctx context.Context, potID, txType string, page, limit int) ([]models.PotTransaction, int64, error) {
	if txType != "" && !domain.ValidTxType(txType) {
		return nil, 0, domain.Validationf("invalid transaction type %q", txType)
	}
	return m.txs.ListByPot(ctx, potID, txType, page, limit)
}

func (m *Manager) CheckWithdrawalEligibility(ctx context.Context, potID string) (*Eligibility, error) {
	p, err := m.pots.GetByID(ctx, potID)
	if err != nil {
		return nil, err
	}
	w, err := m.ledger.Wallet(ctx, p.WalletID)
	if err != nil {
		return nil, fmt.Errorf("pot %s wallet: %w", p.ID, err)
	}
	e := Evaluate(p, w.Balance, m.clock(), m.Settings().EarlyWithdrawalPenaltyPct)
	return &e, nil
}

type contribution struct {
	sourceWalletID string
	amount         decimal.Decimal
	description    string
	txType         string
	retryCount     int
}

func (m *Manager) Contribute(ctx context.Context, req ContributeRequest) (rec *models.PotTransaction, err error) {
	defer observe("contribute", time.Now(), &err)

	if err := validateAmount(req.Amount, m.Settings()); err != nil {
		return nil, err
	}
	var p *models.Pot
	var before decimal.Decimal
	err = m.withPotLock(ctx, req.PotID, func() error {
		if p, err = m.pots.GetByID(ctx, req.PotID); err != nil {
			return err
		}
		rec, before, err = m.contribute(ctx, p, contribution{
			sourceWalletID: req.SourceWalletID,
			amount:         req.Amount,
			description:    req.Description,
			txType:         domain.TxTypeContribution,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	after := rec.BalanceAfter.Decimal
	m.notify(ctx, p, domain.NotifContribution, "Contribution received",
		fmt.Sprintf("%s %s was added to %q.", domain.DefaultCurrency, req.Amount.StringFixed(2), p.Name),
		map[string]interface{}{"amount": req.Amount.StringFixed(2), "balance": after.StringFixed(2), "reference": rec.Reference})
	m.notifyGoalReached(ctx, p, before, after)
	return rec, nil
}

// contribute moves money from a source wallet into the pot. Checks run before
// anything is written, so a rejected contribution leaves no record. The
// returned record is non-nil once one was appended, even on error.
func (m *Manager) contribute(ctx context.Context, p *models.Pot, c contribution) (*models.PotTransaction, decimal.Decimal, error) {
	if p.Status == domain.PotStatusClosed {
		return nil, decimal.Zero, domain.Conflictf("pot %s is closed", p.ID)
	}
	if p.AdminLocked {
		return nil, decimal.Zero, domain.Conflictf("pot %s is locked by an administrator", p.ID)
	}
	if c.sourceWalletID == p.WalletID {
		return nil, decimal.Zero, domain.Validationf("cannot contribute from the pot's own wallet")
	}
	src, err := m.ledger.Wallet(ctx, c.sourceWalletID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if src.Type == domain.WalletTypePot {
		return nil, decimal.Zero, domain.Validationf("cannot contribute from a pot wallet")
	}
	if err := ledger.CheckDebit(src, c.amount); err != nil {
		return nil, decimal.Zero, err
	}
	potWallet, err := m.ledger.Wallet(ctx, p.WalletID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("pot %s wallet: %w", p.ID, err)
	}
	if err := ledger.CheckCredit(potWallet); err != nil {
		return nil, decimal.Zero, err
	}

	prefix := refContribution
	if c.txType == domain.TxTypeAutoDeposit {
		prefix = refAutoDeposit
	}
	rec := &models.PotTransaction{
		ID:                  idgen.NewID(),
		PotID:               p.ID,
		Type:                c.txType,
		Amount:              c.amount,
		Status:              domain.TxStatusPending,
		Reference:           idgen.Reference(prefix),
		SourceWalletID:      c.sourceWalletID,
		DestinationWalletID: p.WalletID,
		Description:         c.description,
		CreatedAt:           m.clock(),
	}
	if err := m.txs.Append(ctx, rec); err != nil {
		return nil, decimal.Zero, fmt.Errorf("record contribution: %w", err)
	}

	res, err := m.ledger.ExecuteAtomic(ctx, ledger.Operation{
		Reference: rec.Reference,
		Debit:     ledger.Leg{WalletID: c.sourceWalletID, Amount: c.amount},
		Credits:   []ledger.Leg{{WalletID: p.WalletID, Amount: c.amount}},
	})
	if err != nil {
		m.failRecord(ctx, p, rec, err, c.retryCount)
		return rec, decimal.Zero, err
	}

	after := res.Balances[p.WalletID]
	m.completeRecord(ctx, p, rec, after)
	m.touch(ctx, p.ID)
	m.logger.Info("contribution completed",
		zap.String("pot_id", p.ID),
		zap.String("reference", rec.Reference),
		zap.String("amount", c.amount.StringFixed(2)),
		zap.String("balance_after", after.StringFixed(2)))
	return rec, after.Sub(c.amount), nil
}

func (m *Manager) Withdraw(ctx context.Context, req WithdrawRequest) (res *WithdrawResult, err error) {
	defer observe("withdraw", time.Now(), &err)

	var p *models.Pot
	err = m.withPotLock(ctx, req.PotID, func() error {
		if p, err = m.pots.GetByID(ctx, req.PotID); err != nil {
			return err
		}
		res, err = m.withdraw(ctx, p, req, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.notifyWithdrawal(ctx, p, res)
	return res, nil
}

// withdraw moves money out of the pot. With bypassLocks the time and goal
// rules never block, but a time lock still carries its penalty.
func (m *Manager) withdraw(ctx context.Context, p *models.Pot, req WithdrawRequest, bypassLocks bool) (*WithdrawResult, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, domain.Validationf("amount must be positive with at most two decimal places")
	}
	if req.DestinationWalletID == "" {
		return nil, domain.Validationf("destination wallet is required")
	}
	if req.DestinationWalletID == p.WalletID {
		return nil, domain.Validationf("cannot withdraw into the pot's own wallet")
	}

	potWallet, err := m.ledger.Wallet(ctx, p.WalletID)
	if err != nil {
		return nil, fmt.Errorf("pot %s wallet: %w", p.ID, err)
	}
	e := Evaluate(p, potWallet.Balance, m.clock(), m.Settings().EarlyWithdrawalPenaltyPct)

	penalized := false
	switch {
	case e.LockStatus == domain.EligibilityAdminLocked || e.LockStatus == domain.EligibilityClosed:
		return nil, domain.Conflictf("%s", e.Reason)
	case e.CanWithdraw:
	case bypassLocks:
		penalized = e.CanWithdrawWithPenalty
	case !req.ForceWithPenalty:
		return nil, domain.Lockedf("%s", e.Reason)
	case !e.CanWithdrawWithPenalty:
		return nil, domain.Lockedf("early withdrawal not available for this pot type")
	default:
		penalized = true
	}

	if req.Amount.GreaterThan(potWallet.Balance) {
		return nil, domain.InsufficientFundsf("pot balance %s is below %s", potWallet.Balance.StringFixed(2), req.Amount.StringFixed(2))
	}
	dest, err := m.ledger.Wallet(ctx, req.DestinationWalletID)
	if err != nil {
		return nil, err
	}
	if dest.Type == domain.WalletTypePot {
		return nil, domain.Validationf("cannot withdraw into a pot wallet")
	}
	if err := ledger.CheckCredit(dest); err != nil {
		return nil, err
	}

	penalty, actual := decimal.Zero, req.Amount
	if penalized {
		penalty, actual = Penalty(req.Amount, *e.PenaltyPercent)
	}
	credits := []ledger.Leg{{WalletID: req.DestinationWalletID, Amount: actual}}
	if penalty.IsPositive() && m.penaltyWalletID != "" {
		credits = append(credits, ledger.Leg{WalletID: m.penaltyWalletID, Amount: penalty})
	}

	rec := &models.PotTransaction{
		ID:                  idgen.NewID(),
		PotID:               p.ID,
		Type:                domain.TxTypeWithdrawal,
		Amount:              req.Amount,
		Status:              domain.TxStatusPending,
		Reference:           idgen.Reference(refWithdrawal),
		SourceWalletID:      p.WalletID,
		DestinationWalletID: req.DestinationWalletID,
		Description:         req.Description,
		CreatedAt:           m.clock(),
	}
	if err := m.txs.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	out, err := m.ledger.ExecuteAtomic(ctx, ledger.Operation{
		Reference: rec.Reference,
		Debit:     ledger.Leg{WalletID: p.WalletID, Amount: req.Amount},
		Credits:   credits,
	})
	if err != nil {
		m.failRecord(ctx, p, rec, err, 0)
		return nil, err
	}

	after := out.Balances[p.WalletID]
	m.completeRecord(ctx, p, rec, after)
	res := &WithdrawResult{
		Withdrawal:    rec,
		PenaltyAmount: penalty,
		ActualAmount:  actual,
		BalanceAfter:  after,
	}

	if penalty.IsPositive() {
		pen := &models.PotTransaction{
			ID:                  idgen.NewID(),
			PotID:               p.ID,
			Type:                domain.TxTypePenalty,
			Amount:              penalty,
			BalanceAfter:        decimal.NewNullDecimal(after),
			Status:              domain.TxStatusCompleted,
			Reference:           idgen.Reference(refPenalty),
			SourceWalletID:      p.WalletID,
			DestinationWalletID: m.penaltyWalletID,
			Description:         fmt.Sprintf("Early withdrawal penalty (%s%%) for %s", e.PenaltyPercent.String(), rec.Reference),
			CreatedAt:           m.clock(),
		}
		if err := m.txs.Append(ctx, pen); err != nil {
			m.recordFailure(ctx, p, pen, err)
		} else {
			res.Penalty = pen
		}
	}

	m.touch(ctx, p.ID)
	m.logger.Info("withdrawal completed",
		zap.String("pot_id", p.ID),
		zap.String("reference", rec.Reference),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("penalty", penalty.StringFixed(2)),
		zap.String("balance_after", after.StringFixed(2)))
	return res, nil
}

// ClosePot drains the pot into destinationWalletID and closes it together
// with its wallet. The destination is only needed when the balance is positive.
func (m *Manager) ClosePot(ctx context.Context, potID, destinationWalletID string) (res *CloseResult, err error) {
	defer observe("close", time.Now(), &err)

	var p *models.Pot
	res = &CloseResult{}
	err = m.withPotLock(ctx, potID, func() error {
		if p, err = m.pots.GetByID(ctx, potID); err != nil {
			return err
		}
		if p.Status == domain.PotStatusClosed {
			return domain.Conflictf("pot %s is already closed", p.ID)
		}
		if p.AdminLocked {
			return domain.Conflictf("pot %s is locked by an administrator", p.ID)
		}

		w, err := m.ledger.Wallet(ctx, p.WalletID)
		if err != nil {
			return fmt.Errorf("pot %s wallet: %w", p.ID, err)
		}
		if w.Balance.IsPositive() {
			res.Withdrawal, err = m.withdraw(ctx, p, WithdrawRequest{
				PotID:               p.ID,
				DestinationWalletID: destinationWalletID,
				Amount:              w.Balance,
				ForceWithPenalty:    true,
				Description:         "Pot closure",
			}, true)
			if err != nil {
				return err
			}
		}
		return m.closeRecords(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	res.Pot = PotView{Pot: *p, Balance: decimal.Zero}
	if res.Withdrawal != nil {
		res.Pot.Balance = res.Withdrawal.BalanceAfter
		m.notifyWithdrawal(ctx, p, res.Withdrawal)
	}
	m.notify(ctx, p, domain.NotifPotClosed, "Pot closed",
		fmt.Sprintf("Your pot %q has been closed.", p.Name), nil)
	return res, nil
}

// closeRecords closes the wallet first, then the pot. A pot update failure
// reopens the wallet.
func (m *Manager) closeRecords(ctx context.Context, p *models.Pot) error {
	if err := m.ledger.SetWalletStatus(ctx, p.WalletID, domain.WalletStatusClosed); err != nil {
		return fmt.Errorf("close pot wallet: %w", err)
	}
	now := m.clock()
	err := m.pots.Update(ctx, p.ID, map[string]interface{}{
		"status":                 domain.PotStatusClosed,
		"lock_status":            domain.LockStatusUnlocked,
		"auto_deposit_enabled":   false,
		"next_auto_deposit_date": nil,
		"closed_at":              now,
		"updated_at":             now,
	})
	if err == nil {
		p.Status = domain.PotStatusClosed
		p.LockStatus = domain.LockStatusUnlocked
		p.AutoDepositEnabled = false
		p.NextAutoDepositDate = nil
		p.ClosedAt = &now
		p.UpdatedAt = now
		m.logger.Info("pot closed", zap.String("pot_id", p.ID))
		return nil
	}

	m.logger.Warn("pot close failed, reopening wallet", zap.String("pot_id", p.ID), zap.Error(err))
	if rerr := m.ledger.SetWalletStatus(context.WithoutCancel(ctx), p.WalletID, domain.WalletStatusActive); rerr != nil {
		m.alerter.Alert(ctx, alert.Alert{
			Kind:      alert.KindCompensationFailure,
			Reference: "close:" + p.ID,
			WalletID:  p.WalletID,
			PotID:     p.ID,
			Amount:    decimal.Zero,
			Message:   "pot wallet left CLOSED for an open pot: " + rerr.Error(),
		})
		return &domain.CompensationError{Reference: "close:" + p.ID, WalletID: p.WalletID, Cause: err, Undo: rerr}
	}
	return fmt.Errorf("close pot: %w", err)
}

func (m *Manager) UpdatePot(ctx context.Context, req UpdatePotRequest) (view *PotView, err error) {
	defer observe("update", time.Now(), &err)

	err = m.withPotLock(ctx, req.PotID, func() error {
		p, err := m.pots.GetByID(ctx, req.PotID)
		if err != nil {
			return err
		}
		if p.Status == domain.PotStatusClosed {
			return domain.Conflictf("pot %s is closed", p.ID)
		}
		fields, err := m.updateFields(p, req)
		if err != nil {
			return err
		}
		if src, ok := autoDepositSource(p, req); ok {
			if err := m.checkFundingWallet(ctx, src); err != nil {
				return err
			}
		}
		if err := m.pots.Update(ctx, p.ID, fields); err != nil {
			return fmt.Errorf("update pot: %w", err)
		}
		if p, err = m.pots.GetByID(ctx, p.ID); err != nil {
			return err
		}
		view, err = m.view(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (m *Manager) updateFields(p *models.Pot, req UpdatePotRequest) (map[string]interface{}, error) {
	s := m.Settings()
	now := m.clock()
	fields := map[string]interface{}{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 100 {
			return nil, domain.Validationf("name must be 1 to 100 characters")
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Icon != nil {
		fields["icon"] = *req.Icon
	}
	if req.Color != nil {
		fields["color"] = *req.Color
	}
	if req.GoalAmount != nil {
		if !req.GoalAmount.IsPositive() {
			return nil, domain.Validationf("goal amount must be positive")
		}
		fields["goal_amount"] = decimal.NewNullDecimal(*req.GoalAmount)
	}

	enabled := p.AutoDepositEnabled
	amount := p.AutoDepositAmount.Decimal
	frequency := p.AutoDepositFrequency
	source := p.AutoDepositSourceWalletID
	touched := false
	if req.AutoDepositEnabled != nil {
		enabled, touched = *req.AutoDepositEnabled, true
		fields["auto_deposit_enabled"] = enabled
	}
	if req.AutoDepositAmount != nil {
		amount, touched = *req.AutoDepositAmount, true
		fields["auto_deposit_amount"] = decimal.NewNullDecimal(amount)
	}
	if req.AutoDepositFrequency != nil {
		frequency, touched = *req.AutoDepositFrequency, true
		fields["auto_deposit_frequency"] = frequency
	}
	if req.AutoDepositSourceWalletID != nil {
		source, touched = *req.AutoDepositSourceWalletID, true
		fields["auto_deposit_source_wallet_id"] = source
	}
	if touched {
		switch {
		case !enabled:
			fields["next_auto_deposit_date"] = nil
		case !p.AutoDepositEnabled || frequency != p.AutoDepositFrequency:
			if err := validateAutoDeposit(amount, frequency, source, s); err != nil {
				return nil, err
			}
			next, err := NextAutoDepositDate(frequency, now)
			if err != nil {
				return nil, err
			}
			fields["next_auto_deposit_date"] = next
		default:
			if err := validateAutoDeposit(amount, frequency, source, s); err != nil {
				return nil, err
			}
		}
	}

	if len(fields) == 0 {
		return nil, domain.Validationf("no fields to update")
	}
	fields["updated_at"] = now
	return fields, nil
}

// autoDepositSource reports the source wallet an update leaves enabled, when
// the update touches the source or the enabled flag.
func autoDepositSource(p *models.Pot, req UpdatePotRequest) (string, bool) {
	if req.AutoDepositSourceWalletID == nil && req.AutoDepositEnabled == nil {
		return "", false
	}
	enabled := p.AutoDepositEnabled
	if req.AutoDepositEnabled != nil {
		enabled = *req.AutoDepositEnabled
	}
	source := p.AutoDepositSourceWalletID
	if req.AutoDepositSourceWalletID != nil {
		source = *req.AutoDepositSourceWalletID
	}
	return source, enabled
}

func (m *Manager) touch(ctx context.Context, potID string) {
	if err := m.pots.Update(ctx, potID, map[string]interface{}{"updated_at": m.clock()}); err != nil {
		m.logger.Warn("touch pot", zap.String("pot_id", potID), zap.Error(err))
	}
}

func (m *Manager) completeRecord(ctx context.Context, p *models.Pot, rec *models.PotTransaction, balanceAfter decimal.Decimal) {
	rec.Status = domain.TxStatusCompleted
	rec.BalanceAfter = decimal.NewNullDecimal(balanceAfter)
	if err := m.txs.Complete(ctx, rec.ID, balanceAfter); err != nil {
		m.recordFailure(ctx, p, rec, err)
	}
}

// recordFailure reports money that moved without a matching COMPLETED record.
func (m *Manager) recordFailure(ctx context.Context, p *models.Pot, rec *models.PotTransaction, err error) {
	m.logger.Error("money moved but transaction record not settled",
		zap.String("pot_id", p.ID),
		zap.String("reference", rec.Reference),
		zap.String("type", rec.Type),
		zap.Error(err))
	m.alerter.Alert(ctx, alert.Alert{
		Kind:      alert.KindRecordFailure,
		Reference: rec.Reference,
		WalletID:  p.WalletID,
		PotID:     p.ID,
		Amount:    rec.Amount,
		Message:   "transaction record not settled: " + err.Error(),
	})
}

func (m *Manager) failRecord(ctx context.Context, p *models.Pot, rec *models.PotTransaction, cause error, retryCount int) {
	rec.Status = domain.TxStatusFailed
	rec.FailureReason = cause.Error()
	rec.RetryCount = retryCount
	if err := m.txs.Fail(context.WithoutCancel(ctx), rec.ID, cause.Error(), retryCount); err != nil {
		m.logger.Warn("mark transaction failed",
			zap.String("pot_id", p.ID),
			zap.String("reference", rec.Reference),
			zap.Error(err))
	}
}

func (m *Manager) notify(ctx context.Context, p *models.Pot, typ, title, message string, meta map[string]interface{}) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Notify(ctx, service.Notification{
		PotID:    p.ID,
		UserID:   p.UserID,
		Type:     typ,
		Title:    title,
		Message:  message,
		Metadata: meta,
	})
	if err != nil {
		m.logger.Warn("notify", zap.String("pot_id", p.ID), zap.String("type", typ), zap.Error(err))
	}
}

func (m *Manager) notifyGoalReached(ctx context.Context, p *models.Pot, before, after decimal.Decimal) {
	if !p.GoalAmount.Valid {
		return
	}
	goal := p.GoalAmount.Decimal
	if before.LessThan(goal) && after.GreaterThanOrEqual(goal) {
		m.notify(ctx, p, domain.NotifGoalReached, "Goal reached",
			fmt.Sprintf("Your pot %q reached its goal of %s %s.", p.Name, domain.DefaultCurrency, goal.StringFixed(2)),
			map[string]interface{}{"goal_amount": goal.StringFixed(2), "balance": after.StringFixed(2)})
	}
}

func (m *Manager) notifyWithdrawal(ctx context.Context, p *models.Pot, res *WithdrawResult) {
	m.notify(ctx, p, domain.NotifWithdrawal, "Withdrawal completed",
		fmt.Sprintf("%s %s was withdrawn from %q.", domain.DefaultCurrency, res.ActualAmount.StringFixed(2), p.Name),
		map[string]interface{}{
			"amount":    res.Withdrawal.Amount.StringFixed(2),
			"received":  res.ActualAmount.StringFixed(2),
			"balance":   res.BalanceAfter.StringFixed(2),
			"reference": res.Withdrawal.Reference,
		})
	if res.PenaltyAmount.IsPositive() {
		m.notify(ctx, p, domain.NotifPenaltyApplied, "Early withdrawal penalty",
			fmt.Sprintf("A penalty of %s %s was applied for withdrawing before the lock ended.", domain.DefaultCurrency, res.PenaltyAmount.StringFixed(2)),
			map[string]interface{}{"penalty": res.PenaltyAmount.StringFixed(2), "reference": res.Withdrawal.Reference})
	}
}
