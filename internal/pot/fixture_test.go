package pot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"potledger/internal/database/dbtest"
	"potledger/internal/domain"
	"potledger/internal/ledger"
	"potledger/internal/ledger/ledgertest"
	"potledger/internal/lock"
	"potledger/internal/models"
	"potledger/internal/repository"
	"potledger/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	errDown = errors.New("store unavailable")
	base    = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// flakyPots fails selected writes of a real pot repository.
type flakyPots struct {
	*repository.PotRepository
	createErr  error
	failUpdate func(fields map[string]interface{}) error
}

func (f *flakyPots) Create(ctx context.Context, p *models.Pot) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.PotRepository.Create(ctx, p)
}

func (f *flakyPots) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if f.failUpdate != nil {
		if err := f.failUpdate(fields); err != nil {
			return err
		}
	}
	return f.PotRepository.Update(ctx, id, fields)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []service.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n service.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	clock    *fakeClock
	store    *ledgertest.MemoryStore
	outbox   *ledgertest.MemoryOutbox
	alerts   *ledgertest.AlertRecorder
	notes    *recordingNotifier
	pots     *flakyPots
	txs      *repository.PotTransactionRepository
	settings *repository.SettingRepository
	mgr      *Manager
	admin    *Admin
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		clock:    &fakeClock{t: base},
		store:    ledgertest.NewMemoryStore(),
		outbox:   ledgertest.NewMemoryOutbox(),
		alerts:   &ledgertest.AlertRecorder{},
		notes:    &recordingNotifier{},
		pots:     &flakyPots{PotRepository: repository.NewPotRepository(db)},
		txs:      repository.NewPotTransactionRepository(db),
		settings: repository.NewSettingRepository(db),
	}
	sagaOpts := ledger.DefaultSagaOptions()
	sagaOpts.CompensationBackoff = 0
	logger := zaptest.NewLogger(t)
	saga := ledger.NewSaga(f.store, f.outbox, f.alerts, sagaOpts, logger)

	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.mgr = NewManager(Deps{
		Pots:         f.pots,
		Transactions: f.txs,
		Ledger:       saga,
		Notifier:     f.notes,
		Locker:       lock.NewLocal(),
		Alerter:      f.alerts,
		Logger:       logger,
	}, DefaultSettings(), opts...)
	f.admin = NewAdmin(f.mgr, f.settings)

	f.store.Put(models.Wallet{ID: "main", UserID: "u-1", Type: domain.WalletTypeMain, Balance: dec(5000)})
	return f
}

func (f *fixture) createPot(t *testing.T, req CreatePotRequest) *PotView {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "u-1"
	}
	if req.Name == "" {
		req.Name = "Holiday"
	}
	v, err := f.mgr.CreatePot(context.Background(), req)
	require.NoError(t, err)
	return v
}

func (f *fixture) timePot(t *testing.T, days int) *PotView {
	t.Helper()
	return f.createPot(t, CreatePotRequest{LockType: domain.LockTypeTimeBased, LockPeriodDays: intPtr(days)})
}

func (f *fixture) goalPot(t *testing.T, goal int64) *PotView {
	t.Helper()
	return f.createPot(t, CreatePotRequest{LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(goal)})
}

func (f *fixture) fund(t *testing.T, potID string, amount int64) {
	t.Helper()
	_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: potID, SourceWalletID: "main", Amount: dec(amount)})
	require.NoError(t, err)
}

func (f *fixture) transactions(t *testing.T, potID, txType string) []models.PotTransaction {
	t.Helper()
	list, _, err := f.txs.ListByPot(context.Background(), potID, txType, 1, 100)
	require.NoError(t, err)
	return list
}

func (f *fixture) pot(t *testing.T, id string) *models.Pot {
	t.Helper()
	p, err := f.pots.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
