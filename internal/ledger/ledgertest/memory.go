// Package ledgertest provides in-memory ledger collaborators with failure
// injection for tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"potledger/internal/alert"
	"potledger/internal/domain"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
)

// Operations that can be failed with FailNext.
const (
	OpGet    = "get"
	OpCAS    = "cas"
	OpCreate = "create"
	OpDelete = "delete"
	OpStatus = "status"
)

type failure struct {
	err   error
	skip  int
	times int // negative means forever
}

// MemoryStore is a ledger.RowStore held in memory.
type MemoryStore struct {
	mu       sync.Mutex
	wallets  map[string]models.Wallet
	failures map[string]*failure
	writes   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[string]models.Wallet),
		failures: make(map[string]*failure),
	}
}

// Put seeds or replaces a wallet. Missing status and currency get defaults.
func (m *MemoryStore) Put(w models.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.Status == "" {
		w.Status = domain.WalletStatusActive
	}
	if w.Currency == "" {
		w.Currency = domain.DefaultCurrency
	}
	m.wallets[w.ID] = w
}

// FailNext makes the next times calls of op on walletID return err.
// A negative times fails forever. A walletID of "*" matches any wallet.
func (m *MemoryStore) FailNext(op, walletID string, err error, times int) {
	m.FailAfter(op, walletID, 0, err, times)
}

// FailAfter lets skip calls of op on walletID through before failing.
func (m *MemoryStore) FailAfter(op, walletID string, skip int, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"/"+walletID] = &failure{err: err, skip: skip, times: times}
}

// Heal removes every injected failure.
func (m *MemoryStore) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]*failure)
}

func (m *MemoryStore) Balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].Balance
}

// Writes counts successful balance writes.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Count reports how many wallets exist.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wallets)
}

func (m *MemoryStore) Status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].Status
}

func (m *MemoryStore) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wallets[id]
	return ok
}

func (m *MemoryStore) injected(op, walletID string) error {
	key := op + "/" + walletID
	f, ok := m.failures[key]
	if !ok {
		key = op + "/*"
		if f, ok = m.failures[key]; !ok {
			return nil
		}
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(m.failures, key)
		}
	}
	return f.err
}

func (m *MemoryStore) Wallet(_ context.Context, id string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpGet, id); err != nil {
		return nil, err
	}
	w, ok := m.wallets[id]
	if !ok {
		return nil, domain.NotFoundf("wallet %s not found", id)
	}
	return &w, nil
}

func (m *MemoryStore) CreateWallet(_ context.Context, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreate, w.ID); err != nil {
		return err
	}
	if _, ok := m.wallets[w.ID]; ok {
		return domain.Conflictf("wallet %s already exists", w.ID)
	}
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	m.wallets[w.ID] = *w
	return nil
}

func (m *MemoryStore) DeleteWallet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpDelete, id); err != nil {
		return err
	}
	if _, ok := m.wallets[id]; !ok {
		return domain.NotFoundf("wallet %s not found", id)
	}
	delete(m.wallets, id)
	return nil
}

func (m *MemoryStore) SetWalletStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpStatus, id); err != nil {
		return err
	}
	w, ok := m.wallets[id]
	if !ok {
		return domain.NotFoundf("wallet %s not found", id)
	}
	w.Status = status
	w.Version++
	m.wallets[id] = w
	return nil
}

func (m *MemoryStore) CompareAndSwapBalance(_ context.Context, id string, version int64, balance decimal.Decimal) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCAS, id); err != nil {
		return nil, err
	}
	w, ok := m.wallets[id]
	if !ok {
		return nil, domain.NotFoundf("wallet %s not found", id)
	}
	if w.Version != version {
		return nil, domain.ErrVersionMismatch
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now()
	m.wallets[id] = w
	m.writes++
	return &w, nil
}

// MemoryOutbox is a ledger.Outbox held in memory.
type MemoryOutbox struct {
	mu         sync.Mutex
	entries    map[string]models.Compensation
	EnqueueErr error
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{entries: make(map[string]models.Compensation)}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, c *models.Compensation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.EnqueueErr != nil {
		return o.EnqueueErr
	}
	o.entries[c.ID] = *c
	return nil
}

func (o *MemoryOutbox) Due(_ context.Context, now time.Time, limit int) ([]models.Compensation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var due []models.Compensation
	for _, c := range o.entries {
		if c.Status == domain.CompensationPending && !c.NextAttemptAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (o *MemoryOutbox) MarkResolved(_ context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.entries[id]
	if !ok {
		return domain.NotFoundf("compensation %s not found", id)
	}
	c.Status = domain.CompensationResolved
	c.ResolvedAt = &at
	o.entries[id] = c
	return nil
}

func (o *MemoryOutbox) MarkAttempt(_ context.Context, id string, attempts int, lastErr string, next time.Time, status string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.entries[id]
	if !ok {
		return domain.NotFoundf("compensation %s not found", id)
	}
	c.Attempts = attempts
	c.LastError = lastErr
	c.NextAttemptAt = next
	c.Status = status
	o.entries[id] = c
	return nil
}

func (o *MemoryOutbox) Entries() []models.Compensation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Compensation, 0, len(o.entries))
	for _, c := range o.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AlertRecorder is an alert.Alerter that keeps what it receives.
type AlertRecorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *AlertRecorder) Alert(_ context.Context, a alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *AlertRecorder) Alerts() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Alert(nil), r.alerts...)
}
