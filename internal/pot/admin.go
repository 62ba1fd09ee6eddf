package pot

import (
	"context"
	"fmt"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"
	"potledger/internal/repository"

	"go.uber.org/zap"
)

// Admin holds operator overrides. They change the state the evaluator reads
// and never touch wallets or transactions.
type Admin struct {
	m     *Manager
	store SettingsStore
}

func NewAdmin(m *Manager, store SettingsStore) *Admin {
	return &Admin{m: m, store: store}
}

// ToggleLock sets or clears the admin lock in a single update.
func (a *Admin) ToggleLock(ctx context.Context, potID, adminID string, locked bool, reason string) (view *PotView, err error) {
	defer observe("admin_lock", time.Now(), &err)

	if adminID == "" {
		return nil, domain.Validationf("admin id is required")
	}
	var fields map[string]interface{}
	now := a.m.clock()
	if locked {
		fields = map[string]interface{}{
			"admin_locked":      true,
			"admin_locked_by":   adminID,
			"admin_locked_at":   now,
			"admin_lock_reason": reason,
			"updated_at":        now,
		}
	} else {
		fields = clearedAdminLock(now)
	}

	err = a.m.withPotLock(ctx, potID, func() error {
		p, err := a.m.pots.GetByID(ctx, potID)
		if err != nil {
			return err
		}
		if p.Status == domain.PotStatusClosed {
			return domain.Conflictf("pot %s is closed", p.ID)
		}
		if err := a.m.pots.Update(ctx, potID, fields); err != nil {
			return fmt.Errorf("toggle admin lock: %w", err)
		}
		if p, err = a.m.pots.GetByID(ctx, potID); err != nil {
			return err
		}
		view, err = a.m.view(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.m.logger.Info("admin lock toggled",
		zap.String("pot_id", potID),
		zap.String("admin_id", adminID),
		zap.Bool("locked", locked),
		zap.String("reason", reason))
	if locked {
		msg := "Your pot has been locked by an administrator."
		if reason != "" {
			msg = "Your pot has been locked by an administrator: " + reason
		}
		a.m.notify(ctx, &view.Pot, domain.NotifAdminLocked, "Pot locked", msg, map[string]interface{}{"reason": reason})
	} else {
		a.m.notify(ctx, &view.Pot, domain.NotifAdminUnlocked, "Pot unlocked", "The administrator lock on your pot was lifted.", nil)
	}
	return view, nil
}

// ForceUnlock opens the pot for withdrawal whatever its lock type, lock end
// date or goal progress.
func (a *Admin) ForceUnlock(ctx context.Context, potID, adminID string) (view *PotView, err error) {
	defer observe("force_unlock", time.Now(), &err)

	if adminID == "" {
		return nil, domain.Validationf("admin id is required")
	}
	fields := clearedAdminLock(a.m.clock())
	fields["lock_status"] = domain.LockStatusUnlocked
	fields["withdrawal_enabled"] = true

	err = a.m.withPotLock(ctx, potID, func() error {
		if err := a.m.pots.Update(ctx, potID, fields); err != nil {
			return err
		}
		p, err := a.m.pots.GetByID(ctx, potID)
		if err != nil {
			return err
		}
		view, err = a.m.view(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.m.logger.Info("pot force unlocked", zap.String("pot_id", potID), zap.String("admin_id", adminID))
	a.m.notify(ctx, &view.Pot, domain.NotifForceUnlocked, "Pot unlocked",
		"An administrator unlocked your pot. Funds can be withdrawn without penalty.", nil)
	return view, nil
}

func clearedAdminLock(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"admin_locked":      false,
		"admin_locked_by":   "",
		"admin_locked_at":   nil,
		"admin_lock_reason": "",
		"updated_at":        now,
	}
}

func (a *Admin) ListPots(ctx context.Context, f repository.PotFilter, page, limit int) ([]PotView, int64, error) {
	return a.m.listViews(ctx, f, page, limit)
}

// TransactionByReference resolves a reference quoted by an alert or outbox
// entry to its pot transaction.
func (a *Admin) TransactionByReference(ctx context.Context, reference string) (*models.PotTransaction, error) {
	if reference == "" {
		return nil, domain.Validationf("reference is required")
	}
	return a.m.txs.GetByReference(ctx, reference)
}

func (a *Admin) Settings() Settings {
	return a.m.Settings()
}

// UpdateSettings validates the merged settings, persists them and only then
// makes them visible to the manager.
func (a *Admin) UpdateSettings(ctx context.Context, patch SettingsPatch, adminID string) (Settings, error) {
	next := a.m.Settings().Apply(patch)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := a.store.SetMany(ctx, next.Values(), adminID); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.m.setSettings(next)
	a.m.logger.Info("pot settings updated", zap.String("admin_id", adminID))
	return next, nil
}
