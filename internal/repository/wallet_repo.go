package repository

import (
	"context"
	"sort"
	"time"

	"potledger/internal/domain"
	"potledger/internal/ledger"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository is the gorm-backed wallet ledger. It satisfies both
// ledger.Ledger (multi-row transactions) and ledger.RowStore.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Wallet(ctx context.Context, id string) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound(err, "wallet", id)
	}
	return &w, nil
}

func (r *WalletRepository) ListByUserID(ctx context.Context, userID string) ([]models.Wallet, error) {
	var list []models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&list).Error
	return list, err
}

func (r *WalletRepository) CreateWallet(ctx context.Context, w *models.Wallet) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WalletRepository) DeleteWallet(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Wallet{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("wallet %s not found", id)
	}
	return nil
}

func (r *WalletRepository) SetWalletStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":  status,
		"version": gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("wallet %s not found", id)
	}
	return nil
}

func (r *WalletRepository) CompareAndSwapBalance(ctx context.Context, id string, version int64, balance decimal.Decimal) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := writeBalance(tx, id, version, balance); err != nil {
			return err
		}
		var w models.Wallet
		if err := tx.Where("id = ?", id).First(&w).Error; err != nil {
			return notFound(err, "wallet", id)
		}
		out = &w
		return nil
	})
	return out, err
}

// ExecuteAtomic applies the whole operation in one transaction. Rows are
// locked in id order so concurrent operations cannot deadlock each other.
func (r *WalletRepository) ExecuteAtomic(ctx context.Context, op ledger.Operation) (*ledger.Result, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	ids := []string{op.Debit.WalletID}
	for _, c := range op.Credits {
		ids = append(ids, c.WalletID)
	}
	sort.Strings(ids)

	res := &ledger.Result{Reference: op.Reference, Balances: make(map[string]decimal.Decimal, len(ids))}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := make(map[string]models.Wallet, len(ids))
		for _, id := range ids {
			var w models.Wallet
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&w).Error; err != nil {
				return notFound(err, "wallet", id)
			}
			wallets[id] = w
		}

		debit := wallets[op.Debit.WalletID]
		if err := ledger.CheckDebit(&debit, op.Debit.Amount); err != nil {
			return err
		}
		for _, c := range op.Credits {
			w := wallets[c.WalletID]
			if err := ledger.CheckCredit(&w); err != nil {
				return err
			}
		}

		next := debit.Balance.Sub(op.Debit.Amount)
		if err := writeBalance(tx, debit.ID, debit.Version, next); err != nil {
			return err
		}
		res.Balances[debit.ID] = next
		for _, c := range op.Credits {
			w := wallets[c.WalletID]
			next := w.Balance.Add(c.Amount)
			if err := writeBalance(tx, w.ID, w.Version, next); err != nil {
				return err
			}
			res.Balances[w.ID] = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func writeBalance(tx *gorm.DB, id string, version int64, balance decimal.Decimal) error {
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance":    balance,
			"version":    version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionMismatch
	}
	return nil
}
