package repository

import (
	"context"
	"testing"

	"potledger/internal/database/dbtest"
	"potledger/internal/domain"
	"potledger/internal/ledger"
	"potledger/internal/ledger/ledgertest"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seedWallet(t *testing.T, r *WalletRepository, id string, balance int64, status string) {
	t.Helper()
	require.NoError(t, r.CreateWallet(context.Background(), &models.Wallet{
		ID:       id,
		UserID:   "u-1",
		Type:     domain.WalletTypeMain,
		Balance:  decimal.NewFromInt(balance),
		Currency: domain.DefaultCurrency,
		Status:   status,
	}))
}

func balanceOf(t *testing.T, r *WalletRepository, id string) decimal.Decimal {
	t.Helper()
	w, err := r.Wallet(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func TestWalletExecuteAtomic(t *testing.T) {
	r := NewWalletRepository(dbtest.New(t))
	seedWallet(t, r, "src", 500, domain.WalletStatusActive)
	seedWallet(t, r, "pot", 0, domain.WalletStatusActive)

	res, err := r.ExecuteAtomic(context.Background(), ledger.Operation{
		Reference: "CTB_1",
		Debit:     ledger.Leg{WalletID: "src", Amount: decimal.NewFromInt(200)},
		Credits:   []ledger.Leg{{WalletID: "pot", Amount: decimal.NewFromInt(200)}},
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(300).Equal(res.Balances["src"]))
	assert.True(t, decimal.NewFromInt(200).Equal(res.Balances["pot"]))
	assert.True(t, decimal.NewFromInt(300).Equal(balanceOf(t, r, "src")))
	assert.True(t, decimal.NewFromInt(200).Equal(balanceOf(t, r, "pot")))

	w, err := r.Wallet(context.Background(), "src")
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Version)
}

func TestWalletExecuteAtomicRollsBack(t *testing.T) {
	r := NewWalletRepository(dbtest.New(t))
	seedWallet(t, r, "src", 500, domain.WalletStatusActive)
	seedWallet(t, r, "closed", 0, domain.WalletStatusClosed)

	_, err := r.ExecuteAtomic(context.Background(), ledger.Operation{
		Reference: "CTB_1",
		Debit:     ledger.Leg{WalletID: "src", Amount: decimal.NewFromInt(100)},
		Credits:   []ledger.Leg{{WalletID: "closed", Amount: decimal.NewFromInt(100)}},
	})
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	assert.True(t, decimal.NewFromInt(500).Equal(balanceOf(t, r, "src")))

	_, err = r.ExecuteAtomic(context.Background(), ledger.Operation{
		Reference: "CTB_2",
		Debit:     ledger.Leg{WalletID: "src", Amount: decimal.NewFromInt(600)},
		Credits:   []ledger.Leg{{WalletID: "closed", Amount: decimal.NewFromInt(600)}},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = r.ExecuteAtomic(context.Background(), ledger.Operation{
		Reference: "CTB_3",
		Debit:     ledger.Leg{WalletID: "src", Amount: decimal.NewFromInt(1)},
		Credits:   []ledger.Leg{{WalletID: "missing", Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, decimal.NewFromInt(500).Equal(balanceOf(t, r, "src")))
}

func TestWalletCompareAndSwapBalance(t *testing.T) {
	r := NewWalletRepository(dbtest.New(t))
	seedWallet(t, r, "w", 100, domain.WalletStatusActive)

	w, err := r.CompareAndSwapBalance(context.Background(), "w", 0, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Version)
	assert.True(t, decimal.NewFromInt(150).Equal(w.Balance))

	_, err = r.CompareAndSwapBalance(context.Background(), "w", 0, decimal.NewFromInt(999))
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	assert.True(t, decimal.NewFromInt(150).Equal(balanceOf(t, r, "w")))
}

func TestWalletStatusAndDelete(t *testing.T) {
	r := NewWalletRepository(dbtest.New(t))
	seedWallet(t, r, "w", 0, domain.WalletStatusActive)
	ctx := context.Background()

	require.NoError(t, r.SetWalletStatus(ctx, "w", domain.WalletStatusClosed))
	w, err := r.Wallet(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusClosed, w.Status)

	require.NoError(t, r.DeleteWallet(ctx, "w"))
	_, err = r.Wallet(ctx, "w")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.DeleteWallet(ctx, "w"), domain.ErrNotFound)
	assert.ErrorIs(t, r.SetWalletStatus(ctx, "w", domain.WalletStatusActive), domain.ErrNotFound)
}

func TestWalletRepositoryBacksSaga(t *testing.T) {
	db := dbtest.New(t)
	r := NewWalletRepository(db)
	seedWallet(t, r, "src", 500, domain.WalletStatusActive)
	seedWallet(t, r, "pot", 0, domain.WalletStatusActive)
	saga := ledger.NewSaga(r, NewCompensationRepository(db), &ledgertest.AlertRecorder{}, ledger.DefaultSagaOptions(), zaptest.NewLogger(t))

	_, err := saga.ExecuteAtomic(context.Background(), ledger.Operation{
		Reference: "CTB_1",
		Debit:     ledger.Leg{WalletID: "src", Amount: decimal.NewFromInt(125)},
		Credits:   []ledger.Leg{{WalletID: "pot", Amount: decimal.NewFromInt(125)}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(375).Equal(balanceOf(t, r, "src")))
	assert.True(t, decimal.NewFromInt(125).Equal(balanceOf(t, r, "pot")))
}
