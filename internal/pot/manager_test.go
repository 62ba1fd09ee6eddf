package pot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"potledger/internal/alert"
	"potledger/internal/domain"
	"potledger/internal/ledger/ledgertest"
	"potledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestCreateTimeBasedPot(t *testing.T) {
	f := newFixture(t)

	v := f.timePot(t, 30)

	assert.Equal(t, domain.PotStatusActive, v.Status)
	assert.Equal(t, domain.LockStatusLocked, v.LockStatus)
	assert.True(t, v.WithdrawalEnabled)
	require.NotNil(t, v.LockEndDate)
	assert.True(t, base.AddDate(0, 0, 30).Equal(*v.LockEndDate))
	assert.True(t, v.Balance.IsZero())

	require.True(t, f.store.Has(v.WalletID))
	w, err := f.store.Wallet(context.Background(), v.WalletID)
	require.NoError(t, err)
	assert.Equal(t, domain.WalletTypePot, w.Type)
	assert.Equal(t, domain.WalletStatusActive, w.Status)
	assert.Equal(t, []string{domain.NotifPotCreated}, f.notes.Types())
}

func TestCreatePotUsesMaturityDate(t *testing.T) {
	f := newFixture(t)
	maturity := base.AddDate(0, 2, 0)

	v := f.createPot(t, CreatePotRequest{LockType: domain.LockTypeHybrid, MaturityDate: &maturity, GoalAmount: decPtr(2000)})

	require.NotNil(t, v.LockEndDate)
	assert.True(t, maturity.Equal(*v.LockEndDate))
	assert.True(t, v.GoalAmount.Valid)
}

func TestCreatePotValidation(t *testing.T) {
	past := base.Add(-day)
	soon := base.Add(time.Hour)
	cases := map[string]CreatePotRequest{
		"maturity too soon":    {LockType: domain.LockTypeTimeBased, MaturityDate: &soon},
		"bad lock type":        {LockType: "forever", LockPeriodDays: intPtr(30)},
		"time without period":  {LockType: domain.LockTypeTimeBased},
		"period too short":     {LockType: domain.LockTypeTimeBased, LockPeriodDays: intPtr(3)},
		"period too long":      {LockType: domain.LockTypeTimeBased, LockPeriodDays: intPtr(4000)},
		"maturity in the past": {LockType: domain.LockTypeTimeBased, MaturityDate: &past},
		"goal missing":         {LockType: domain.LockTypeGoalBased},
		"goal not positive":    {LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(0)},
		"hybrid without time":  {LockType: domain.LockTypeHybrid, GoalAmount: decPtr(100)},
		"auto-deposit frequency": {LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100),
			AutoDeposit: &AutoDepositConfig{Enabled: true, Amount: dec(10), Frequency: "hourly", SourceWalletID: "main"}},
		"auto-deposit source": {LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100),
			AutoDeposit: &AutoDepositConfig{Enabled: true, Amount: dec(10), Frequency: domain.FrequencyWeekly}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req.UserID = "u-1"
			req.Name = "Rainy day"
			_, err := f.mgr.CreatePot(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, 1, f.store.Count(), "no wallet created")
		})
	}
}

func TestCreatePotEnforcesMaxOpenPots(t *testing.T) {
	f := newFixture(t)
	s := DefaultSettings()
	s.MaxPotsPerUser = 2
	f.mgr.setSettings(s)

	first := f.goalPot(t, 100)
	f.goalPot(t, 100)
	_, err := f.mgr.CreatePot(context.Background(), CreatePotRequest{UserID: "u-1", Name: "Third", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100)})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	_, err = f.mgr.ClosePot(context.Background(), first.ID, "")
	require.NoError(t, err)
	f.goalPot(t, 100)
}

func TestCreatePotConcurrentRequestsRespectMaxOpenPots(t *testing.T) {
	f := newFixture(t)
	s := DefaultSettings()
	s.MaxPotsPerUser = 2
	f.mgr.setSettings(s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.CreatePot(context.Background(), CreatePotRequest{UserID: "u-1", Name: "Race", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			assert.ErrorIs(t, err, domain.ErrStateConflict)
			conflicts++
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, created)
	assert.Equal(t, 8, conflicts)
	open, err := f.pots.CountOpenByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, open)
	assert.Equal(t, 3, f.store.Count(), "main plus two pot wallets")
}

func TestCreatePotRejectsPotWalletAsAutoDepositSource(t *testing.T) {
	f := newFixture(t)
	other := f.goalPot(t, 100)

	_, err := f.mgr.CreatePot(context.Background(), CreatePotRequest{
		UserID: "u-1", Name: "Chained", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100),
		AutoDeposit: &AutoDepositConfig{Enabled: true, Amount: dec(10), Frequency: domain.FrequencyWeekly, SourceWalletID: other.WalletID},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.mgr.CreatePot(context.Background(), CreatePotRequest{
		UserID: "u-1", Name: "Orphan", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100),
		AutoDeposit: &AutoDepositConfig{Enabled: true, Amount: dec(10), Frequency: domain.FrequencyWeekly, SourceWalletID: "ghost"},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, f.store.Count(), "no wallet created")
}

func TestCreatePotRemovesWalletWhenPotInsertFails(t *testing.T) {
	f := newFixture(t)
	f.pots.createErr = errDown

	_, err := f.mgr.CreatePot(context.Background(), CreatePotRequest{UserID: "u-1", Name: "x", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100)})
	require.ErrorIs(t, err, errDown)
	assert.False(t, errors.Is(err, domain.ErrCompensationFailure))
	assert.Equal(t, 1, f.store.Count(), "orphaned wallet removed")
	assert.Empty(t, f.alerts.Alerts())
}

func TestCreatePotWalletCleanupFailureIsAlerted(t *testing.T) {
	f := newFixture(t)
	f.pots.createErr = errDown
	f.store.FailNext(ledgertest.OpDelete, "*", errors.New("delete rejected"), -1)

	_, err := f.mgr.CreatePot(context.Background(), CreatePotRequest{UserID: "u-1", Name: "x", LockType: domain.LockTypeGoalBased, GoalAmount: decPtr(100)})
	require.ErrorIs(t, err, domain.ErrCompensationFailure)

	alerts := f.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindCompensationFailure, alerts[0].Kind)
}

func TestContributeMovesExactAmount(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)

	rec, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(600), Description: "payday"})
	require.NoError(t, err)

	assert.True(t, dec(4400).Equal(f.store.Balance("main")))
	assert.True(t, dec(600).Equal(f.store.Balance(v.WalletID)))
	assert.Equal(t, domain.TxStatusCompleted, rec.Status)
	assert.True(t, strings.HasPrefix(rec.Reference, "CTB_"))

	list := f.transactions(t, v.ID, domain.TxTypeContribution)
	require.Len(t, list, 1)
	assert.Equal(t, domain.TxStatusCompleted, list[0].Status)
	assert.True(t, dec(600).Equal(list[0].BalanceAfter.Decimal))
	assert.Equal(t, "payday", list[0].Description)
	assert.Contains(t, f.notes.Types(), domain.NotifContribution)
}

func TestContributeInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.Put(models.Wallet{ID: "small", UserID: "u-1", Balance: dec(500)})
	v := f.timePot(t, 30)

	_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: v.ID, SourceWalletID: "small", Amount: dec(600)})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Zero(t, f.store.Writes())
	assert.True(t, dec(500).Equal(f.store.Balance("small")))
	assert.Empty(t, f.transactions(t, v.ID, ""))
}

func TestContributeRejections(t *testing.T) {
	f := newFixture(t)
	f.store.Put(models.Wallet{ID: "frozen", UserID: "u-1", Balance: dec(500), Status: domain.WalletStatusFrozen})
	v := f.timePot(t, 30)
	ctx := context.Background()

	_, err := f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: decimalFromString(t, "0.5")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(2_000_000)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: decimalFromString(t, "10.005")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "nope", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "frozen", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: v.WalletID, Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: "missing", SourceWalletID: "main", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.admin.ToggleLock(ctx, v.ID, "admin-1", true, "review")
	require.NoError(t, err)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	_, err = f.admin.ToggleLock(ctx, v.ID, "admin-1", false, "")
	require.NoError(t, err)
	_, err = f.mgr.ClosePot(ctx, v.ID, "")
	require.NoError(t, err)
	_, err = f.mgr.Contribute(ctx, ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	assert.Zero(t, f.store.Writes())
	assert.Empty(t, f.transactions(t, v.ID, ""))
}

func TestContributeCreditFailureReversesDebit(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.store.FailNext(ledgertest.OpCAS, v.WalletID, errDown, -1)

	_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(200)})
	require.ErrorIs(t, err, errDown)

	assert.True(t, dec(5000).Equal(f.store.Balance("main")))
	assert.True(t, f.store.Balance(v.WalletID).IsZero())
	list := f.transactions(t, v.ID, "")
	require.Len(t, list, 1)
	assert.Equal(t, domain.TxStatusFailed, list[0].Status)
	assert.Contains(t, list[0].FailureReason, "store unavailable")
}

func TestContributeCompensationFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.store.FailNext(ledgertest.OpCAS, v.WalletID, errDown, -1)
	f.store.FailAfter(ledgertest.OpCAS, "main", 1, errDown, -1)

	_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(200)})
	require.ErrorIs(t, err, domain.ErrCompensationFailure)
	require.Len(t, f.outbox.Entries(), 1)
	require.NotEmpty(t, f.alerts.Alerts())
	assert.Equal(t, alert.KindCompensationFailure, f.alerts.Alerts()[0].Kind)
}

func TestContributeFromPotWalletRejected(t *testing.T) {
	f := newFixture(t)
	from := f.goalPot(t, 10_000)
	f.fund(t, from.ID, 500)
	to := f.goalPot(t, 10_000)
	writes := f.store.Writes()

	_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: to.ID, SourceWalletID: from.WalletID, Amount: dec(100)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, writes, f.store.Writes())
	assert.True(t, dec(500).Equal(f.store.Balance(from.WalletID)))
	assert.True(t, f.store.Balance(to.WalletID).IsZero())
	assert.Empty(t, f.transactions(t, to.ID, ""))
}

func TestContributeNotifiesGoalReached(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 1000)

	f.fund(t, v.ID, 600)
	assert.NotContains(t, f.notes.Types(), domain.NotifGoalReached)
	f.fund(t, v.ID, 400)
	assert.Contains(t, f.notes.Types(), domain.NotifGoalReached)
}

func TestConcurrentContributionsConserveMoney(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 100_000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.Contribute(context.Background(), ContributeRequest{PotID: v.ID, SourceWalletID: "main", Amount: dec(100)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, dec(1000).Equal(f.store.Balance(v.WalletID)))
	assert.True(t, dec(4000).Equal(f.store.Balance("main")))
	assert.Len(t, f.transactions(t, v.ID, domain.TxTypeContribution), 10)
}

func TestEarlyWithdrawalWithPenalty(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)
	f.clock.Advance(10 * day)

	e, err := f.mgr.CheckWithdrawalEligibility(context.Background(), v.ID)
	require.NoError(t, err)
	assert.False(t, e.CanWithdraw)
	assert.True(t, e.CanWithdrawWithPenalty)
	require.NotNil(t, e.DaysUntilUnlock)
	assert.Equal(t, 20, *e.DaysUntilUnlock)
	assert.True(t, dec(5).Equal(*e.PenaltyPercent))
	assert.True(t, dec(950).Equal(*e.WithdrawalAfterPenalty))

	res, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(1000), ForceWithPenalty: true})
	require.NoError(t, err)

	assert.True(t, dec(4950).Equal(f.store.Balance("main")), "destination credited 950")
	assert.True(t, f.store.Balance(v.WalletID).IsZero())
	assert.True(t, dec(50).Equal(res.PenaltyAmount))
	assert.True(t, dec(950).Equal(res.ActualAmount))

	withdrawals := f.transactions(t, v.ID, domain.TxTypeWithdrawal)
	require.Len(t, withdrawals, 1)
	assert.True(t, dec(1000).Equal(withdrawals[0].Amount))
	assert.True(t, withdrawals[0].BalanceAfter.Decimal.IsZero())
	assert.Equal(t, domain.TxStatusCompleted, withdrawals[0].Status)

	penalties := f.transactions(t, v.ID, domain.TxTypePenalty)
	require.Len(t, penalties, 1)
	assert.True(t, dec(50).Equal(penalties[0].Amount))
	assert.Equal(t, domain.TxStatusCompleted, penalties[0].Status)

	assert.Contains(t, f.notes.Types(), domain.NotifWithdrawal)
	assert.Contains(t, f.notes.Types(), domain.NotifPenaltyApplied)
}

func TestWithdrawTimeLockedWithoutForce(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)

	_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(100)})
	require.ErrorIs(t, err, domain.ErrLocked)
	assert.Contains(t, err.Error(), "30 more day")
	assert.Empty(t, f.transactions(t, v.ID, domain.TxTypeWithdrawal))
}

func TestGoalPotCannotBeForcedOpen(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 5000)
	f.fund(t, v.ID, 3000)

	for _, amount := range []int64{1, 3000} {
		_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(amount), ForceWithPenalty: true})
		require.ErrorIs(t, err, domain.ErrLocked)
		assert.Equal(t, "early withdrawal not available for this pot type", err.Error())
	}
	assert.True(t, dec(3000).Equal(f.store.Balance(v.WalletID)))
}

func TestWithdrawAfterMaturity(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)
	f.clock.Advance(31 * day)

	_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(1001)})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	res, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(400)})
	require.NoError(t, err)
	assert.True(t, res.PenaltyAmount.IsZero())
	assert.Nil(t, res.Penalty)
	assert.True(t, dec(600).Equal(res.BalanceAfter))
	assert.True(t, dec(4400).Equal(f.store.Balance("main")))
	assert.Empty(t, f.transactions(t, v.ID, domain.TxTypePenalty))
}

func TestWithdrawCreditsPenaltyWallet(t *testing.T) {
	f := newFixture(t, WithPenaltyWallet("fees"))
	f.store.Put(models.Wallet{ID: "fees", Type: domain.WalletTypeMain})
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)

	_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(200), ForceWithPenalty: true})
	require.NoError(t, err)

	assert.True(t, dec(10).Equal(f.store.Balance("fees")))
	assert.True(t, dec(4190).Equal(f.store.Balance("main")))
	assert.True(t, dec(800).Equal(f.store.Balance(v.WalletID)))
	penalties := f.transactions(t, v.ID, domain.TxTypePenalty)
	require.Len(t, penalties, 1)
	assert.Equal(t, "fees", penalties[0].DestinationWalletID)
}

func TestWithdrawRejectsBadDestination(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 100)
	f.fund(t, v.ID, 200)
	ctx := context.Background()

	_, err := f.mgr.Withdraw(ctx, WithdrawRequest{PotID: v.ID, DestinationWalletID: v.WalletID, Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Withdraw(ctx, WithdrawRequest{PotID: v.ID, DestinationWalletID: "ghost", Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.mgr.Withdraw(ctx, WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(0)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	other := f.goalPot(t, 100)
	_, err = f.mgr.Withdraw(ctx, WithdrawRequest{PotID: v.ID, DestinationWalletID: other.WalletID, Amount: dec(10)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.True(t, f.store.Balance(other.WalletID).IsZero())
	assert.Empty(t, f.transactions(t, v.ID, domain.TxTypeWithdrawal))
}

func TestWithdrawCreditFailureRestoresPot(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)
	f.store.FailNext(ledgertest.OpCAS, "main", errDown, -1)

	_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(200), ForceWithPenalty: true})
	require.ErrorIs(t, err, errDown)
	assert.False(t, errors.Is(err, domain.ErrCompensationFailure))

	assert.True(t, dec(1000).Equal(f.store.Balance(v.WalletID)))
	assert.True(t, dec(4000).Equal(f.store.Balance("main")))
	list := f.transactions(t, v.ID, domain.TxTypeWithdrawal)
	require.Len(t, list, 1)
	assert.Equal(t, domain.TxStatusFailed, list[0].Status)
	assert.Empty(t, f.transactions(t, v.ID, domain.TxTypePenalty))
	assert.Empty(t, f.outbox.Entries())
}

func TestWithdrawCompensationFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)
	f.store.FailNext(ledgertest.OpCAS, "main", errDown, -1)
	f.store.FailAfter(ledgertest.OpCAS, v.WalletID, 1, errDown, -1)

	_, err := f.mgr.Withdraw(context.Background(), WithdrawRequest{PotID: v.ID, DestinationWalletID: "main", Amount: dec(200), ForceWithPenalty: true})
	require.ErrorIs(t, err, domain.ErrCompensationFailure)

	entries := f.outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, v.WalletID, entries[0].WalletID)
	require.NotEmpty(t, f.alerts.Alerts())
	assert.Equal(t, alert.KindCompensationFailure, f.alerts.Alerts()[0].Kind)
	list := f.transactions(t, v.ID, domain.TxTypeWithdrawal)
	require.Len(t, list, 1)
	assert.Equal(t, domain.TxStatusFailed, list[0].Status)
}

func TestClosePotDrainsAndCloses(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)
	f.clock.Advance(31 * day)

	res, err := f.mgr.ClosePot(context.Background(), v.ID, "main")
	require.NoError(t, err)
	require.NotNil(t, res.Withdrawal)
	assert.True(t, res.Withdrawal.PenaltyAmount.IsZero())
	assert.True(t, res.Pot.Balance.IsZero())

	assert.True(t, f.store.Balance(v.WalletID).IsZero())
	assert.True(t, dec(5000).Equal(f.store.Balance("main")))
	assert.Equal(t, domain.WalletStatusClosed, f.store.Status(v.WalletID))

	p := f.pot(t, v.ID)
	assert.Equal(t, domain.PotStatusClosed, p.Status)
	assert.Equal(t, domain.LockStatusUnlocked, p.LockStatus)
	assert.False(t, p.AutoDepositEnabled)
	assert.NotNil(t, p.ClosedAt)
	assert.Contains(t, f.notes.Types(), domain.NotifPotClosed)

	_, err = f.mgr.ClosePot(context.Background(), v.ID, "main")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestClosePotWhileTimeLockedPaysPenalty(t *testing.T) {
	f := newFixture(t)
	v := f.timePot(t, 30)
	f.fund(t, v.ID, 1000)

	res, err := f.mgr.ClosePot(context.Background(), v.ID, "main")
	require.NoError(t, err)
	assert.True(t, dec(50).Equal(res.Withdrawal.PenaltyAmount))
	assert.True(t, dec(4950).Equal(f.store.Balance("main")))
	assert.True(t, f.store.Balance(v.WalletID).IsZero())
}

func TestClosePotGoalLockedMovesFullBalance(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 5000)
	f.fund(t, v.ID, 3000)

	res, err := f.mgr.ClosePot(context.Background(), v.ID, "main")
	require.NoError(t, err)
	assert.True(t, res.Withdrawal.PenaltyAmount.IsZero())
	assert.True(t, dec(5000).Equal(f.store.Balance("main")))
}

func TestClosePotNeedsDestinationWhenFunded(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 5000)
	f.fund(t, v.ID, 100)

	_, err := f.mgr.ClosePot(context.Background(), v.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.PotStatusActive, f.pot(t, v.ID).Status)
	assert.Equal(t, domain.WalletStatusActive, f.store.Status(v.WalletID))
}

func closingUpdate(fields map[string]interface{}) error {
	if fields["status"] == domain.PotStatusClosed {
		return errDown
	}
	return nil
}

func TestClosePotReopensWalletWhenPotUpdateFails(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 100)
	f.pots.failUpdate = closingUpdate

	_, err := f.mgr.ClosePot(context.Background(), v.ID, "")
	require.ErrorIs(t, err, errDown)
	assert.False(t, errors.Is(err, domain.ErrCompensationFailure))
	assert.Equal(t, domain.WalletStatusActive, f.store.Status(v.WalletID))
	assert.Equal(t, domain.PotStatusActive, f.pot(t, v.ID).Status)
}

func TestClosePotWalletRestoreFailureIsAlerted(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 100)
	f.pots.failUpdate = closingUpdate
	f.store.FailAfter(ledgertest.OpStatus, v.WalletID, 1, errDown, -1)

	_, err := f.mgr.ClosePot(context.Background(), v.ID, "")
	require.ErrorIs(t, err, domain.ErrCompensationFailure)
	var ce *domain.CompensationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, v.WalletID, ce.WalletID)

	alerts := f.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindCompensationFailure, alerts[0].Kind)
	assert.Equal(t, v.ID, alerts[0].PotID)
}

func TestUpdatePot(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 1000)
	ctx := context.Background()

	name := "New car"
	updated, err := f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, Name: &name, GoalAmount: decPtr(3000)})
	require.NoError(t, err)
	assert.Equal(t, "New car", updated.Name)
	assert.True(t, dec(3000).Equal(updated.GoalAmount.Decimal))
	assert.Nil(t, updated.NextAutoDepositDate)

	enabled, freq, src := true, domain.FrequencyWeekly, "main"
	updated, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{
		PotID:                     v.ID,
		AutoDepositEnabled:        &enabled,
		AutoDepositAmount:         decPtr(50),
		AutoDepositFrequency:      &freq,
		AutoDepositSourceWalletID: &src,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.NextAutoDepositDate)
	assert.True(t, base.AddDate(0, 0, 7).Equal(*updated.NextAutoDepositDate))

	f.clock.Advance(day)
	monthly := domain.FrequencyMonthly
	updated, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, AutoDepositFrequency: &monthly})
	require.NoError(t, err)
	assert.True(t, base.Add(day).AddDate(0, 1, 0).Equal(*updated.NextAutoDepositDate))

	disabled := false
	updated, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, AutoDepositEnabled: &disabled})
	require.NoError(t, err)
	assert.False(t, updated.AutoDepositEnabled)
	assert.Nil(t, updated.NextAutoDepositDate)
}

func TestUpdatePotRejections(t *testing.T) {
	f := newFixture(t)
	v := f.goalPot(t, 1000)
	ctx := context.Background()

	_, err := f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	enabled := true
	_, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, AutoDepositEnabled: &enabled})
	assert.ErrorIs(t, err, domain.ErrValidation, "enabling needs amount, frequency and source")

	_, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, GoalAmount: decPtr(-5)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	other := f.goalPot(t, 1000)
	amount, weekly := decPtr(10), domain.FrequencyWeekly
	_, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, AutoDepositEnabled: &enabled, AutoDepositAmount: amount,
		AutoDepositFrequency: &weekly, AutoDepositSourceWalletID: &other.WalletID})
	assert.ErrorIs(t, err, domain.ErrValidation, "pot wallet as auto-deposit source")
	p, err := f.mgr.GetPot(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, p.AutoDepositEnabled)

	_, err = f.mgr.ClosePot(ctx, v.ID, "")
	require.NoError(t, err)
	name := "late"
	_, err = f.mgr.UpdatePot(ctx, UpdatePotRequest{PotID: v.ID, Name: &name})
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestListUserPotsIncludesBalances(t *testing.T) {
	f := newFixture(t)
	a := f.goalPot(t, 1000)
	f.goalPot(t, 2000)
	f.fund(t, a.ID, 250)

	views, total, err := f.mgr.ListUserPots(context.Background(), "u-1", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, views, 2)
	for _, v := range views {
		if v.ID == a.ID {
			assert.True(t, dec(250).Equal(v.Balance))
		} else {
			assert.True(t, v.Balance.IsZero())
		}
	}

	got, err := f.mgr.GetPot(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, dec(250).Equal(got.Balance))

	_, _, err = f.mgr.ListTransactions(context.Background(), a.ID, "refund", 1, 20)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
