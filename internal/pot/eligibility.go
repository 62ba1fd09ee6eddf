package pot

import (
	"fmt"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Eligibility is the withdrawal verdict for a pot at a point in time.
type Eligibility struct {
	CanWithdraw            bool             `json:"can_withdraw"`
	CanWithdrawWithPenalty bool             `json:"can_withdraw_with_penalty"`
	LockStatus             string           `json:"lock_status"`
	Reason                 string           `json:"reason"`
	CurrentBalance         decimal.Decimal  `json:"current_balance"`
	MaxWithdrawable        decimal.Decimal  `json:"max_withdrawable"`
	LockEndDate            *time.Time       `json:"lock_end_date,omitempty"`
	DaysUntilUnlock        *int             `json:"days_until_unlock,omitempty"`
	PenaltyPercent         *decimal.Decimal `json:"penalty_percent,omitempty"`
	WithdrawalAfterPenalty *decimal.Decimal `json:"withdrawal_after_penalty,omitempty"`
	RemainingToGoal        *decimal.Decimal `json:"remaining_to_goal,omitempty"`
	ProgressPercent        *decimal.Decimal `json:"progress_percent,omitempty"`
}

// Evaluate decides whether p can be withdrawn from. The first matching rule
// wins: admin lock, closed, admin force unlock, time lock, goal lock.
// A hybrid pot that is still time-locked never reaches the goal rule.
func Evaluate(p *models.Pot, balance decimal.Decimal, now time.Time, penaltyPercent decimal.Decimal) Eligibility {
	e := Eligibility{CurrentBalance: balance, LockEndDate: p.LockEndDate}

	switch {
	case p.AdminLocked:
		e.LockStatus = domain.EligibilityAdminLocked
		e.MaxWithdrawable = balance
		e.Reason = "Pot has been locked by an administrator"
		if p.AdminLockReason != "" {
			e.Reason += ": " + p.AdminLockReason
		}
		return e
	case p.Status == domain.PotStatusClosed:
		e.LockStatus = domain.EligibilityClosed
		e.MaxWithdrawable = decimal.Zero
		e.Reason = "Pot is closed"
		return e
	case p.LockStatus == domain.LockStatusUnlocked && p.WithdrawalEnabled:
		return eligible(e, balance)
	}

	if hasTimeLock(p.LockType) && p.LockEndDate != nil && now.Before(*p.LockEndDate) {
		days := daysUntil(now, *p.LockEndDate)
		pct := penaltyPercent
		after := balance.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
		e.LockStatus = domain.EligibilityTimeLocked
		e.CanWithdrawWithPenalty = true
		e.MaxWithdrawable = balance
		e.DaysUntilUnlock = &days
		e.PenaltyPercent = &pct
		e.WithdrawalAfterPenalty = &after
		e.Reason = fmt.Sprintf("Pot is locked for %d more day(s); early withdrawal incurs a %s%% penalty", days, pct.String())
		return e
	}

	if hasGoalLock(p.LockType) && p.GoalAmount.Valid && balance.LessThan(p.GoalAmount.Decimal) {
		goal := p.GoalAmount.Decimal
		remaining := goal.Sub(balance)
		progress := decimal.Zero
		if goal.IsPositive() {
			progress = balance.Div(goal).Mul(hundred).Round(2)
		}
		e.LockStatus = domain.EligibilityGoalLocked
		e.MaxWithdrawable = decimal.Zero
		e.RemainingToGoal = &remaining
		e.ProgressPercent = &progress
		e.Reason = fmt.Sprintf("Savings goal not reached: %s remaining", remaining.StringFixed(2))
		return e
	}

	return eligible(e, balance)
}

func eligible(e Eligibility, balance decimal.Decimal) Eligibility {
	e.CanWithdraw = true
	e.LockStatus = domain.EligibilityUnlocked
	e.MaxWithdrawable = balance
	e.Reason = "Funds are available for withdrawal"
	return e
}

func hasTimeLock(lockType string) bool {
	return lockType == domain.LockTypeTimeBased || lockType == domain.LockTypeHybrid
}

func hasGoalLock(lockType string) bool {
	return lockType == domain.LockTypeGoalBased || lockType == domain.LockTypeHybrid
}

// daysUntil rounds any partial day up.
func daysUntil(now, end time.Time) int {
	const day = 24 * time.Hour
	d := end.Sub(now)
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// Penalty splits amount into the penalty withheld and the amount paid out.
func Penalty(amount, percent decimal.Decimal) (penalty, actual decimal.Decimal) {
	penalty = amount.Mul(percent).Div(hundred).Round(2)
	return penalty, amount.Sub(penalty)
}
