package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Lock types
const (
	LockTypeTimeBased = "time_based"
	LockTypeGoalBased = "goal_based"
	LockTypeHybrid    = "hybrid"
)

const (
	PotStatusActive = "ACTIVE"
	PotStatusClosed = "CLOSED"
)

const (
	LockStatusLocked   = "LOCKED"
	LockStatusUnlocked = "UNLOCKED"
)

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiWeekly = "bi_weekly"
	FrequencyMonthly  = "monthly"
)

// Pot transaction types
const (
	TxTypeContribution = "contribution"
	TxTypeWithdrawal   = "withdrawal"
	TxTypePenalty      = "penalty"
	TxTypeAutoDeposit  = "auto_deposit"
)

const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

const (
	WalletStatusActive = "ACTIVE"
	WalletStatusFrozen = "FROZEN"
	WalletStatusClosed = "CLOSED"
)

const (
	WalletTypeMain = "main"
	WalletTypePot  = "pot"
)

// Eligibility tags reported by the evaluator.
const (
	EligibilityAdminLocked = "admin_locked"
	EligibilityClosed      = "closed"
	EligibilityTimeLocked  = "time_locked"
	EligibilityGoalLocked  = "goal_locked"
	EligibilityUnlocked    = "unlocked"
)

const (
	NotifPotCreated           = "pot_created"
	NotifContribution         = "contribution_received"
	NotifGoalReached          = "goal_reached"
	NotifWithdrawal           = "withdrawal_completed"
	NotifPenaltyApplied       = "penalty_applied"
	NotifPotClosed            = "pot_closed"
	NotifAdminLocked          = "pot_admin_locked"
	NotifAdminUnlocked        = "pot_admin_unlocked"
	NotifForceUnlocked        = "pot_force_unlocked"
	NotifAutoDepositCompleted = "auto_deposit_completed"
	NotifAutoDepositFailed    = "auto_deposit_failed"
)

const (
	CompensationPending   = "PENDING"
	CompensationResolved  = "RESOLVED"
	CompensationAbandoned = "ABANDONED"
)

const DefaultCurrency = "KES"

func ValidLockType(t string) bool {
	switch t {
	case LockTypeTimeBased, LockTypeGoalBased, LockTypeHybrid:
		return true
	}
	return false
}

func ValidFrequency(f string) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func ValidTxType(t string) bool {
	switch t {
	case TxTypeContribution, TxTypeWithdrawal, TxTypePenalty, TxTypeAutoDeposit:
		return true
	}
	return false
}
