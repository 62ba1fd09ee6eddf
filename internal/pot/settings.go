package pot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"potledger/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	SettingMaxPotsPerUser         = "pots.max_per_user"
	SettingMinContribution        = "pots.min_contribution"
	SettingMaxContribution        = "pots.max_contribution"
	SettingMinLockPeriodDays      = "pots.min_lock_period_days"
	SettingMaxLockPeriodDays      = "pots.max_lock_period_days"
	SettingPenaltyPercent         = "pots.early_withdrawal_penalty_percent"
	SettingAutoDepositRetryWindow = "pots.auto_deposit_retry_window_hours"
)

// Settings are the admin-tunable limits the manager enforces.
type Settings struct {
	MaxPotsPerUser              int             `json:"max_pots_per_user"`
	MinContribution             decimal.Decimal `json:"min_contribution"`
	MaxContribution             decimal.Decimal `json:"max_contribution"`
	MinLockPeriodDays           int             `json:"min_lock_period_days"`
	MaxLockPeriodDays           int             `json:"max_lock_period_days"`
	EarlyWithdrawalPenaltyPct   decimal.Decimal `json:"early_withdrawal_penalty_percent"`
	AutoDepositRetryWindowHours int             `json:"auto_deposit_retry_window_hours"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxPotsPerUser:              10,
		MinContribution:             decimal.NewFromInt(1),
		MaxContribution:             decimal.NewFromInt(1_000_000),
		MinLockPeriodDays:           7,
		MaxLockPeriodDays:           3650,
		EarlyWithdrawalPenaltyPct:   decimal.NewFromInt(5),
		AutoDepositRetryWindowHours: 24,
	}
}

func (s Settings) RetryWindow() time.Duration {
	return time.Duration(s.AutoDepositRetryWindowHours) * time.Hour
}

func (s Settings) Validate() error {
	switch {
	case s.MaxPotsPerUser < 1:
		return domain.Validationf("max pots per user must be at least 1")
	case !s.MinContribution.IsPositive():
		return domain.Validationf("minimum contribution must be positive")
	case s.MaxContribution.LessThan(s.MinContribution):
		return domain.Validationf("maximum contribution must not be below the minimum")
	case s.MinLockPeriodDays < 1:
		return domain.Validationf("minimum lock period must be at least 1 day")
	case s.MaxLockPeriodDays < s.MinLockPeriodDays:
		return domain.Validationf("maximum lock period must not be below the minimum")
	case s.EarlyWithdrawalPenaltyPct.IsNegative() || s.EarlyWithdrawalPenaltyPct.GreaterThanOrEqual(hundred):
		return domain.Validationf("penalty percent must be in [0, 100)")
	case s.AutoDepositRetryWindowHours < 0:
		return domain.Validationf("auto-deposit retry window must not be negative")
	}
	return nil
}

// Values renders s as system_settings rows.
func (s Settings) Values() map[string]string {
	return map[string]string{
		SettingMaxPotsPerUser:         strconv.Itoa(s.MaxPotsPerUser),
		SettingMinContribution:        s.MinContribution.String(),
		SettingMaxContribution:        s.MaxContribution.String(),
		SettingMinLockPeriodDays:      strconv.Itoa(s.MinLockPeriodDays),
		SettingMaxLockPeriodDays:      strconv.Itoa(s.MaxLockPeriodDays),
		SettingPenaltyPercent:         s.EarlyWithdrawalPenaltyPct.String(),
		SettingAutoDepositRetryWindow: strconv.Itoa(s.AutoDepositRetryWindowHours),
	}
}

// SettingsFromValues overlays stored rows on the defaults. Unknown keys are ignored.
func SettingsFromValues(values map[string]string) (Settings, error) {
	s := DefaultSettings()
	ints := map[string]*int{
		SettingMaxPotsPerUser:         &s.MaxPotsPerUser,
		SettingMinLockPeriodDays:      &s.MinLockPeriodDays,
		SettingMaxLockPeriodDays:      &s.MaxLockPeriodDays,
		SettingAutoDepositRetryWindow: &s.AutoDepositRetryWindowHours,
	}
	decs := map[string]*decimal.Decimal{
		SettingMinContribution: &s.MinContribution,
		SettingMaxContribution: &s.MaxContribution,
		SettingPenaltyPercent:  &s.EarlyWithdrawalPenaltyPct,
	}
	for k, v := range values {
		if dst, ok := ints[k]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return s, fmt.Errorf("setting %s: %w", k, err)
			}
			*dst = n
		}
		if dst, ok := decs[k]; ok {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return s, fmt.Errorf("setting %s: %w", k, err)
			}
			*dst = d
		}
	}
	return s, s.Validate()
}

// SettingsPatch carries a sparse settings update.
type SettingsPatch struct {
	MaxPotsPerUser              *int             `json:"max_pots_per_user"`
	MinContribution             *decimal.Decimal `json:"min_contribution"`
	MaxContribution             *decimal.Decimal `json:"max_contribution"`
	MinLockPeriodDays           *int             `json:"min_lock_period_days"`
	MaxLockPeriodDays           *int             `json:"max_lock_period_days"`
	EarlyWithdrawalPenaltyPct   *decimal.Decimal `json:"early_withdrawal_penalty_percent"`
	AutoDepositRetryWindowHours *int             `json:"auto_deposit_retry_window_hours"`
}

func (s Settings) Apply(p SettingsPatch) Settings {
	if p.MaxPotsPerUser != nil {
		s.MaxPotsPerUser = *p.MaxPotsPerUser
	}
	if p.MinContribution != nil {
		s.MinContribution = *p.MinContribution
	}
	if p.MaxContribution != nil {
		s.MaxContribution = *p.MaxContribution
	}
	if p.MinLockPeriodDays != nil {
		s.MinLockPeriodDays = *p.MinLockPeriodDays
	}
	if p.MaxLockPeriodDays != nil {
		s.MaxLockPeriodDays = *p.MaxLockPeriodDays
	}
	if p.EarlyWithdrawalPenaltyPct != nil {
		s.EarlyWithdrawalPenaltyPct = *p.EarlyWithdrawalPenaltyPct
	}
	if p.AutoDepositRetryWindowHours != nil {
		s.AutoDepositRetryWindowHours = *p.AutoDepositRetryWindowHours
	}
	return s
}

type SettingsStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string, updatedBy string) error
	SeedDefaults(ctx context.Context, defaults map[string]string) error
}

// LoadSettings seeds missing keys with defaults and reads the current values.
func LoadSettings(ctx context.Context, store SettingsStore) (Settings, error) {
	if err := store.SeedDefaults(ctx, DefaultSettings().Values()); err != nil {
		return Settings{}, fmt.Errorf("seed settings: %w", err)
	}
	values, err := store.GetAll(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return SettingsFromValues(values)
}
