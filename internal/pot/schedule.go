package pot

import (
	"time"

	"potledger/internal/domain"
)

// NextAutoDepositDate returns the due date following from. Monthly steps by
// calendar month, so Jan 31 normalises to early March like time.AddDate.
func NextAutoDepositDate(frequency string, from time.Time) (time.Time, error) {
	switch frequency {
	case domain.FrequencyDaily:
		return from.AddDate(0, 0, 1), nil
	case domain.FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case domain.FrequencyBiWeekly:
		return from.AddDate(0, 0, 14), nil
	case domain.FrequencyMonthly:
		return from.AddDate(0, 1, 0), nil
	}
	return time.Time{}, domain.Validationf("unknown auto-deposit frequency %q", frequency)
}

// nextAfter advances from until it is strictly after now.
func nextAfter(frequency string, from, now time.Time) (time.Time, error) {
	next, err := NextAutoDepositDate(frequency, from)
	if err != nil {
		return next, err
	}
	for !next.After(now) {
		if next, err = NextAutoDepositDate(frequency, next); err != nil {
			return next, err
		}
	}
	return next, nil
}
