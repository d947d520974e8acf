package types

import (
	"time"

	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// BillingPeriod is the unit of a billing cycle. Together with a term count it
// defines the renewal cadence of a service or recurring invoice, e.g. term=3
// period=month renews quarterly.
type BillingPeriod string

const (
	BillingPeriodDay   BillingPeriod = "day"
	BillingPeriodWeek  BillingPeriod = "week"
	BillingPeriodMonth BillingPeriod = "month"
	BillingPeriodYear  BillingPeriod = "year"
)

func (p BillingPeriod) String() string {
	return string(p)
}

func (p BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BillingPeriodDay,
		BillingPeriodWeek,
		BillingPeriodMonth,
		BillingPeriodYear,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Please provide a valid billing period").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NextRenewDate advances a renewal date by exactly one term of the given
// period. Month and year additions clamp to the last valid day of the target
// month so a Jan 31 monthly renewal lands on Feb 28/29 rather than Mar 3.
func NextRenewDate(start time.Time, term int, period BillingPeriod) (time.Time, error) {
	if term <= 0 {
		return start, ierr.NewError("billing term must be a positive integer").
			WithReportableDetails(map[string]any{"term": term}).
			Mark(ierr.ErrValidation)
	}

	switch period {
	case BillingPeriodDay:
		return AddClampedDate(start, 0, 0, term), nil
	case BillingPeriodWeek:
		return AddClampedDate(start, 0, 0, 7*term), nil
	case BillingPeriodMonth:
		return AddClampedDate(start, 0, term, 0), nil
	case BillingPeriodYear:
		return AddClampedDate(start, term, 0, 0), nil
	default:
		return start, ierr.NewError("invalid billing period").
			WithReportableDetails(map[string]any{"period": period}).
			Mark(ierr.ErrValidation)
	}
}

// AddClampedDate adds the given years, months and days to t, clamping the day
// of month to the last valid day instead of letting time.AddDate normalize
// overflow into the following month.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}
