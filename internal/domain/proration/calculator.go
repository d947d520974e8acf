package proration

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/stackbill/stackbill/internal/errors"

	"github.com/stackbill/stackbill/internal/types"
)

// Period is a partial billing window produced by prorating a package's first
// or transitional term to its prorata day anchor.
type Period struct {
	Start time.Time
	End   time.Time
}

// Days returns the calendar day count of the window in UTC, inclusive of the
// start and exclusive of the end.
func (p Period) Days() int {
	start := time.Date(p.Start.Year(), p.Start.Month(), p.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(p.End.Year(), p.End.Month(), p.End.Day(), 0, 0, 0, 0, time.UTC)

	days := 0
	for current := start; current.Before(end); current = current.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// Prorater computes prorata-day aligned billing windows for a package
// pricing. A nil prorata day means the package is not configured for
// proration and no partial period is ever produced.
type Prorater struct {
	ProrataDay *int
	Term       int
	Period     types.BillingPeriod
}

// Enabled reports whether the pricing is configured for proration at all.
// Only month and year cadences carry a day-of-month anchor.
func (p Prorater) Enabled() bool {
	if p.ProrataDay == nil {
		return false
	}
	return p.Period == types.BillingPeriodMonth || p.Period == types.BillingPeriodYear
}

// ProratedRenewDate returns the next renewal boundary landing on the prorata
// day. If the start day-of-month is before the prorata day the boundary is in
// the starting month, otherwise in the following month (or the month the
// next term lands in for multi-month and annual cadences).
func (p Prorater) ProratedRenewDate(start time.Time) (time.Time, error) {
	if !p.Enabled() {
		return time.Time{}, ierr.NewError("pricing is not configured for proration").
			Mark(ierr.ErrInvalidOperation)
	}

	day := *p.ProrataDay
	if day < 1 || day > 28 {
		return time.Time{}, ierr.NewError("prorata day must be between 1 and 28").
			WithReportableDetails(map[string]any{"prorata_day": day}).
			Mark(ierr.ErrValidation)
	}

	anchor := time.Date(start.Year(), start.Month(), day,
		start.Hour(), start.Minute(), start.Second(), 0, start.Location())
	if start.Day() >= day {
		anchor = types.AddClampedDate(anchor, 0, 1, 0)
	}
	return anchor, nil
}

// ProratePeriod computes the partial window from the start date to the
// prorated renewal boundary. ok is false when the pricing is not configured
// for proration, in which case no proration occurs and the caller should
// bill a full period.
func (p Prorater) ProratePeriod(start time.Time) (Period, bool, error) {
	if !p.Enabled() {
		return Period{}, false, nil
	}

	end, err := p.ProratedRenewDate(start)
	if err != nil {
		return Period{}, false, err
	}

	return Period{Start: start, End: end}, true, nil
}

// ProrateAmount prices the partial window as a fraction of the full-period
// price, by day count, rounded to 2 decimal places.
func (p Prorater) ProrateAmount(start time.Time, fullPrice decimal.Decimal) (decimal.Decimal, Period, error) {
	window, ok, err := p.ProratePeriod(start)
	if err != nil {
		return decimal.Zero, Period{}, err
	}
	if !ok {
		return fullPrice, Period{}, nil
	}

	fullEnd, err := types.NextRenewDate(start, p.Term, p.Period)
	if err != nil {
		return decimal.Zero, Period{}, err
	}
	fullDays := Period{Start: start, End: fullEnd}.Days()
	if fullDays <= 0 {
		return decimal.Zero, Period{}, ierr.NewError("invalid billing period").
			WithHintf("full period has no days (%v to %v)", start, fullEnd).
			Mark(ierr.ErrValidation)
	}

	fraction := decimal.NewFromInt(int64(window.Days())).
		Div(decimal.NewFromInt(int64(fullDays)))
	return fullPrice.Mul(fraction).Round(2), window, nil
}

// CanSyncToParent reports whether a child (addon) service may have its
// renewal date synchronized to its parent's. Both must share an identical
// term and period and neither may be individually prorated.
func CanSyncToParent(childTerm int, childPeriod types.BillingPeriod, childProrated bool,
	parentTerm int, parentPeriod types.BillingPeriod, parentProrated bool) bool {
	if childProrated || parentProrated {
		return false
	}
	return childTerm == parentTerm && childPeriod == parentPeriod
}
