package types

import (
	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// ServiceStatus represents the lifecycle state of a subscribed service
type ServiceStatus string

const (
	// ServiceStatusPending indicates the service is awaiting provisioning
	ServiceStatusPending ServiceStatus = "pending"
	// ServiceStatusInReview indicates the service is held for manual review
	// before provisioning
	ServiceStatusInReview ServiceStatus = "in_review"
	// ServiceStatusActive indicates the service is provisioned and billable
	ServiceStatusActive ServiceStatus = "active"
	// ServiceStatusSuspended indicates the service is provisioned but access
	// is withheld, typically for non-payment
	ServiceStatusSuspended ServiceStatus = "suspended"
	// ServiceStatusCanceled is terminal except for un-cancel of a scheduled
	// cancellation whose date has not yet arrived
	ServiceStatusCanceled ServiceStatus = "canceled"
)

func (s ServiceStatus) String() string {
	return string(s)
}

func (s ServiceStatus) Validate() error {
	allowed := []ServiceStatus{
		ServiceStatusPending,
		ServiceStatusInReview,
		ServiceStatusActive,
		ServiceStatusSuspended,
		ServiceStatusCanceled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid service status").
			WithHint("Please provide a valid service status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CanTransitionTo reports whether the lifecycle state machine permits moving
// from s to target. Scheduled (future-dated) cancellations do not change the
// status until the date arrives and are therefore not modeled here.
func (s ServiceStatus) CanTransitionTo(target ServiceStatus) bool {
	switch s {
	case ServiceStatusPending:
		return target == ServiceStatusActive ||
			target == ServiceStatusInReview ||
			target == ServiceStatusCanceled
	case ServiceStatusInReview:
		return target == ServiceStatusActive ||
			target == ServiceStatusCanceled
	case ServiceStatusActive:
		return target == ServiceStatusSuspended ||
			target == ServiceStatusCanceled
	case ServiceStatusSuspended:
		return target == ServiceStatusActive ||
			target == ServiceStatusCanceled
	case ServiceStatusCanceled:
		return false
	default:
		return false
	}
}

// CancellationType determines when a service cancellation takes effect
type CancellationType string

const (
	// CancellationTypeNow cancels immediately
	CancellationTypeNow CancellationType = "now"
	// CancellationTypeDate schedules cancellation for an explicit date
	CancellationTypeDate CancellationType = "date"
	// CancellationTypeEndOfTerm schedules cancellation for the service's
	// current renewal date
	CancellationTypeEndOfTerm CancellationType = "end_of_term"
)

func (t CancellationType) Validate() error {
	allowed := []CancellationType{
		CancellationTypeNow,
		CancellationTypeDate,
		CancellationTypeEndOfTerm,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid cancellation type").
			WithHint("Please provide a valid cancellation type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
