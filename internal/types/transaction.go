package types

import (
	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// TransactionStatus represents the state of a payment transaction. Only
// approved transactions count toward an invoice's paid amount.
type TransactionStatus string

const (
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusDeclined TransactionStatus = "declined"
	TransactionStatusRefunded TransactionStatus = "refunded"
	TransactionStatusVoid     TransactionStatus = "void"
)

func (s TransactionStatus) String() string {
	return string(s)
}

func (s TransactionStatus) Validate() error {
	allowed := []TransactionStatus{
		TransactionStatusApproved,
		TransactionStatusPending,
		TransactionStatusDeclined,
		TransactionStatusRefunded,
		TransactionStatusVoid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid transaction status").
			WithHint("Please provide a valid transaction status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
