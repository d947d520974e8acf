package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxCompanyID     ContextKey = "ctx_company_id"
	CtxStaffID       ContextKey = "ctx_staff_id"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	// DefaultCompanyID is used by scripts and tests that do not carry an
	// authenticated company scope
	DefaultCompanyID = "00000000-0000-0000-0000-000000000000"
)

// GetCompanyID returns the active company scope from the context.
// Every query in the system is implicitly scoped to this company.
func GetCompanyID(ctx context.Context) string {
	if companyID, ok := ctx.Value(CtxCompanyID).(string); ok {
		return companyID
	}
	return ""
}

// GetStaffID returns the acting staff member, if any. An empty staff ID
// means the operation was triggered by the system or the client themselves,
// which matters for automatic unsuspension eligibility.
func GetStaffID(ctx context.Context) string {
	if staffID, ok := ctx.Value(CtxStaffID).(string); ok {
		return staffID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// SetCompanyID sets the active company scope in the context
func SetCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, CtxCompanyID, companyID)
}

// SetStaffID sets the acting staff member in the context
func SetStaffID(ctx context.Context, staffID string) context.Context {
	return context.WithValue(ctx, CtxStaffID, staffID)
}

// ValidateCompanyContext validates that the required company scope is present
func ValidateCompanyContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	companyID := GetCompanyID(ctx)
	if companyID == "" {
		return fmt.Errorf("no company scope found in context")
	}

	return nil
}
