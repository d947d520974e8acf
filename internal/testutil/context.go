package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxCompanyID, types.DefaultCompanyID)
	ctx = context.WithValue(ctx, types.CtxStaffID, "staff_test")
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
