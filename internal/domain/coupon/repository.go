package coupon

import "context"

// Repository provides access to coupons and their usage accounting
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Update(ctx context.Context, c *Coupon) error

	// IncrementUsage bumps the usage counter after a discount line has been
	// committed; at most once per invoice
	IncrementUsage(ctx context.Context, id string) error
}
