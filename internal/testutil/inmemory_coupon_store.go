package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/coupon"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemoryCouponStore implements coupon.Repository
type InMemoryCouponStore struct {
	*InMemoryStore[*coupon.Coupon]
}

// NewInMemoryCouponStore creates a new in-memory coupon store
func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{
		InMemoryStore: NewInMemoryStore[*coupon.Coupon](),
	}
}

func copyCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c == nil {
		return nil
	}
	out := *c
	out.PackageIDs = append([]string(nil), c.PackageIDs...)
	out.Terms = append([]int(nil), c.Terms...)
	return &out
}

func (s *InMemoryCouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	return s.InMemoryStore.Create(ctx, c.ID, copyCoupon(c))
}

func (s *InMemoryCouponStore) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("coupon not found").
			WithHintf("coupon %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	all, err := s.InMemoryStore.List(ctx, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Code == code {
			return copyCoupon(c), nil
		}
	}
	return nil, ierr.NewError("coupon not found").
		WithHintf("coupon code %s not found", code).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryCouponStore) Update(ctx context.Context, c *coupon.Coupon) error {
	return s.InMemoryStore.Update(ctx, c.ID, copyCoupon(c))
}

func (s *InMemoryCouponStore) IncrementUsage(ctx context.Context, id string) error {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewError("coupon not found").
			Mark(ierr.ErrNotFound)
	}

	if c.MaxUses != nil && c.Uses >= *c.MaxUses {
		return ierr.NewError("coupon usage limit reached").
			Mark(ierr.ErrInvalidOperation)
	}

	next := copyCoupon(c)
	next.Uses++
	return s.InMemoryStore.Update(ctx, id, next)
}
