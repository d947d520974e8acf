package catalog

import "context"

// Repository provides access to packages and their pricings
type Repository interface {
	CreatePackage(ctx context.Context, pkg *Package) error
	GetPackage(ctx context.Context, id string) (*Package, error)

	CreatePricing(ctx context.Context, pricing *Pricing) error
	GetPricing(ctx context.Context, id string) (*Pricing, error)

	ListOptions(ctx context.Context, packageID string) ([]*Option, error)
}
