package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/catalog"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemoryCatalogStore implements catalog.Repository
type InMemoryCatalogStore struct {
	packages *InMemoryStore[*catalog.Package]
	pricings *InMemoryStore[*catalog.Pricing]
}

// NewInMemoryCatalogStore creates a new in-memory catalog store
func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		packages: NewInMemoryStore[*catalog.Package](),
		pricings: NewInMemoryStore[*catalog.Pricing](),
	}
}

func copyPackage(pkg *catalog.Package) *catalog.Package {
	if pkg == nil {
		return nil
	}
	out := *pkg
	out.Options = make([]*catalog.Option, len(pkg.Options))
	for i, opt := range pkg.Options {
		optCopy := *opt
		out.Options[i] = &optCopy
	}
	return &out
}

func (s *InMemoryCatalogStore) CreatePackage(ctx context.Context, pkg *catalog.Package) error {
	for _, opt := range pkg.Options {
		opt.PackageID = pkg.ID
	}
	return s.packages.Create(ctx, pkg.ID, copyPackage(pkg))
}

func (s *InMemoryCatalogStore) GetPackage(ctx context.Context, id string) (*catalog.Package, error) {
	pkg, err := s.packages.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("package not found").
			WithHintf("package %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyPackage(pkg), nil
}

func (s *InMemoryCatalogStore) CreatePricing(ctx context.Context, pricing *catalog.Pricing) error {
	p := *pricing
	return s.pricings.Create(ctx, pricing.ID, &p)
}

func (s *InMemoryCatalogStore) GetPricing(ctx context.Context, id string) (*catalog.Pricing, error) {
	pricing, err := s.pricings.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("pricing not found").
			WithHintf("pricing %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	p := *pricing
	return &p, nil
}

func (s *InMemoryCatalogStore) ListOptions(ctx context.Context, packageID string) ([]*catalog.Option, error) {
	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return nil, nil
	}
	return copyPackage(pkg).Options, nil
}

// Clear wipes packages and pricings
func (s *InMemoryCatalogStore) Clear() {
	s.packages.Clear()
	s.pricings.Clear()
}
