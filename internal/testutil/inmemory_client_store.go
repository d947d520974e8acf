package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/client"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemoryClientStore implements client.Repository
type InMemoryClientStore struct {
	*InMemoryStore[*client.Client]
}

// NewInMemoryClientStore creates a new in-memory client store
func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{
		InMemoryStore: NewInMemoryStore[*client.Client](),
	}
}

func (s *InMemoryClientStore) Create(ctx context.Context, c *client.Client) error {
	cCopy := *c
	return s.InMemoryStore.Create(ctx, c.ID, &cCopy)
}

func (s *InMemoryClientStore) Get(ctx context.Context, id string) (*client.Client, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("client not found").
			WithHintf("client %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	cCopy := *c
	return &cCopy, nil
}

func (s *InMemoryClientStore) Update(ctx context.Context, c *client.Client) error {
	cCopy := *c
	return s.InMemoryStore.Update(ctx, c.ID, &cCopy)
}
