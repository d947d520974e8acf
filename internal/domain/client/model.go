package client

import (
	"context"

	"github.com/stackbill/stackbill/internal/types"
)

// Client is the owner of invoices, services and transactions. Group
// membership determines which client-group level settings apply.
type Client struct {
	ID      string `db:"id" json:"id"`
	GroupID string `db:"group_id" json:"group_id"`

	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`

	// Country and State locate the client for tax rule scoping
	Country string `db:"country" json:"country"`
	State   string `db:"state" json:"state"`

	// Currency is the client's billing currency
	Currency string `db:"currency" json:"currency"`

	types.BaseModel
}

// Repository provides access to persisted clients
type Repository interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, c *Client) error
}
