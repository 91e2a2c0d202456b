package products

import (
	"context"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// Pagination limits for the query interface
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 50
)

// ListOptions controls a GetByOwner page. Since filters to products
// created after a point in time, for incremental sync after a dropped
// realtime connection.
type ListOptions struct {
	Limit  int
	Cursor string
	Since  *time.Time
}

// Normalize clamps the limit into the allowed range
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
}

// Repository is the keyed store of finished products.
//
// InsertIfAbsent is the idempotency anchor for the whole pipeline: a
// product is created at most once per ContentKey no matter how often
// either source event is redelivered.
type Repository interface {
	// InsertIfAbsent writes the product unless one already exists for
	// its key. Returns whether the insert happened; false means a
	// product for that key already exists and nothing was written.
	InsertIfAbsent(ctx context.Context, product *assembly.AssembledProduct) (bool, error)

	// GetByOwner returns one page of an owner's products, newest first
	GetByOwner(ctx context.Context, ownerID string, opts ListOptions) (*assembly.ProductPage, error)

	// GetOne returns the product for key, or nil if absent
	GetOne(ctx context.Context, key assembly.ContentKey) (*assembly.AssembledProduct, error)
}
