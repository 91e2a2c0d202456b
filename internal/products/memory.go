package products

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// MemoryRepository is an in-process product store used for development
// mode and tests
type MemoryRepository struct {
	mu       sync.Mutex
	products map[assembly.ContentKey]*assembly.AssembledProduct
}

// NewMemoryRepository creates an empty in-memory product store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[assembly.ContentKey]*assembly.AssembledProduct),
	}
}

// InsertIfAbsent conditionally writes the product; never overwrites
func (r *MemoryRepository) InsertIfAbsent(_ context.Context, p *assembly.AssembledProduct) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	if _, exists := r.products[key]; exists {
		return false, nil
	}
	cp := *p
	r.products[key] = &cp
	return true, nil
}

// GetByOwner returns one page of an owner's products, newest first
func (r *MemoryRepository) GetByOwner(_ context.Context, ownerID string, opts ListOptions) (*assembly.ProductPage, error) {
	opts.Normalize()

	r.mu.Lock()
	var list []*assembly.AssembledProduct
	for _, p := range r.products {
		if p.OwnerID != ownerID {
			continue
		}
		if opts.Since != nil && !p.CreatedAt.After(*opts.Since) {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}
	r.mu.Unlock()

	// Same ordering as the Postgres index: newest first, content ID
	// breaking ties
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ContentID > list[j].ContentID
	})

	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		i := sort.Search(len(list), func(i int) bool {
			p := list[i]
			if !p.CreatedAt.Equal(c.CreatedAt) {
				return p.CreatedAt.Before(c.CreatedAt)
			}
			return p.ContentID < c.ContentID
		})
		list = list[i:]
	}

	page := &assembly.ProductPage{}
	if len(list) > opts.Limit {
		page.HasMore = true
		list = list[:opts.Limit]
		last := list[len(list)-1]
		page.NextCursor = encodeCursor(cursor{CreatedAt: last.CreatedAt, ContentID: last.ContentID})
	}
	if list == nil {
		list = []*assembly.AssembledProduct{}
	}
	page.Products = list
	page.Count = len(list)
	return page, nil
}

// GetOne returns the product for key, or nil if absent
func (r *MemoryRepository) GetOne(_ context.Context, key assembly.ContentKey) (*assembly.AssembledProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[key]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Len reports the number of stored products
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}
