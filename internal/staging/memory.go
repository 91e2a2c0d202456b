package staging

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// MemoryRepository is an in-process staging store used for development
// mode and tests. A single mutex serializes all per-key mutations.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[assembly.ContentKey]*Record
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryRepository creates an empty in-memory staging store
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRepository{
		records: make(map[assembly.ContentKey]*Record),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for expiry tests
func (r *MemoryRepository) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = now
}

// MergeUpsert creates or merges the record for key
func (r *MemoryRepository) MergeUpsert(_ context.Context, key assembly.ContentKey, facet Facet) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		now := r.nowFunc()
		rec = &Record{
			Key:       key,
			CreatedAt: now,
			ExpiresAt: now.Add(r.ttl),
		}
		r.records[key] = rec
	}
	if facet.Caption != nil {
		rec.Caption = facet.Caption
	}
	if facet.Thumbnail != nil {
		rec.Thumbnail = facet.Thumbnail
	}

	cp := *rec
	return &cp, nil
}

// Get returns the record for key, or nil if absent
func (r *MemoryRepository) Get(_ context.Context, key assembly.ContentKey) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// DeleteIfComplete deletes the record only when both facets are present
func (r *MemoryRepository) DeleteIfComplete(_ context.Context, key assembly.ContentKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok || !rec.Complete() {
		return false, nil
	}
	delete(r.records, key)
	return true, nil
}

// SweepExpired removes and returns expired records still missing a facet
func (r *MemoryRepository) SweepExpired(_ context.Context, now time.Time) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orphans []*Record
	for key, rec := range r.records {
		if rec.ExpiresAt.Before(now) && !rec.Complete() {
			cp := *rec
			orphans = append(orphans, &cp)
			delete(r.records, key)
		}
	}
	return orphans, nil
}

// Len reports the number of staged records
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
