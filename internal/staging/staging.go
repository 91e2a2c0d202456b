package staging

import (
	"context"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// DefaultTTL bounds how long a partial record waits for its sibling facet
const DefaultTTL = 24 * time.Hour

// Record is a partially-assembled product awaiting both facets
type Record struct {
	Key       assembly.ContentKey
	Caption   *assembly.CaptionFacet
	Thumbnail *assembly.ThumbnailFacet
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Complete reports whether both facets are present
func (r *Record) Complete() bool {
	return r.Caption != nil && r.Thumbnail != nil
}

// MissingFacet names the absent facet slot, or "" when complete.
// When both are missing (never stored), caption is reported first.
func (r *Record) MissingFacet() string {
	if r.Caption == nil {
		return "caption"
	}
	if r.Thumbnail == nil {
		return "thumbnail"
	}
	return ""
}

// Facet is a single facet value destined for one slot of a record.
// Exactly one field is non-nil.
type Facet struct {
	Caption   *assembly.CaptionFacet
	Thumbnail *assembly.ThumbnailFacet
}

// Repository is the keyed store of partially-assembled records.
//
// MergeUpsert and DeleteIfComplete must be atomic with respect to
// concurrent callers touching the same key: two near-simultaneous
// facet writes must both land, and a delete must not remove a record
// whose second facet arrived after the caller's completeness check.
type Repository interface {
	// MergeUpsert creates the record for key with a fresh expiry if it
	// does not exist, otherwise sets the given facet slot. Returns the
	// merged record as stored.
	MergeUpsert(ctx context.Context, key assembly.ContentKey, facet Facet) (*Record, error)

	// Get returns the current record for key, or nil if absent
	Get(ctx context.Context, key assembly.ContentKey) (*Record, error)

	// DeleteIfComplete deletes the record for key only if both facets
	// are present at the time of deletion. Returns whether a record was
	// deleted. Absent records are a no-op.
	DeleteIfComplete(ctx context.Context, key assembly.ContentKey) (bool, error)

	// SweepExpired removes and returns all records past expiry that are
	// still missing a facet
	SweepExpired(ctx context.Context, now time.Time) ([]*Record, error)
}
