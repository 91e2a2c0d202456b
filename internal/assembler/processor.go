package assembler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tendant/simple-commerce-assembly/internal/events"
	"github.com/tendant/simple-commerce-assembly/internal/metrics"
	"github.com/tendant/simple-commerce-assembly/internal/products"
	"github.com/tendant/simple-commerce-assembly/internal/staging"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// Notifier delivers assembled-product notifications to live subscribers
type Notifier interface {
	Broadcast(ownerID string, product *assembly.AssembledProduct)
}

// Processor is the event-driven assembly core: it merges validated
// facet events into staging, detects completion, persists the product
// exactly once, and fans out a notification.
//
// Every step is idempotent, so a transient failure at any point leaves
// the message unacknowledged and the whole sequence safe to replay.
type Processor struct {
	staging  staging.Repository
	products products.Repository
	notifier Notifier
	metrics  *metrics.Metrics
	nowFunc  func() time.Time
}

// NewProcessor creates the assembly processor
func NewProcessor(stagingRepo staging.Repository, productRepo products.Repository, notifier Notifier, m *metrics.Metrics) *Processor {
	return &Processor{
		staging:  stagingRepo,
		products: productRepo,
		notifier: notifier,
		metrics:  m,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock, for tests
func (p *Processor) SetNowFunc(now func() time.Time) {
	p.nowFunc = now
}

// Process handles one validated event. A returned error is transient:
// the caller must leave the message unacknowledged so the transport
// redelivers it.
func (p *Processor) Process(ctx context.Context, msgID string, ev *events.Validated) error {
	// Step 1: merge the facet into staging. The upsert is atomic per
	// key and returns the merged record, so a concurrent sibling write
	// cannot be lost.
	rec, err := p.staging.MergeUpsert(ctx, ev.Key, staging.Facet{
		Caption:   ev.Caption,
		Thumbnail: ev.Thumbnail,
	})
	if err != nil {
		return fmt.Errorf("staging merge failed for %s: %w", ev.Key, err)
	}

	// Step 2: completeness test
	if !rec.Complete() {
		log.Printf("[%s] Staged %s facet for %s (event_time=%s), waiting for %s", msgID, ev.Kind, ev.Key, ev.Timestamp.Format(time.RFC3339), rec.MissingFacet())
		return nil
	}

	// Step 3: both facets present, assemble and persist
	product := buildProduct(rec, p.nowFunc())

	inserted, err := p.products.InsertIfAbsent(ctx, product)
	if err != nil {
		return fmt.Errorf("product insert failed for %s: %w", ev.Key, err)
	}

	// Step 4: clean up staging. Guarded by completeness, so a record
	// that somehow regressed is left alone; absent records are a no-op.
	if _, err := p.staging.DeleteIfComplete(ctx, ev.Key); err != nil {
		return fmt.Errorf("staging cleanup failed for %s: %w", ev.Key, err)
	}

	if !inserted {
		// Another delivery already completed this key
		log.Printf("[%s] Duplicate assembly suppressed for %s", msgID, ev.Key)
		p.metrics.DuplicatesSuppressed.Inc()
		return nil
	}

	log.Printf("[%s] Assembled product %s (title=%q, thumbnails=%d)", msgID, ev.Key, product.Title, len(product.Thumbnails))
	p.metrics.ProductsAssembled.Inc()

	if p.notifier != nil {
		p.notifier.Broadcast(product.OwnerID, product)
	}
	return nil
}

// buildProduct merges the last-seen facets into the final record
func buildProduct(rec *staging.Record, now time.Time) *assembly.AssembledProduct {
	caption := rec.Caption
	thumbnail := rec.Thumbnail

	tags := caption.Tags
	if tags == nil {
		tags = []string{}
	}

	return &assembly.AssembledProduct{
		OwnerID:            rec.Key.OwnerID,
		ContentID:          rec.Key.ContentID,
		Title:              caption.Title,
		Price:              caption.Price,
		SizeSpec:           caption.SizeSpec,
		Tags:               tags,
		Thumbnails:         thumbnail.Thumbnails,
		PrimaryThumbnail:   thumbnail.PrimaryThumbnail,
		ConfidenceScore:    caption.ConfidenceScore,
		RawText:            caption.RawText,
		ProcessingMetadata: thumbnail.ProcessingMetadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
