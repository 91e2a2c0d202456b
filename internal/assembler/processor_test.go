package assembler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-commerce-assembly/internal/events"
	"github.com/tendant/simple-commerce-assembly/internal/metrics"
	"github.com/tendant/simple-commerce-assembly/internal/products"
	"github.com/tendant/simple-commerce-assembly/internal/staging"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// recordingNotifier captures broadcasts for assertions
type recordingNotifier struct {
	mu     sync.Mutex
	owners []string
	sent   []*assembly.AssembledProduct
}

func (n *recordingNotifier) Broadcast(ownerID string, product *assembly.AssembledProduct) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owners = append(n.owners, ownerID)
	n.sent = append(n.sent, product)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	staging  *staging.MemoryRepository
	products *products.MemoryRepository
	notifier *recordingNotifier
	proc     *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		staging:  staging.NewMemoryRepository(time.Hour),
		products: products.NewMemoryRepository(),
		notifier: &recordingNotifier{},
	}
	f.proc = NewProcessor(f.staging, f.products, f.notifier, metrics.NewUnregistered())
	return f
}

func captionEvent(key assembly.ContentKey, title string) *events.Validated {
	price := 19.99
	return &events.Validated{
		Key:  key,
		Kind: events.FacetCaption,
		Caption: &assembly.CaptionFacet{
			Title: title,
			Price: &price,
			Tags:  []string{"fashion", "dress"},
		},
	}
}

func thumbnailEvent(key assembly.ContentKey) *events.Validated {
	thumb := assembly.ThumbnailInfo{
		URL:        "https://cdn.example.com/" + key.ContentID + ".jpg",
		StorageKey: key.ContentID + ".jpg",
		IsPrimary:  true,
	}
	return &events.Validated{
		Key:  key,
		Kind: events.FacetThumbnail,
		Thumbnail: &assembly.ThumbnailFacet{
			Thumbnails:         []assembly.ThumbnailInfo{thumb},
			PrimaryThumbnail:   thumb,
			ProcessingMetadata: assembly.ProcessingMetadata{FramesAnalyzed: 30, ThumbnailsGenerated: 1},
		},
	}
}

var key1 = assembly.ContentKey{OwnerID: "seller-1", ContentID: "video-1"}

func TestProcessCaptionThenThumbnail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.Process(ctx, "m1", captionEvent(key1, "Summer Dress")))

	// One facet only: nothing assembled yet
	assert.Equal(t, 0, f.products.Len())
	assert.Equal(t, 0, f.notifier.count())
	assert.Equal(t, 1, f.staging.Len())

	require.NoError(t, f.proc.Process(ctx, "m2", thumbnailEvent(key1)))

	// Both facets: product assembled, staging cleaned, one broadcast
	product, err := f.products.GetOne(ctx, key1)
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Summer Dress", product.Title)
	require.NotNil(t, product.Price)
	assert.Equal(t, 19.99, *product.Price)
	assert.Equal(t, []string{"fashion", "dress"}, product.Tags)
	require.Len(t, product.Thumbnails, 1)
	assert.Equal(t, 30, product.ProcessingMetadata.FramesAnalyzed)

	assert.Equal(t, 0, f.staging.Len(), "staging record removed after assembly")
	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "seller-1", f.notifier.owners[0])
}

func TestProcessOrderIndependence(t *testing.T) {
	forward := newFixture(t)
	reverse := newFixture(t)
	ctx := context.Background()

	require.NoError(t, forward.proc.Process(ctx, "m1", captionEvent(key1, "Dress")))
	require.NoError(t, forward.proc.Process(ctx, "m2", thumbnailEvent(key1)))

	require.NoError(t, reverse.proc.Process(ctx, "m1", thumbnailEvent(key1)))
	require.NoError(t, reverse.proc.Process(ctx, "m2", captionEvent(key1, "Dress")))

	a, err := forward.products.GetOne(ctx, key1)
	require.NoError(t, err)
	b, err := reverse.products.GetOne(ctx, key1)
	require.NoError(t, err)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.Title, b.Title)
	assert.Equal(t, a.Tags, b.Tags)
	assert.Equal(t, a.Thumbnails, b.Thumbnails)
	assert.Equal(t, a.ProcessingMetadata, b.ProcessingMetadata)
}

func TestProcessIdempotentUnderRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Replay both events several times in mixed order
	deliveries := []*events.Validated{
		captionEvent(key1, "Dress"),
		captionEvent(key1, "Dress"),
		thumbnailEvent(key1),
		thumbnailEvent(key1),
		captionEvent(key1, "Dress"),
		thumbnailEvent(key1),
	}
	for i, ev := range deliveries {
		require.NoError(t, f.proc.Process(ctx, fmt.Sprintf("m%d", i), ev))
	}

	assert.Equal(t, 1, f.products.Len(), "exactly one product regardless of redelivery")
	assert.Equal(t, 1, f.notifier.count(), "duplicates must not re-notify")
	assert.Equal(t, 0, f.staging.Len())
}

func TestProcessDuplicateAfterAssemblyIsSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.Process(ctx, "m1", captionEvent(key1, "Dress")))
	require.NoError(t, f.proc.Process(ctx, "m2", thumbnailEvent(key1)))
	require.Equal(t, 1, f.notifier.count())

	// Redelivered caption restages one facet; the existing product
	// suppresses re-assembly and re-notification. The incomplete
	// restaged record is left for the sweeper.
	require.NoError(t, f.proc.Process(ctx, "m3", captionEvent(key1, "Dress")))

	assert.Equal(t, 1, f.products.Len())
	assert.Equal(t, 1, f.notifier.count())
}

func TestProcessRedeliveryAfterCrashCleansStaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate a crash between product insert and staging delete: the
	// product exists while the complete staging record lingers
	require.NoError(t, f.proc.Process(ctx, "m1", captionEvent(key1, "Dress")))
	rec, err := f.staging.MergeUpsert(ctx, key1, staging.Facet{Thumbnail: thumbnailEvent(key1).Thumbnail})
	require.NoError(t, err)
	require.True(t, rec.Complete())

	product := buildProduct(rec, time.Now())
	inserted, err := f.products.InsertIfAbsent(ctx, product)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, 1, f.staging.Len(), "crash left the staging record behind")

	// Redelivery completes the interrupted cleanup without a second
	// product or broadcast
	require.NoError(t, f.proc.Process(ctx, "m2", thumbnailEvent(key1)))

	assert.Equal(t, 0, f.staging.Len())
	assert.Equal(t, 1, f.products.Len())
	assert.Equal(t, 0, f.notifier.count())
}

func TestProcessConcurrentFacetsSameKey(t *testing.T) {
	ctx := context.Background()

	// Repeated randomized interleavings: the per-key atomic merge must
	// never lose a facet
	for i := 0; i < 200; i++ {
		f := newFixture(t)
		key := assembly.ContentKey{OwnerID: "seller-1", ContentID: fmt.Sprintf("video-%d", i)}

		var wg sync.WaitGroup
		wg.Add(2)
		errs := make(chan error, 2)
		go func() {
			defer wg.Done()
			errs <- f.proc.Process(ctx, "ca", captionEvent(key, "Dress"))
		}()
		go func() {
			defer wg.Done()
			errs <- f.proc.Process(ctx, "th", thumbnailEvent(key))
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		product, err := f.products.GetOne(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, product, "iteration %d: product missing", i)
		assert.Equal(t, "Dress", product.Title, "iteration %d: caption facet lost", i)
		require.Len(t, product.Thumbnails, 1, "iteration %d: thumbnail facet lost", i)
		assert.Equal(t, 0, f.staging.Len(), "iteration %d: staging not cleaned", i)
		assert.Equal(t, 1, f.notifier.count(), "iteration %d: want exactly one broadcast", i)
	}
}

func TestProcessDistinctKeysIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key2 := assembly.ContentKey{OwnerID: "seller-2", ContentID: "video-9"}

	require.NoError(t, f.proc.Process(ctx, "m1", captionEvent(key1, "Dress")))
	require.NoError(t, f.proc.Process(ctx, "m2", thumbnailEvent(key2)))

	// Neither key is complete; facets must not cross keys
	assert.Equal(t, 0, f.products.Len())
	assert.Equal(t, 2, f.staging.Len())
}
