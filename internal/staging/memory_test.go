package staging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

var testKey = assembly.ContentKey{OwnerID: "seller-1", ContentID: "video-1"}

func captionFacet(title string) Facet {
	return Facet{Caption: &assembly.CaptionFacet{Title: title, Tags: []string{"fashion"}}}
}

func thumbnailFacet() Facet {
	thumb := assembly.ThumbnailInfo{URL: "https://cdn.example.com/t/1.jpg", StorageKey: "t/1.jpg", IsPrimary: true}
	return Facet{Thumbnail: &assembly.ThumbnailFacet{
		Thumbnails:       []assembly.ThumbnailInfo{thumb},
		PrimaryThumbnail: thumb,
	}}
}

func TestMergeUpsertCreatesWithExpiry(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	rec, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	assert.Equal(t, testKey, rec.Key)
	require.NotNil(t, rec.Caption)
	assert.Nil(t, rec.Thumbnail)
	assert.False(t, rec.Complete())
	assert.Equal(t, "thumbnail", rec.MissingFacet())
	assert.WithinDuration(t, rec.CreatedAt.Add(time.Hour), rec.ExpiresAt, time.Second)
}

func TestMergeUpsertKeepsSiblingFacet(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	rec, err := repo.MergeUpsert(ctx, testKey, thumbnailFacet())
	require.NoError(t, err)

	require.NotNil(t, rec.Caption, "caption facet must survive the thumbnail merge")
	require.NotNil(t, rec.Thumbnail)
	assert.True(t, rec.Complete())
	assert.Equal(t, "", rec.MissingFacet())
}

func TestMergeUpsertOverwritesSameSlot(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("First"))
	require.NoError(t, err)

	rec, err := repo.MergeUpsert(ctx, testKey, captionFacet("Second"))
	require.NoError(t, err)

	assert.Equal(t, "Second", rec.Caption.Title, "redelivered facet takes the slot")
}

func TestMergeUpsertKeepsOriginalExpiry(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	first, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	second, err := repo.MergeUpsert(ctx, testKey, thumbnailFacet())
	require.NoError(t, err)

	assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "merging must not extend the TTL window")
}

func TestGetAbsent(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)

	rec, err := repo.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteIfCompleteGuardsIncomplete(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	deleted, err := repo.DeleteIfComplete(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, deleted, "a record missing a facet must not be deleted")

	rec, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestDeleteIfComplete(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)
	_, err = repo.MergeUpsert(ctx, testKey, thumbnailFacet())
	require.NoError(t, err)

	deleted, err := repo.DeleteIfComplete(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, deleted)

	rec, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Second delete is a no-op
	deleted, err = repo.DeleteIfComplete(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSweepExpired(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	base := time.Now()
	repo.SetNowFunc(func() time.Time { return base })

	// Expired and incomplete: swept
	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	// Complete records are never swept, even past expiry
	completeKey := assembly.ContentKey{OwnerID: "seller-1", ContentID: "video-2"}
	_, err = repo.MergeUpsert(ctx, completeKey, captionFacet("Shoes"))
	require.NoError(t, err)
	_, err = repo.MergeUpsert(ctx, completeKey, thumbnailFacet())
	require.NoError(t, err)

	// Fresh and incomplete: not yet expired
	freshKey := assembly.ContentKey{OwnerID: "seller-2", ContentID: "video-3"}
	repo.SetNowFunc(func() time.Time { return base.Add(2 * time.Hour) })
	_, err = repo.MergeUpsert(ctx, freshKey, thumbnailFacet())
	require.NoError(t, err)

	orphans, err := repo.SweepExpired(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)

	require.Len(t, orphans, 1)
	assert.Equal(t, testKey, orphans[0].Key)
	assert.Equal(t, "thumbnail", orphans[0].MissingFacet())
	assert.Equal(t, 2, repo.Len(), "complete and fresh records remain")
}

func TestLateFacetAfterSweepStartsFresh(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	ctx := context.Background()

	base := time.Now()
	repo.SetNowFunc(func() time.Time { return base })

	_, err := repo.MergeUpsert(ctx, testKey, captionFacet("Dress"))
	require.NoError(t, err)

	_, err = repo.SweepExpired(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)

	// The sibling facet arriving after the sweep creates a fresh record
	// with a fresh TTL window
	repo.SetNowFunc(func() time.Time { return base.Add(3 * time.Hour) })
	rec, err := repo.MergeUpsert(ctx, testKey, thumbnailFacet())
	require.NoError(t, err)

	assert.Nil(t, rec.Caption)
	require.NotNil(t, rec.Thumbnail)
	assert.Equal(t, base.Add(3*time.Hour).Add(time.Hour), rec.ExpiresAt)
}
