package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

func captionBody(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	data := map[string]any{
		"owner_id":         "seller-1",
		"content_id":       "video-1",
		"title":            "Summer Dress",
		"price":            29.99,
		"tags":             []string{"fashion", "dress"},
		"confidence_score": 0.9,
		"timestamp":        "2025-06-01T12:00:00Z",
	}
	if mutate != nil {
		mutate(data)
	}
	body, err := json.Marshal(map[string]any{"type": assembly.EventCaptionParsed, "data": data})
	require.NoError(t, err)
	return body
}

func thumbnailBody(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	thumb := map[string]any{
		"url":              "https://cdn.example.com/t/1.jpg",
		"storage_key":      "thumbnails/video-1/1.jpg",
		"frame_timestamp":  1.5,
		"frame_index":      45,
		"confidence_score": 0.8,
		"quality_score":    0.7,
		"is_primary":       true,
		"detected_objects": []map[string]any{
			{"class_name": "dress", "confidence": 0.8, "bbox": map[string]float64{"x1": 1, "y1": 2, "x2": 3, "y2": 4}},
		},
	}
	data := map[string]any{
		"owner_id":          "seller-1",
		"content_id":        "video-1",
		"thumbnails":        []any{thumb},
		"primary_thumbnail": thumb,
		"processing_metadata": map[string]any{
			"duration":             12.0,
			"frames_analyzed":      30,
			"thumbnails_generated": 1,
			"processing_time_ms":   2100,
		},
		"timestamp": "2025-06-01T12:00:00Z",
	}
	if mutate != nil {
		mutate(data)
	}
	body, err := json.Marshal(map[string]any{"type": assembly.EventThumbnailGenerated, "data": data})
	require.NoError(t, err)
	return body
}

func TestValidateCaption(t *testing.T) {
	ev, err := Validate(captionBody(t, nil))
	require.NoError(t, err)

	assert.Equal(t, FacetCaption, ev.Kind)
	assert.Equal(t, assembly.ContentKey{OwnerID: "seller-1", ContentID: "video-1"}, ev.Key)
	require.NotNil(t, ev.Caption)
	assert.Nil(t, ev.Thumbnail)
	assert.Equal(t, "Summer Dress", ev.Caption.Title)
	require.NotNil(t, ev.Caption.Price)
	assert.Equal(t, 29.99, *ev.Caption.Price)
	assert.Equal(t, []string{"fashion", "dress"}, ev.Caption.Tags)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp.UTC())
}

func TestValidateCaptionOptionalFields(t *testing.T) {
	ev, err := Validate(captionBody(t, func(data map[string]any) {
		delete(data, "price")
		delete(data, "tags")
		delete(data, "confidence_score")
	}))
	require.NoError(t, err)

	assert.Nil(t, ev.Caption.Price)
	assert.Nil(t, ev.Caption.ConfidenceScore)
	assert.NotNil(t, ev.Caption.Tags, "missing tags normalize to an empty slice")
	assert.Empty(t, ev.Caption.Tags)
}

func TestValidateThumbnail(t *testing.T) {
	ev, err := Validate(thumbnailBody(t, nil))
	require.NoError(t, err)

	assert.Equal(t, FacetThumbnail, ev.Kind)
	require.NotNil(t, ev.Thumbnail)
	assert.Nil(t, ev.Caption)
	require.Len(t, ev.Thumbnail.Thumbnails, 1)
	assert.True(t, ev.Thumbnail.PrimaryThumbnail.IsPrimary)
	assert.Equal(t, 30, ev.Thumbnail.ProcessingMetadata.FramesAnalyzed)
	require.Len(t, ev.Thumbnail.Thumbnails[0].DetectedObjects, 1)
	assert.Equal(t, "dress", ev.Thumbnail.Thumbnails[0].DetectedObjects[0].ClassName)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp.UTC())
}

func TestValidateMalformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{nope")},
		{"missing type", []byte(`{"data": {}}`)},
		{"unknown type", []byte(`{"type": "auto_tagging_complete", "data": {}}`)},
		{"caption missing owner", captionBody(t, func(d map[string]any) { delete(d, "owner_id") })},
		{"caption missing content", captionBody(t, func(d map[string]any) { delete(d, "content_id") })},
		{"caption missing title", captionBody(t, func(d map[string]any) { delete(d, "title") })},
		{"caption negative price", captionBody(t, func(d map[string]any) { d["price"] = -1.0 })},
		{"caption confidence out of range", captionBody(t, func(d map[string]any) { d["confidence_score"] = 1.5 })},
		{"caption wrong field type", captionBody(t, func(d map[string]any) { d["title"] = 42 })},
		{"thumbnail empty list", thumbnailBody(t, func(d map[string]any) { d["thumbnails"] = []any{} })},
		{"thumbnail missing primary", thumbnailBody(t, func(d map[string]any) { d["primary_thumbnail"] = map[string]any{} })},
		{"thumbnail missing storage key", thumbnailBody(t, func(d map[string]any) {
			d["thumbnails"] = []any{map[string]any{"url": "https://x/1.jpg"}}
		})},
		{"thumbnail primary missing storage key", thumbnailBody(t, func(d map[string]any) {
			d["primary_thumbnail"] = map[string]any{"url": "https://x/1.jpg"}
		})},
		{"thumbnail missing processing metadata", thumbnailBody(t, func(d map[string]any) { delete(d, "processing_metadata") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Validate(tt.body)
			assert.Nil(t, ev)
			require.Error(t, err)
			assert.True(t, IsMalformed(err), "expected a malformed-event error, got %v", err)
		})
	}
}

func TestMalformedErrorCarriesEventType(t *testing.T) {
	_, err := Validate(captionBody(t, func(d map[string]any) { delete(d, "title") }))
	require.Error(t, err)

	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, assembly.EventCaptionParsed, me.EventType)
	assert.Contains(t, me.Error(), "title")
}

func TestFacetKindEventType(t *testing.T) {
	assert.Equal(t, assembly.EventCaptionParsed, FacetCaption.EventType())
	assert.Equal(t, assembly.EventThumbnailGenerated, FacetThumbnail.EventType())
}
