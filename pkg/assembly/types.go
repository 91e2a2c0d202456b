package assembly

import "time"

// ContentKey identifies one logical product across both event streams
type ContentKey struct {
	OwnerID   string `json:"owner_id"`
	ContentID string `json:"content_id"`
}

// String returns "owner_id/content_id" for logging
func (k ContentKey) String() string {
	return k.OwnerID + "/" + k.ContentID
}

// CaptionFacet holds the caption-analysis output for a content item
type CaptionFacet struct {
	Title           string   `json:"title"`
	Price           *float64 `json:"price,omitempty"`
	SizeSpec        *string  `json:"size_spec,omitempty"`
	Tags            []string `json:"tags"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	RawText         *string  `json:"raw_text,omitempty"`
}

// BoundingBox is a detection rectangle in frame pixel coordinates
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectedObject is a single object detection within a frame
type DetectedObject struct {
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// ThumbnailInfo describes one generated thumbnail candidate
type ThumbnailInfo struct {
	URL             string           `json:"url"`
	StorageKey      string           `json:"storage_key"`
	FrameTimestamp  float64          `json:"frame_timestamp"`
	FrameIndex      int              `json:"frame_index"`
	ConfidenceScore float64          `json:"confidence_score"`
	QualityScore    float64          `json:"quality_score"`
	IsPrimary       bool             `json:"is_primary"`
	DetectedObjects []DetectedObject `json:"detected_objects"`
}

// ProcessingMetadata describes the thumbnail worker's processing run
type ProcessingMetadata struct {
	Duration            float64 `json:"duration"`
	FramesAnalyzed      int     `json:"frames_analyzed"`
	ThumbnailsGenerated int     `json:"thumbnails_generated"`
	ProcessingTimeMs    int64   `json:"processing_time_ms"`
}

// ThumbnailFacet holds the thumbnail-analysis output for a content item
type ThumbnailFacet struct {
	Thumbnails         []ThumbnailInfo    `json:"thumbnails"`
	PrimaryThumbnail   ThumbnailInfo      `json:"primary_thumbnail"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
}

// AssembledProduct is the merged commerce record, created exactly once
// per ContentKey and never mutated afterwards
type AssembledProduct struct {
	OwnerID            string             `json:"owner_id"`
	ContentID          string             `json:"content_id"`
	Title              string             `json:"title"`
	Price              *float64           `json:"price,omitempty"`
	SizeSpec           *string            `json:"size_spec,omitempty"`
	Tags               []string           `json:"tags"`
	Thumbnails         []ThumbnailInfo    `json:"thumbnails"`
	PrimaryThumbnail   ThumbnailInfo      `json:"primary_thumbnail"`
	ConfidenceScore    *float64           `json:"confidence_score,omitempty"`
	RawText            *string            `json:"raw_text,omitempty"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Key returns the product's ContentKey
func (p *AssembledProduct) Key() ContentKey {
	return ContentKey{OwnerID: p.OwnerID, ContentID: p.ContentID}
}

// Event type constants (envelope discriminators)
const (
	EventCaptionParsed      = "caption_parsed"
	EventThumbnailGenerated = "thumbnail_generated"
)

// CaptionParsedEvent is the wire payload emitted by the caption worker
type CaptionParsedEvent struct {
	OwnerID         string    `json:"owner_id"`
	ContentID       string    `json:"content_id"`
	Title           string    `json:"title"`
	Price           *float64  `json:"price,omitempty"`
	SizeSpec        *string   `json:"size_spec,omitempty"`
	Tags            []string  `json:"tags"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	RawText         *string   `json:"raw_text,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ThumbnailGeneratedEvent is the wire payload emitted by the thumbnail worker
type ThumbnailGeneratedEvent struct {
	OwnerID            string             `json:"owner_id"`
	ContentID          string             `json:"content_id"`
	Thumbnails         []ThumbnailInfo    `json:"thumbnails"`
	PrimaryThumbnail   ThumbnailInfo      `json:"primary_thumbnail"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
	Timestamp          time.Time          `json:"timestamp"`
}

// ProductPage is one page of products from the query interface
type ProductPage struct {
	Products   []*AssembledProduct `json:"products"`
	Count      int                 `json:"count"`
	HasMore    bool                `json:"has_more"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
