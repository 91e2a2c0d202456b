package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// FacetKind identifies which facet slot an event populates
type FacetKind string

const (
	FacetCaption   FacetKind = "caption"
	FacetThumbnail FacetKind = "thumbnail"
)

// EventType returns the wire discriminator for this facet kind
func (k FacetKind) EventType() string {
	if k == FacetCaption {
		return assembly.EventCaptionParsed
	}
	return assembly.EventThumbnailGenerated
}

// envelope is the outer message shape published by the workers:
// {"type": "...", "data": {...}}
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Validated is a schema-checked event ready for the processor.
// Exactly one of Caption/Thumbnail is set, matching Kind.
type Validated struct {
	Key       assembly.ContentKey
	Kind      FacetKind
	Caption   *assembly.CaptionFacet
	Thumbnail *assembly.ThumbnailFacet
	Timestamp time.Time
}

// Validate parses raw message bytes and checks them against the known
// event shapes. Schema violations come back as *MalformedError and must
// not be retried.
func Validate(body []byte) (*Validated, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedError{Reason: fmt.Sprintf("invalid JSON envelope: %v", err)}
	}

	switch env.Type {
	case assembly.EventCaptionParsed:
		return validateCaption(env.Data)
	case assembly.EventThumbnailGenerated:
		return validateThumbnail(env.Data)
	case "":
		return nil, &MalformedError{Reason: "missing event type"}
	default:
		return nil, &MalformedError{EventType: env.Type, Reason: "unknown event type"}
	}
}

func validateCaption(data []byte) (*Validated, error) {
	var ev assembly.CaptionParsedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &MalformedError{EventType: assembly.EventCaptionParsed, Reason: fmt.Sprintf("invalid payload: %v", err)}
	}

	if err := requireKey(ev.OwnerID, ev.ContentID); err != nil {
		return nil, &MalformedError{EventType: assembly.EventCaptionParsed, Reason: err.Error()}
	}
	if ev.Title == "" {
		return nil, &MalformedError{EventType: assembly.EventCaptionParsed, Reason: "title is required"}
	}
	if ev.Price != nil && *ev.Price < 0 {
		return nil, &MalformedError{EventType: assembly.EventCaptionParsed, Reason: "price must not be negative"}
	}
	if ev.ConfidenceScore != nil && (*ev.ConfidenceScore < 0 || *ev.ConfidenceScore > 1) {
		return nil, &MalformedError{EventType: assembly.EventCaptionParsed, Reason: "confidence_score must be within [0, 1]"}
	}

	tags := ev.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Validated{
		Key:  assembly.ContentKey{OwnerID: ev.OwnerID, ContentID: ev.ContentID},
		Kind: FacetCaption,
		Caption: &assembly.CaptionFacet{
			Title:           ev.Title,
			Price:           ev.Price,
			SizeSpec:        ev.SizeSpec,
			Tags:            tags,
			ConfidenceScore: ev.ConfidenceScore,
			RawText:         ev.RawText,
		},
		Timestamp: ev.Timestamp,
	}, nil
}

func validateThumbnail(data []byte) (*Validated, error) {
	var ev assembly.ThumbnailGeneratedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: fmt.Sprintf("invalid payload: %v", err)}
	}

	if err := requireKey(ev.OwnerID, ev.ContentID); err != nil {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: err.Error()}
	}
	if len(ev.Thumbnails) == 0 {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: "thumbnails must not be empty"}
	}
	for i, t := range ev.Thumbnails {
		if t.URL == "" {
			return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: fmt.Sprintf("thumbnails[%d].url is required", i)}
		}
		if t.StorageKey == "" {
			return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: fmt.Sprintf("thumbnails[%d].storage_key is required", i)}
		}
	}
	if ev.PrimaryThumbnail.URL == "" {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: "primary_thumbnail.url is required"}
	}
	if ev.PrimaryThumbnail.StorageKey == "" {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: "primary_thumbnail.storage_key is required"}
	}
	if ev.ProcessingMetadata == (assembly.ProcessingMetadata{}) {
		return nil, &MalformedError{EventType: assembly.EventThumbnailGenerated, Reason: "processing_metadata is required"}
	}

	return &Validated{
		Key:  assembly.ContentKey{OwnerID: ev.OwnerID, ContentID: ev.ContentID},
		Kind: FacetThumbnail,
		Thumbnail: &assembly.ThumbnailFacet{
			Thumbnails:         ev.Thumbnails,
			PrimaryThumbnail:   ev.PrimaryThumbnail,
			ProcessingMetadata: ev.ProcessingMetadata,
		},
		Timestamp: ev.Timestamp,
	}, nil
}

func requireKey(ownerID, contentID string) error {
	if ownerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if contentID == "" {
		return fmt.Errorf("content_id is required")
	}
	return nil
}
