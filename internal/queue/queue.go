package queue

import (
	"context"
	"time"
)

// Queue names, one per inbound event stream
const (
	QueueCaptionParsed      = "caption_parsed"
	QueueThumbnailGenerated = "thumbnail_generated"
)

// Message is one received queue message. The transport guarantees
// at-least-once delivery: a message not acknowledged within the
// visibility window comes back.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
}

// Source is a pull-based view of one queue
type Source interface {
	// Receive returns the next available message, or (nil, nil) when
	// the queue is currently empty. Implementations may block until a
	// message arrives or ctx is done.
	Receive(ctx context.Context) (*Message, error)

	// Ack removes a received message permanently
	Ack(ctx context.Context, msg *Message) error

	// Nack returns a received message for redelivery
	Nack(ctx context.Context, msg *Message) error
}

// Publisher enqueues raw message bodies
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) (string, error)
}

// SourceConfig holds per-queue transport settings
type SourceConfig struct {
	// Queue is the queue name to consume. Required.
	Queue string

	// VisibilityTimeout is how long a received message stays hidden
	// before redelivery. Optional. Defaults to 30s.
	VisibilityTimeout time.Duration

	// NackDelay is how long a rejected message waits before
	// redelivery. Optional. Defaults to 5s.
	NackDelay time.Duration
}

// WithDefaults fills in default values for optional fields
func (c *SourceConfig) WithDefaults() {
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.NackDelay == 0 {
		c.NackDelay = 5 * time.Second
	}
}
