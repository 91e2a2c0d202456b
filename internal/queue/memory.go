package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process queue transport for development mode
// and tests. Redelivery on Nack is honored; visibility timeouts are
// not emulated since nothing survives the process anyway.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan *Message
	size   int
}

// NewMemoryBroker creates a broker with bounded per-queue buffers
func NewMemoryBroker(queueSize int) *MemoryBroker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &MemoryBroker{
		queues: make(map[string]chan *Message),
		size:   queueSize,
	}
}

func (b *MemoryBroker) queue(name string) chan *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan *Message, b.size)
		b.queues[name] = ch
	}
	return ch
}

// Publish enqueues one message body and returns its message ID
func (b *MemoryBroker) Publish(ctx context.Context, queue string, body []byte) (string, error) {
	msg := &Message{ID: uuid.New().String(), Body: body}
	select {
	case b.queue(queue) <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Source returns a consumer view of one queue
func (b *MemoryBroker) Source(cfg SourceConfig) *MemorySource {
	cfg.WithDefaults()
	return &MemorySource{broker: b, cfg: cfg}
}

// MemorySource consumes one queue of a MemoryBroker
type MemorySource struct {
	broker *MemoryBroker
	cfg    SourceConfig
}

// Receive blocks until a message arrives or ctx is done
func (s *MemorySource) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-s.broker.queue(s.cfg.Queue):
		msg.ReceiveCount++
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack removes the message; nothing to do in memory
func (s *MemorySource) Ack(_ context.Context, _ *Message) error {
	return nil
}

// Nack re-enqueues the message after the nack delay
func (s *MemorySource) Nack(_ context.Context, msg *Message) error {
	ch := s.broker.queue(s.cfg.Queue)
	time.AfterFunc(s.cfg.NackDelay, func() {
		select {
		case ch <- msg:
		default:
			// Queue full; the message is lost, which dev mode accepts
		}
	})
	return nil
}
