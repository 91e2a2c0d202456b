package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-commerce-assembly/internal/assembler"
	"github.com/tendant/simple-commerce-assembly/internal/events"
	"github.com/tendant/simple-commerce-assembly/internal/metrics"
)

// ConsumerConfig holds consumption loop settings
type ConsumerConfig struct {
	// Name identifies this consumer in logs. Required.
	Name string

	// Concurrency is the number of concurrent workers. Optional.
	// Defaults to 4.
	Concurrency int

	// PollInterval is how long a worker sleeps when the queue is
	// empty. Optional. Defaults to 1s.
	PollInterval time.Duration
}

// WithDefaults fills in default values for optional fields
func (c *ConsumerConfig) WithDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
}

// Consumer runs a pool of workers pulling messages from one source and
// feeding them through the assembly processor.
//
// Acknowledgment policy: malformed messages are acknowledged and
// dropped (retry cannot fix a schema violation); transient processing
// failures leave the message for redelivery.
type Consumer struct {
	source    Source
	processor *assembler.Processor
	metrics   *metrics.Metrics
	cfg       ConsumerConfig
}

// NewConsumer creates a consumer over the given source
func NewConsumer(source Source, processor *assembler.Processor, m *metrics.Metrics, cfg ConsumerConfig) *Consumer {
	cfg.WithDefaults()
	return &Consumer{
		source:    source,
		processor: processor,
		metrics:   m,
		cfg:       cfg,
	}
}

// Run consumes until ctx is canceled. Cancellation stops receiving;
// messages already in flight finish processing before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("✓ Consumer %s starting with %d workers", c.cfg.Name, c.cfg.Concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			return c.worker(ctx)
		})
	}
	err := g.Wait()
	log.Printf("Consumer %s stopped", c.cfg.Name)
	return err
}

func (c *Consumer) worker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Consumer %s receive failed: %v", c.cfg.Name, err)
			c.sleep(ctx)
			continue
		}
		if msg == nil {
			c.sleep(ctx)
			continue
		}

		// In-flight messages finish even if shutdown starts mid-handle
		c.handle(context.WithoutCancel(ctx), msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *Message) {
	ev, err := events.Validate(msg.Body)
	if err != nil {
		// Non-retriable: ack so the poison message never loops
		eventType := "unknown"
		var me *events.MalformedError
		if errors.As(err, &me) && me.EventType != "" {
			eventType = me.EventType
		}
		log.Printf("[%s] Dropping malformed message: %v", msg.ID, err)
		c.metrics.MalformedEvents.WithLabelValues(eventType).Inc()
		if ackErr := c.source.Ack(ctx, msg); ackErr != nil {
			log.Printf("[%s] Failed to ack malformed message: %v", msg.ID, ackErr)
		}
		return
	}

	c.metrics.EventsReceived.WithLabelValues(ev.Kind.EventType()).Inc()

	if err := c.processor.Process(ctx, msg.ID, ev); err != nil {
		// Transient: leave the message for redelivery
		log.Printf("[%s] Processing failed (attempt %d), leaving for redelivery: %v", msg.ID, msg.ReceiveCount, err)
		c.metrics.ProcessingErrors.WithLabelValues(ev.Kind.EventType()).Inc()
		if nackErr := c.source.Nack(ctx, msg); nackErr != nil {
			log.Printf("[%s] Failed to nack message: %v", msg.ID, nackErr)
		}
		return
	}

	if err := c.source.Ack(ctx, msg); err != nil {
		// The message will be redelivered; processing is idempotent
		log.Printf("[%s] Failed to ack processed message: %v", msg.ID, err)
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	select {
	case <-time.After(c.cfg.PollInterval):
	case <-ctx.Done():
	}
}
