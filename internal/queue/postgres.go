package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// PostgresSource consumes one queue backed by a Postgres table.
// Receive hides the claimed row for the visibility timeout via
// FOR UPDATE SKIP LOCKED, so concurrent workers never claim the same
// message and a crashed worker's message resurfaces on its own.
type PostgresSource struct {
	db  *sql.DB
	cfg SourceConfig
}

// NewPostgresSource creates the source and ensures the queue table exists
func NewPostgresSource(db *sql.DB, cfg SourceConfig) (*PostgresSource, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	cfg.WithDefaults()

	src := &PostgresSource{db: db, cfg: cfg}
	if err := ensureQueueTable(db); err != nil {
		return nil, err
	}
	return src, nil
}

func ensureQueueTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS assembly_queue (
			id UUID PRIMARY KEY,
			queue TEXT NOT NULL,
			body BYTEA NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			visible_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			receive_count INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create assembly_queue table: %w", err)
	}

	indexQuery := `
		CREATE INDEX IF NOT EXISTS assembly_queue_visible_idx
		ON assembly_queue (queue, visible_at, enqueued_at)
	`
	if _, err := db.Exec(indexQuery); err != nil {
		return fmt.Errorf("failed to create queue index: %w", err)
	}

	log.Printf("✓ assembly_queue table ready")
	return nil
}

// Receive claims the next visible message, or returns (nil, nil) when
// the queue is empty
func (s *PostgresSource) Receive(ctx context.Context) (*Message, error) {
	query := `
		UPDATE assembly_queue
		SET visible_at = NOW() + make_interval(secs => $2),
		    receive_count = receive_count + 1
		WHERE id = (
			SELECT id FROM assembly_queue
			WHERE queue = $1 AND visible_at <= NOW()
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, body, receive_count
	`

	var msg Message
	err := s.db.QueryRowContext(ctx, query, s.cfg.Queue, s.cfg.VisibilityTimeout.Seconds()).
		Scan(&msg.ID, &msg.Body, &msg.ReceiveCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", s.cfg.Queue, err)
	}
	return &msg, nil
}

// Ack deletes the message permanently
func (s *PostgresSource) Ack(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assembly_queue WHERE id = $1`, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}

// Nack makes the message visible again after the nack delay
func (s *PostgresSource) Nack(ctx context.Context, msg *Message) error {
	query := `
		UPDATE assembly_queue
		SET visible_at = NOW() + make_interval(secs => $2)
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, msg.ID, s.cfg.NackDelay.Seconds())
	if err != nil {
		return fmt.Errorf("failed to nack message %s: %w", msg.ID, err)
	}
	return nil
}

// PostgresPublisher enqueues messages into the shared queue table
type PostgresPublisher struct {
	db *sql.DB
}

// NewPostgresPublisher creates the publisher and ensures the queue table exists
func NewPostgresPublisher(db *sql.DB) (*PostgresPublisher, error) {
	if err := ensureQueueTable(db); err != nil {
		return nil, err
	}
	return &PostgresPublisher{db: db}, nil
}

// Publish enqueues one message body and returns its message ID
func (p *PostgresPublisher) Publish(ctx context.Context, queue string, body []byte) (string, error) {
	id := uuid.New().String()
	query := `INSERT INTO assembly_queue (id, queue, body) VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, id, queue, body); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return id, nil
}
