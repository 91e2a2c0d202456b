package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// PostgresRepository stores staging records in a Postgres table.
// Atomicity per key comes from the storage layer: merge-upsert is a
// single INSERT ... ON CONFLICT statement and conditional delete is a
// single guarded DELETE.
type PostgresRepository struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresRepository creates the repository and ensures its table exists
func NewPostgresRepository(db *sql.DB, ttl time.Duration) (*PostgresRepository, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	repo := &PostgresRepository{db: db, ttl: ttl}
	if err := repo.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure staging table: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS assembly_staging (
			owner_id TEXT NOT NULL,
			content_id TEXT NOT NULL,
			caption JSONB,
			thumbnail JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, content_id)
		)
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create assembly_staging table: %w", err)
	}

	log.Printf("✓ assembly_staging table ready")
	return nil
}

// MergeUpsert inserts or merges a facet for key in a single statement
func (r *PostgresRepository) MergeUpsert(ctx context.Context, key assembly.ContentKey, facet Facet) (*Record, error) {
	captionJSON, err := marshalFacet(facet.Caption)
	if err != nil {
		return nil, err
	}
	thumbnailJSON, err := marshalFacet(facet.Thumbnail)
	if err != nil {
		return nil, err
	}

	// COALESCE keeps the sibling slot intact: each event type only ever
	// writes its own facet column.
	query := `
		INSERT INTO assembly_staging (owner_id, content_id, caption, thumbnail, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW() + make_interval(secs => $5))
		ON CONFLICT (owner_id, content_id) DO UPDATE
		SET caption = COALESCE(EXCLUDED.caption, assembly_staging.caption),
		    thumbnail = COALESCE(EXCLUDED.thumbnail, assembly_staging.thumbnail)
		RETURNING caption, thumbnail, created_at, expires_at
	`

	row := r.db.QueryRowContext(ctx, query, key.OwnerID, key.ContentID, captionJSON, thumbnailJSON, r.ttl.Seconds())
	rec, err := scanRecord(key, row)
	if err != nil {
		return nil, fmt.Errorf("failed to merge staging record: %w", err)
	}
	return rec, nil
}

// Get returns the record for key, or nil if absent
func (r *PostgresRepository) Get(ctx context.Context, key assembly.ContentKey) (*Record, error) {
	query := `
		SELECT caption, thumbnail, created_at, expires_at
		FROM assembly_staging
		WHERE owner_id = $1 AND content_id = $2
	`

	row := r.db.QueryRowContext(ctx, query, key.OwnerID, key.ContentID)
	rec, err := scanRecord(key, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staging record: %w", err)
	}
	return rec, nil
}

// DeleteIfComplete deletes the record only when both facets are present
func (r *PostgresRepository) DeleteIfComplete(ctx context.Context, key assembly.ContentKey) (bool, error) {
	query := `
		DELETE FROM assembly_staging
		WHERE owner_id = $1 AND content_id = $2
		  AND caption IS NOT NULL AND thumbnail IS NOT NULL
	`

	res, err := r.db.ExecContext(ctx, query, key.OwnerID, key.ContentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete staging record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

// SweepExpired removes and returns expired records still missing a facet
func (r *PostgresRepository) SweepExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	query := `
		DELETE FROM assembly_staging
		WHERE expires_at < $1
		  AND (caption IS NULL OR thumbnail IS NULL)
		RETURNING owner_id, content_id, caption, thumbnail, created_at, expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep staging records: %w", err)
	}
	defer rows.Close()

	var orphans []*Record
	for rows.Next() {
		var (
			rec           Record
			captionJSON   []byte
			thumbnailJSON []byte
		)
		if err := rows.Scan(&rec.Key.OwnerID, &rec.Key.ContentID, &captionJSON, &thumbnailJSON, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan swept record: %w", err)
		}
		if err := unmarshalFacets(&rec, captionJSON, thumbnailJSON); err != nil {
			return nil, err
		}
		orphans = append(orphans, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swept records: %w", err)
	}
	return orphans, nil
}

func marshalFacet(v any) ([]byte, error) {
	switch f := v.(type) {
	case *assembly.CaptionFacet:
		if f == nil {
			return nil, nil
		}
	case *assembly.ThumbnailFacet:
		if f == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal facet: %w", err)
	}
	return b, nil
}

func scanRecord(key assembly.ContentKey, row *sql.Row) (*Record, error) {
	var (
		rec           Record
		captionJSON   []byte
		thumbnailJSON []byte
	)
	if err := row.Scan(&captionJSON, &thumbnailJSON, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	rec.Key = key
	if err := unmarshalFacets(&rec, captionJSON, thumbnailJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

func unmarshalFacets(rec *Record, captionJSON, thumbnailJSON []byte) error {
	if len(captionJSON) > 0 {
		rec.Caption = &assembly.CaptionFacet{}
		if err := json.Unmarshal(captionJSON, rec.Caption); err != nil {
			return fmt.Errorf("failed to unmarshal caption facet: %w", err)
		}
	}
	if len(thumbnailJSON) > 0 {
		rec.Thumbnail = &assembly.ThumbnailFacet{}
		if err := json.Unmarshal(thumbnailJSON, rec.Thumbnail); err != nil {
			return fmt.Errorf("failed to unmarshal thumbnail facet: %w", err)
		}
	}
	return nil
}
