package products

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/lib/pq"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// PostgresRepository stores assembled products in a Postgres table
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates the repository and ensures its table exists
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	repo := &PostgresRepository{db: db}
	if err := repo.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure products table: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS assembled_products (
			owner_id TEXT NOT NULL,
			content_id TEXT NOT NULL,
			title TEXT NOT NULL,
			price DOUBLE PRECISION,
			size_spec TEXT,
			tags TEXT[] NOT NULL DEFAULT '{}',
			thumbnails JSONB NOT NULL,
			primary_thumbnail JSONB NOT NULL,
			confidence_score DOUBLE PRECISION,
			raw_text TEXT,
			processing_metadata JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, content_id)
		)
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create assembled_products table: %w", err)
	}

	indexQuery := `
		CREATE INDEX IF NOT EXISTS assembled_products_owner_created_idx
		ON assembled_products (owner_id, created_at DESC, content_id DESC)
	`
	if _, err := r.db.Exec(indexQuery); err != nil {
		return fmt.Errorf("failed to create products index: %w", err)
	}

	log.Printf("✓ assembled_products table ready")
	return nil
}

// InsertIfAbsent conditionally writes the product; never overwrites
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, p *assembly.AssembledProduct) (bool, error) {
	thumbnailsJSON, err := json.Marshal(p.Thumbnails)
	if err != nil {
		return false, fmt.Errorf("failed to marshal thumbnails: %w", err)
	}
	primaryJSON, err := json.Marshal(p.PrimaryThumbnail)
	if err != nil {
		return false, fmt.Errorf("failed to marshal primary thumbnail: %w", err)
	}
	metaJSON, err := json.Marshal(p.ProcessingMetadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal processing metadata: %w", err)
	}

	query := `
		INSERT INTO assembled_products (
			owner_id, content_id, title, price, size_spec, tags,
			thumbnails, primary_thumbnail, confidence_score, raw_text,
			processing_metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (owner_id, content_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		p.OwnerID, p.ContentID, p.Title, p.Price, p.SizeSpec, pq.Array(p.Tags),
		thumbnailsJSON, primaryJSON, p.ConfidenceScore, p.RawText,
		metaJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// GetByOwner returns one page of an owner's products, newest first
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string, opts ListOptions) (*assembly.ProductPage, error) {
	opts.Normalize()

	query := `
		SELECT owner_id, content_id, title, price, size_spec, tags,
		       thumbnails, primary_thumbnail, confidence_score, raw_text,
		       processing_metadata, created_at, updated_at
		FROM assembled_products
		WHERE owner_id = $1
	`
	args := []any{ownerID}

	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" AND (created_at, content_id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, c.CreatedAt, c.ContentID)
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at > $%d", len(args)+1)
		args = append(args, *opts.Since)
	}

	// Fetch one extra row to learn whether another page exists
	query += fmt.Sprintf(" ORDER BY created_at DESC, content_id DESC LIMIT $%d", len(args)+1)
	args = append(args, opts.Limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var list []*assembly.AssembledProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	page := &assembly.ProductPage{Products: list}
	if len(list) > opts.Limit {
		page.Products = list[:opts.Limit]
		page.HasMore = true
		last := page.Products[len(page.Products)-1]
		page.NextCursor = encodeCursor(cursor{CreatedAt: last.CreatedAt, ContentID: last.ContentID})
	}
	if page.Products == nil {
		page.Products = []*assembly.AssembledProduct{}
	}
	page.Count = len(page.Products)
	return page, nil
}

// GetOne returns the product for key, or nil if absent
func (r *PostgresRepository) GetOne(ctx context.Context, key assembly.ContentKey) (*assembly.AssembledProduct, error) {
	query := `
		SELECT owner_id, content_id, title, price, size_spec, tags,
		       thumbnails, primary_thumbnail, confidence_score, raw_text,
		       processing_metadata, created_at, updated_at
		FROM assembled_products
		WHERE owner_id = $1 AND content_id = $2
	`

	rows, err := r.db.QueryContext(ctx, query, key.OwnerID, key.ContentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get product: %w", err)
		}
		return nil, nil
	}
	return scanProduct(rows)
}

func scanProduct(rows *sql.Rows) (*assembly.AssembledProduct, error) {
	var (
		p              assembly.AssembledProduct
		tags           pq.StringArray
		thumbnailsJSON []byte
		primaryJSON    []byte
		metaJSON       []byte
	)
	err := rows.Scan(
		&p.OwnerID, &p.ContentID, &p.Title, &p.Price, &p.SizeSpec, &tags,
		&thumbnailsJSON, &primaryJSON, &p.ConfidenceScore, &p.RawText,
		&metaJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Tags = tags
	if err := json.Unmarshal(thumbnailsJSON, &p.Thumbnails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thumbnails: %w", err)
	}
	if err := json.Unmarshal(primaryJSON, &p.PrimaryThumbnail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal primary thumbnail: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &p.ProcessingMetadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processing metadata: %w", err)
	}
	return &p, nil
}
