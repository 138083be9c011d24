package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/brandwatch/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS monitoring_runs (
	id TEXT PRIMARY KEY,
	brand TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	total_search_results INTEGER NOT NULL,
	total_scraped_items INTEGER NOT NULL,
	placeholder_items INTEGER NOT NULL,
	has_sentiment BOOLEAN NOT NULL,
	has_report BOOLEAN NOT NULL,
	data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS monitoring_runs_created_at ON monitoring_runs (created_at DESC);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, run *storage.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	query := `
	INSERT INTO monitoring_runs (
		id, brand, created_at, total_search_results, total_scraped_items, placeholder_items, has_sentiment, has_report, data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		brand = EXCLUDED.brand,
		created_at = EXCLUDED.created_at,
		total_search_results = EXCLUDED.total_search_results,
		total_scraped_items = EXCLUDED.total_scraped_items,
		placeholder_items = EXCLUDED.placeholder_items,
		has_sentiment = EXCLUDED.has_sentiment,
		has_report = EXCLUDED.has_report,
		data = EXCLUDED.data
	`

	_, err = b.pool.Exec(ctx, query,
		run.ID,
		run.Brand,
		run.CreatedAt,
		run.Summary.TotalSearchResults,
		run.Summary.TotalScrapedItems,
		run.Summary.PlaceholderItems,
		run.Summary.HasSentiment,
		run.Summary.HasReport,
		data,
	)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", run.ID, err)
	}
	return nil
}

func (b *postgresBackend) Get(ctx context.Context, id string) (*storage.Run, error) {
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM monitoring_runs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	return decode(data)
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT data FROM monitoring_runs WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Brand != "" {
		query += fmt.Sprintf(` AND lower(trim(brand)) = lower(trim($%d))`, paramCount)
		args = append(args, filter.Brand)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	runs := []*storage.Run{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return runs, nil
}

func (b *postgresBackend) Delete(ctx context.Context, id string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM monitoring_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func decode(data []byte) (*storage.Run, error) {
	var r storage.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("postgres: decode run: %w", err)
	}
	return &r, nil
}
