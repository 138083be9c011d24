package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/brandwatch/internal/storage"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

// created_at is kept as unix milliseconds so ordering and range filters
// compare numerically. data holds the full run as JSON.
const schema = `
CREATE TABLE IF NOT EXISTS monitoring_runs (
	id TEXT PRIMARY KEY,
	brand TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	total_search_results INTEGER NOT NULL,
	total_scraped_items INTEGER NOT NULL,
	placeholder_items INTEGER NOT NULL,
	has_sentiment BOOLEAN NOT NULL,
	has_report BOOLEAN NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS monitoring_runs_created_at ON monitoring_runs (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, run *storage.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	query := `
	INSERT INTO monitoring_runs (
		id, brand, created_at, total_search_results, total_scraped_items, placeholder_items, has_sentiment, has_report, data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		brand = excluded.brand,
		created_at = excluded.created_at,
		total_search_results = excluded.total_search_results,
		total_scraped_items = excluded.total_scraped_items,
		placeholder_items = excluded.placeholder_items,
		has_sentiment = excluded.has_sentiment,
		has_report = excluded.has_report,
		data = excluded.data
	`

	_, err = b.db.ExecContext(ctx, query,
		run.ID,
		run.Brand,
		run.CreatedAt.UnixMilli(),
		run.Summary.TotalSearchResults,
		run.Summary.TotalScrapedItems,
		run.Summary.PlaceholderItems,
		run.Summary.HasSentiment,
		run.Summary.HasReport,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", run.ID, err)
	}
	return nil
}

func (b *sqliteBackend) Get(ctx context.Context, id string) (*storage.Run, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM monitoring_runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", id, err)
	}
	return decode(data)
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT data FROM monitoring_runs WHERE 1=1`
	args := []any{}

	if filter.Brand != "" {
		query += ` AND trim(brand) = trim(?) COLLATE NOCASE`
		args = append(args, filter.Brand)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixMilli())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 || filter.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unbounded.
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	runs := []*storage.Run{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return runs, nil
}

func (b *sqliteBackend) Delete(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM monitoring_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func decode(data string) (*storage.Run, error) {
	var r storage.Run
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("sqlite: decode run: %w", err)
	}
	return &r, nil
}
