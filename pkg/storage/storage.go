// Package storage is the durable store for indexed stories: a SQLite items
// table paired with an FTS5 index kept in sync by triggers, plus the query
// compiler that turns structured searches into parameterized full-text
// queries with a relational fallback.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/hnidx/hnidx/pkg/db"
)

// Store wraps the SQLite database holding items and their full-text index.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at dbPath, applies
// performance pragmas and runs pending migrations.
func Open(dbPath string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
	}

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if err := db.InitializeDatabase(sqlDB); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DatabaseSize returns the database size in bytes.
func (s *Store) DatabaseSize(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("reading page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("reading page size: %w", err)
	}
	return pageCount * pageSize, nil
}

// Stats returns counts and date bounds for monitoring.
func (s *Store) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalItems int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	stats["total_items"] = totalItems

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM items").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("getting item date range: %w", err)
	}
	if oldest.Valid {
		stats["oldest_item"] = oldest.String
	}
	if newest.Valid {
		stats["newest_item"] = newest.String
	}

	size, err := s.DatabaseSize(ctx)
	if err != nil {
		return nil, err
	}
	stats["db_size_bytes"] = size

	return stats, nil
}

// UpdateLastFetchTime records when an indexing pass last completed.
func (s *Store) UpdateLastFetchTime(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fetch_metadata (key, value, updated_at)
		VALUES ('last_fetch', ?, ?)
	`, t.Format(time.RFC3339), time.Now())

	return err
}

// GetLastFetchTime returns the zero time when no pass has completed yet.
func (s *Store) GetLastFetchTime(ctx context.Context) (time.Time, error) {
	var lastFetchStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM fetch_metadata WHERE key = 'last_fetch'
	`).Scan(&lastFetchStr)

	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(time.RFC3339, lastFetchStr)
}

func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA optimize")
	return err
}

func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) WALCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
