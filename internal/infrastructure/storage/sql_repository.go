package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"PerspectiveLens/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	kvTable = "kv_store"
)

// SQLRepository is a key-value store kept in a single SQL table.
// It works against SQLite (modernc) and Postgres (lib/pq).
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.KeyValueStore = (*SQLRepository)(nil)

// OpenSQL opens the database for driver and ensures the table exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	if driver == DriverSQLite && dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := NewSQLRepository(db, driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an already opened sql.DB.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     time.Now,
	}
}

// Migrate creates the backing table if it is missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Get returns the stored value for key.
func (r *SQLRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := r.builder.Select("value").From(kvTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build select: %w", err)
	}

	var value string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select key: %w", err)
	}
	return []byte(value), true, nil
}

// Set upserts value under key.
func (r *SQLRepository) Set(ctx context.Context, key string, value []byte) error {
	query, args, err := r.builder.
		Insert(kvTable).
		Columns("key", "value", "updated_at").
		Values(key, string(value), r.now().UnixMilli()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert key: %w", err)
	}
	return nil
}

// Remove deletes key; a missing key is not an error.
func (r *SQLRepository) Remove(ctx context.Context, key string) error {
	query, args, err := r.builder.Delete(kvTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (r *SQLRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	query, args, err := r.builder.
		Select("key").
		From(kvTable).
		Where(sq.Like{"key": escapeLike(prefix) + "%"}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keys: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		// LIKE is case-insensitive on SQLite; re-check the prefix exactly.
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return keys, nil
}

// Close releases the database handle.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// escapeLike drops LIKE wildcards from prefix; the exact prefix check in Keys
// filters any extra matches.
func escapeLike(prefix string) string {
	return strings.NewReplacer("%", "_").Replace(prefix)
}
