package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// SQLite persists entries across runs.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the cache database.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS series_cache (
		key        TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		payload    BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[INFO] sqlite cache opened: %s", dbPath)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	query, args, err := sq.Select("kind", "fetched_at", "payload").
		From("series_cache").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return Entry{}, false, err
	}
	e := Entry{Key: key}
	var fetched int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&e.Kind, &fetched, &e.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	e.FetchedAt = time.Unix(fetched, 0)
	return e, true, nil
}

func (s *SQLite) Put(ctx context.Context, e Entry) error {
	query, args, err := sq.Insert("series_cache").
		Columns("key", "kind", "fetched_at", "payload").
		Values(e.Key, e.Kind, e.FetchedAt.Unix(), e.Payload).
		Suffix("ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, fetched_at = excluded.fetched_at, payload = excluded.payload").
		ToSql()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cache put %s: %w", e.Key, err)
	}
	return nil
}

// Purge deletes entries fetched before cutoff.
func (s *SQLite) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.Delete("series_cache").
		Where(sq.Lt{"fetched_at": cutoff.Unix()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	log.Println("[INFO] closing sqlite cache")
	return s.db.Close()
}
