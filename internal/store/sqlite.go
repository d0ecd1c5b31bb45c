package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_seconds INTEGER
)`

// SQLite is the primary embedded file-backed Store. The database is opened
// in WAL mode with a generous busy timeout so that concurrent request
// handlers sharing one file do not trip over each other.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if necessary) the cache database at path.
// Passing ":memory:" yields an ephemeral store, useful in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{"journal_mode(WAL)", "busy_timeout(10000)", "synchronous(NORMAL)"},
	}.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", "", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY churn under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap("ping", "", err)
	}
	if _, err := db.ExecContext(ctx, createCacheTable); err != nil {
		_ = db.Close()
		return nil, wrap("create table", "", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, createdAt, ttl, err := s.fetch(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, wrap("get", key, err)
	}

	if expired(createdAt, ttl, s.now()) {
		// Self-healing: no background sweeper, expired rows are removed
		// by the reader that finds them.
		if err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return value, true, nil
}

func (s *SQLite) GetRaw(ctx context.Context, key string) (json.RawMessage, int64, bool, error) {
	value, createdAt, _, err := s.fetch(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, false, nil
		}
		return nil, 0, false, wrap("get raw", key, err)
	}
	return value, createdAt, true, nil
}

func (s *SQLite) fetch(ctx context.Context, key string) (json.RawMessage, int64, int64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT value_json, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key)

	var value []byte
	var createdAt int64
	var ttl sql.NullInt64
	if err := row.Scan(&value, &createdAt, &ttl); err != nil {
		return nil, 0, 0, err
	}
	return value, createdAt, ttl.Int64, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value_json, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds`,
		key, string(value), s.now().Unix(), ttlSeconds(ttl))
	if err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (s *SQLite) Add(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) (bool, error) {
	now := s.now()

	// An expired row must not block acquisition.
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE key = ? AND ttl_seconds IS NOT NULL AND ? - created_at > ttl_seconds",
		key, now.Unix()); err != nil {
		return false, wrap("add", key, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value_json, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		key, string(value), now.Unix(), ttlSeconds(ttl))
	if err != nil {
		return false, wrap("add", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("add", key, err)
	}
	return n > 0, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return wrap("delete", key, err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context, prefix string) error {
	var err error
	if prefix == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM cache_entries")
	} else {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\\'", likePattern(prefix))
	}
	if err != nil {
		return wrap("clear", prefix, err)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache_entries")
	if err != nil {
		return nil, wrap("keys", "", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, wrap("keys", "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("keys", "", err)
	}
	return keys, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func ttlSeconds(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return sql.NullInt64{Int64: secs, Valid: true}
}

// likePattern escapes LIKE metacharacters so a prefix such as "quote_" only
// matches literally.
func likePattern(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+8)
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, prefix[i])
	}
	return string(escaped) + "%"
}
