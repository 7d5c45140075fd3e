package assetcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ziadkadry99/catechiseme/internal/db"
)

// SQLStore keeps buckets in SQLite.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore creates a Store backed by the given database.
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_buckets ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

func (s *SQLStore) Has(ctx context.Context, bucket string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_buckets WHERE name = ?`, bucket).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Put(ctx context.Context, bucket string, assets []Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cache_buckets (name) VALUES (?)`, bucket); err != nil {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}

	for _, a := range assets {
		headers, err := json.Marshal(a.Header)
		if err != nil {
			return fmt.Errorf("marshalling headers for %s: %w", a.Path, err)
		}
		body := a.Body
		if body == nil {
			body = []byte{}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO cache_entries (bucket, path, status, content_type, headers, body)
			VALUES (?, ?, ?, ?, ?, ?)`,
			bucket, a.Path, a.Status, a.ContentType, string(headers), body)
		if err != nil {
			return fmt.Errorf("storing %s in %s: %w", a.Path, bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *SQLStore) Match(ctx context.Context, bucket, path string) (Asset, bool, error) {
	var (
		a       Asset
		headers string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT path, status, content_type, headers, body
		FROM cache_entries WHERE bucket = ? AND path = ?`, bucket, path).
		Scan(&a.Path, &a.Status, &a.ContentType, &headers, &a.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, fmt.Errorf("matching %s in %s: %w", path, bucket, err)
	}

	a.Header = http.Header{}
	if err := json.Unmarshal([]byte(headers), &a.Header); err != nil {
		return Asset{}, false, fmt.Errorf("decoding headers for %s: %w", path, err)
	}
	return a, true, nil
}

func (s *SQLStore) Entries(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM cache_entries WHERE bucket = ? ORDER BY path`, bucket)
	if err != nil {
		return nil, fmt.Errorf("listing entries of %s: %w", bucket, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, bucket string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Entries are removed explicitly so deletion does not depend on the
	// connection having foreign keys enabled.
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE bucket = ?`, bucket); err != nil {
		return false, fmt.Errorf("deleting entries of %s: %w", bucket, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cache_buckets WHERE name = ?`, bucket)
	if err != nil {
		return false, fmt.Errorf("deleting bucket %s: %w", bucket, err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete of %s: %w", bucket, err)
	}
	return n > 0, nil
}

func (s *SQLStore) LoadRecord(ctx context.Context) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `SELECT active, waiting FROM cache_registration WHERE id = 1`).
		Scan(&rec.Active, &rec.Waiting)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading registration: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) SaveRecord(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_registration (id, active, waiting, updated_at)
		VALUES (1, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET active = excluded.active, waiting = excluded.waiting, updated_at = excluded.updated_at`,
		rec.Active, rec.Waiting)
	if err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}
	return nil
}
