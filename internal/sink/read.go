package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

// Row is one materialized item as stored.
type Row struct {
	Key string
	Doc []byte
}

// Rows returns all materialized rows ordered by key. Reads run outside
// any session transaction, so they see the last committed state.
func (s *Store) Rows(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, doc FROM items ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var doc string
		if err := rows.Scan(&r.Key, &doc); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		r.Doc = []byte(doc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return out, nil
}

// Get decodes the document stored under key into dst.
// Returns sql.ErrNoRows if the key is not materialized.
func (s *Store) Get(ctx context.Context, key string, dst any) error {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM items WHERE key = ?`, norm.NFC.String(key),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("get key %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(doc), dst); err != nil {
		return fmt.Errorf("decode doc for key %q: %w", key, err)
	}
	return nil
}

// Count returns the number of materialized rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
