// Package source provides DataSource implementations for the sync engine.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/mirror/internal/collection"
	"github.com/roach88/mirror/internal/record"
)

// Static returns a DataSource serving a fixed slice. Each call returns a
// fresh copy so callers cannot mutate the source through the result.
func Static[T any](items []T) collection.DataSource[T] {
	return func(ctx context.Context) ([]T, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp := make([]T, len(items))
		copy(cp, items)
		return cp, nil
	}
}

// File returns a DataSource that reads a YAML items document from path on
// every query, so a refetch observes edits made since the last sync.
func File(path string) collection.DataSource[record.Record] {
	return func(ctx context.Context) ([]record.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read items file: %w", err)
		}
		doc, err := record.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("items file %s: %w", path, err)
		}
		return doc.Items, nil
	}
}
