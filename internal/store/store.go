// Package store defines the bar cache used by the data collaborator and
// provides Parquet and SQLite implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"quantgym/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendParquet = "parquet"
	BackendSQLite  = "sqlite"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing any bar with the same
	// symbol and timestamp.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars, sorted.
	ListSymbols(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Open returns the BarStore for backend. dataDir roots the Parquet layout;
// dbPath locates the SQLite database.
func Open(backend, dataDir, dbPath string) (BarStore, error) {
	switch backend {
	case BackendParquet, "":
		return NewParquetStore(dataDir), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// inRange reports whether ts falls within [start, end].
func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
