package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Durable backing for a Ledger.
//
// Implementations must make each Append and PutCursor atomic: after a crash, a single entry is either fully present or absent.
type Store interface {
	// Reads every entry and cursor. An empty store returns an empty (non-nil) Record.
	Load(ctx context.Context) (*Record, error)
	// Adds a single entry. Adding an existing entry is not an error.
	Append(ctx context.Context, kind Kind, id string) error
	PutCursor(ctx context.Context, account, id string) error
	Close() error
}

// Writes every entry and cursor of `rec` into `dst`. Used to migrate between backends.
func Save(ctx context.Context, dst Store, rec *Record) error {
	for _, kind := range AllKinds {
		for _, id := range rec.List(kind) {
			if err := dst.Append(ctx, kind, id); err != nil {
				return fmt.Errorf("saving %s/%s: %w", kind, id, err)
			}
		}
	}
	for acct, cur := range rec.Cursors {
		if err := dst.PutCursor(ctx, acct, cur); err != nil {
			return fmt.Errorf("saving cursor %s: %w", acct, err)
		}
	}
	return nil
}

// Opens a Store based on a URL-ish config string:
//
// - "file://path/to/dir" (or a bare path): JSON files, compatible with legacy bot state files
// - "sqlite://path/file.db", "postgres://...": SQL tables via gorm
// - "redis://host:port/db": redis sets
// - "pebble://path/to/dir": embedded pebble KV
func Open(ctx context.Context, storeURL string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.HasPrefix(storeURL, "file://"):
		return NewFileStore(strings.TrimPrefix(storeURL, "file://"))
	case strings.HasPrefix(storeURL, "pebble://"):
		return NewPebbleStore(strings.TrimPrefix(storeURL, "pebble://"), logger)
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return NewRedisStore(ctx, storeURL)
	case strings.HasPrefix(storeURL, "sqlite"), strings.HasPrefix(storeURL, "postgres"):
		return OpenGormStore(storeURL)
	case storeURL == "":
		return nil, fmt.Errorf("ledger store URL not configured")
	case !strings.Contains(storeURL, "://"):
		return NewFileStore(storeURL)
	default:
		return nil, fmt.Errorf("unsupported ledger store URL: %s", storeURL)
	}
}
