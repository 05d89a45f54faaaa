package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
)

// key layout:
//
//	'E' <kind> 0x00 <subject>  -> empty
//	'K' <account>              -> cursor status ID
const (
	pebbleEntryPrefix  = 'E'
	pebbleCursorPrefix = 'K'
)

// Store backed by an embedded pebble database. All writes are synced.
type PebbleStore struct {
	db  *pebble.DB
	log *slog.Logger
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string, logger *slog.Logger) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	return NewPebbleStoreFromDB(db, logger), nil
}

func NewPebbleStoreFromDB(db *pebble.DB, logger *slog.Logger) *PebbleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PebbleStore{
		db:  db,
		log: logger.With("store", "pebble"),
	}
}

func pebbleEntryKey(kind Kind, id string) []byte {
	key := make([]byte, 0, 2+len(kind)+len(id))
	key = append(key, pebbleEntryPrefix)
	key = append(key, kind...)
	key = append(key, 0)
	return append(key, id...)
}

func parsePebbleEntryKey(key []byte) (Kind, string, bool) {
	if len(key) < 2 || key[0] != pebbleEntryPrefix {
		return "", "", false
	}
	kind, id, ok := bytes.Cut(key[1:], []byte{0})
	if !ok {
		return "", "", false
	}
	return Kind(kind), string(id), true
}

func (s *PebbleStore) Load(ctx context.Context) (*Record, error) {
	rec := NewRecord()

	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: []byte{pebbleEntryPrefix},
		UpperBound: []byte{pebbleEntryPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger iter start, %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		kind, id, ok := parsePebbleEntryKey(iter.Key())
		if !ok {
			s.log.Warn("skipping malformed ledger key", "key", iter.Key())
			continue
		}
		rec.add(kind, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("ledger iter, %w", err)
	}

	iter, err = s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: []byte{pebbleCursorPrefix},
		UpperBound: []byte{pebbleCursorPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("cursor iter start, %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			iter.Close()
			return nil, fmt.Errorf("cursor iter, %w", err)
		}
		rec.Cursors[string(iter.Key()[1:])] = string(value)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cursor iter, %w", err)
	}
	return rec, nil
}

func (s *PebbleStore) Append(ctx context.Context, kind Kind, id string) error {
	return s.db.Set(pebbleEntryKey(kind, id), nil, pebble.Sync)
}

func (s *PebbleStore) PutCursor(ctx context.Context, account, id string) error {
	key := append([]byte{pebbleCursorPrefix}, account...)
	return s.db.Set(key, []byte(id), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	err := s.db.Flush()
	if err != nil {
		s.log.Error("pebble flush", "err", err)
	}
	err = s.db.Close()
	if err != nil {
		s.log.Error("pebble close", "err", err)
	}
	return err
}
