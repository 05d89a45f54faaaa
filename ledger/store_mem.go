package ledger

import (
	"context"
	"sync"
)

// In-process Store, mostly for tests. Set FailWrites to simulate a broken backend.
type MemStore struct {
	lk         sync.Mutex
	rec        *Record
	FailWrites error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		rec: NewRecord(),
	}
}

func (s *MemStore) Load(ctx context.Context) (*Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.rec.clone(), nil
}

func (s *MemStore) Append(ctx context.Context, kind Kind, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.rec.add(kind, id)
	return nil
}

func (s *MemStore) PutCursor(ctx context.Context, account, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.rec.Cursors[account] = id
	return nil
}

func (s *MemStore) Close() error {
	return nil
}
