// Durable record of which actions the bot has already performed.
//
// A Ledger holds one set of subject identifiers per action Kind, plus a "last seen" cursor per monitored account. Entries are only ever added. Every mutation is written through to the backing Store before the in-memory view is updated, so the Ledger never claims an action is done when the durable record does not.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Kind string

const (
	// statuses which have been reposted (boosted)
	KindProcessed Kind = "processed"
	// statuses which have been liked (favourited)
	KindLiked Kind = "liked"
	// accounts which have been followed
	KindFollowed Kind = "followed"
)

var AllKinds = []Kind{KindProcessed, KindLiked, KindFollowed}

func (k Kind) Valid() bool {
	switch k {
	case KindProcessed, KindLiked, KindFollowed:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Full snapshot of ledger state.
type Record struct {
	Entries map[Kind]map[string]bool
	Cursors map[string]string
}

func NewRecord() *Record {
	r := &Record{
		Entries: make(map[Kind]map[string]bool, len(AllKinds)),
		Cursors: make(map[string]string),
	}
	for _, k := range AllKinds {
		r.Entries[k] = make(map[string]bool)
	}
	return r
}

func (r *Record) add(kind Kind, id string) {
	set, ok := r.Entries[kind]
	if !ok {
		set = make(map[string]bool)
		r.Entries[kind] = set
	}
	set[id] = true
}

// Sorted list of all entries of the given kind.
func (r *Record) List(kind Kind) []string {
	out := make([]string, 0, len(r.Entries[kind]))
	for id := range r.Entries[kind] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Record) Len(kind Kind) int {
	return len(r.Entries[kind])
}

func (r *Record) clone() *Record {
	out := NewRecord()
	for kind, set := range r.Entries {
		for id := range set {
			out.add(kind, id)
		}
	}
	for acct, cur := range r.Cursors {
		out.Cursors[acct] = cur
	}
	return out
}

// Returned when the durable write for a ledger mutation failed. The in-memory ledger was not updated.
type PersistenceError struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger persist %s/%s: %v", e.Kind, e.Subject, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Ledger struct {
	store Store

	lk  sync.RWMutex
	rec *Record
}

func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		rec:   NewRecord(),
	}
}

// Reads the full ledger from the store, replacing any in-memory state.
func (l *Ledger) Load(ctx context.Context) error {
	rec, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	if rec == nil {
		rec = NewRecord()
	}
	l.lk.Lock()
	l.rec = rec.clone()
	l.lk.Unlock()
	return nil
}

// Checks whether `id` has been committed for `kind`. Never fails.
func (l *Ledger) Has(kind Kind, id string) bool {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.rec.Entries[kind][id]
}

// Durably records that the action `kind` was performed on `id`. Committing an existing entry is a no-op.
//
// On store failure returns a *PersistenceError, and the entry is not visible via Has.
func (l *Ledger) Commit(ctx context.Context, kind Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid ledger kind: %q", kind)
	}
	if id == "" {
		return fmt.Errorf("empty ledger subject for kind %s", kind)
	}
	if l.Has(kind, id) {
		return nil
	}
	if err := l.store.Append(ctx, kind, id); err != nil {
		commitFailures.WithLabelValues(string(kind)).Inc()
		return &PersistenceError{Kind: kind, Subject: id, Err: err}
	}
	l.lk.Lock()
	l.rec.add(kind, id)
	l.lk.Unlock()
	commitCount.WithLabelValues(string(kind)).Inc()
	return nil
}

// Last-seen status ID for the account, or empty string if none.
func (l *Ledger) Cursor(account string) string {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.rec.Cursors[account]
}

// Durably updates the last-seen cursor for an account. Same write-then-mark ordering as Commit.
func (l *Ledger) SetCursor(ctx context.Context, account, id string) error {
	if l.Cursor(account) == id {
		return nil
	}
	if err := l.store.PutCursor(ctx, account, id); err != nil {
		return &PersistenceError{Kind: "cursor", Subject: account, Err: err}
	}
	l.lk.Lock()
	l.rec.Cursors[account] = id
	l.lk.Unlock()
	return nil
}

// Deep copy of the current in-memory state.
func (l *Ledger) Snapshot() *Record {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.rec.clone()
}

func (l *Ledger) Len(kind Kind) int {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.rec.Len(kind)
}

func (l *Ledger) Close() error {
	return l.store.Close()
}
