package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// File names and JSON layout are those of the legacy state files, so existing deployments keep their history.
var fileNames = map[Kind]string{
	KindProcessed: "processed_posts.json",
	KindLiked:     "liked_posts.json",
	KindFollowed:  "followed_accounts.json",
}

const cursorFileName = "cursors.json"

type entryFile struct {
	Posts    []string `json:"posts,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
}

type cursorFile struct {
	Cursors map[string]string `json:"cursors"`
}

// Store which keeps one JSON file per kind in a directory.
//
// Every Append rewrites the whole file for that kind, via a temporary file, fsync, and rename, so a file on disk is always a complete snapshot.
type FileStore struct {
	Dir string

	lk     sync.Mutex
	rec    *Record
	loaded bool
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &FileStore{
		Dir: dir,
		rec: NewRecord(),
	}, nil
}

func (s *FileStore) Load(ctx context.Context) (*Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.rec.clone(), nil
}

// existing files must be read before any rewrite, or the rewrite would drop their entries
func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.loadLocked()
}

func (s *FileStore) loadLocked() error {
	rec := NewRecord()
	for kind, name := range fileNames {
		var ef entryFile
		ok, err := readJSON(filepath.Join(s.Dir, name), &ef)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ids := ef.Posts
		if kind == KindFollowed {
			ids = ef.Accounts
		}
		for _, id := range ids {
			rec.add(kind, id)
		}
	}
	var cf cursorFile
	if _, err := readJSON(filepath.Join(s.Dir, cursorFileName), &cf); err != nil {
		return err
	}
	for acct, cur := range cf.Cursors {
		rec.Cursors[acct] = cur
	}
	s.rec = rec
	s.loaded = true
	return nil
}

func (s *FileStore) Append(ctx context.Context, kind Kind, id string) error {
	name, ok := fileNames[kind]
	if !ok {
		return fmt.Errorf("unknown ledger kind: %s", kind)
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	if s.rec.Entries[kind][id] {
		return nil
	}
	ids := append(s.rec.List(kind), id)
	sort.Strings(ids)
	var ef entryFile
	if kind == KindFollowed {
		ef.Accounts = ids
	} else {
		ef.Posts = ids
	}
	if err := writeJSONAtomic(filepath.Join(s.Dir, name), ef); err != nil {
		return err
	}
	s.rec.add(kind, id)
	return nil
}

func (s *FileStore) PutCursor(ctx context.Context, account, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	cursors := make(map[string]string, len(s.rec.Cursors)+1)
	for k, v := range s.rec.Cursors {
		cursors[k] = v
	}
	cursors[account] = id
	if err := writeJSONAtomic(filepath.Join(s.Dir, cursorFileName), cursorFile{Cursors: cursors}); err != nil {
		return err
	}
	s.rec.Cursors = cursors
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// returns false (and no error) if the file does not exist
func readJSON(p string, out any) (bool, error) {
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("reading %s: %w", p, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", p, err)
	}
	return true, nil
}

func writeJSONAtomic(p string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replacing %s: %w", p, err)
	}
	return nil
}
