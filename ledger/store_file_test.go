package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	testStore(t, func() Store {
		s, err := NewFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestFileStoreLegacyFormat(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	// state files from an existing deployment
	assert.NoError(os.WriteFile(filepath.Join(dir, "processed_posts.json"), []byte(`{"posts": ["1", "2"]}`), 0o644))
	assert.NoError(os.WriteFile(filepath.Join(dir, "followed_accounts.json"), []byte(`{"accounts": ["99"]}`), 0o644))

	store, err := NewFileStore(dir)
	assert.NoError(err)
	// append before any explicit load must not drop existing entries
	assert.NoError(store.Append(ctx, KindProcessed, "3"))

	rec, err := store.Load(ctx)
	assert.NoError(err)
	assert.Equal([]string{"1", "2", "3"}, rec.List(KindProcessed))
	assert.Equal([]string{"99"}, rec.List(KindFollowed))
	assert.Equal(0, rec.Len(KindLiked))

	raw, err := os.ReadFile(filepath.Join(dir, "processed_posts.json"))
	assert.NoError(err)
	assert.JSONEq(`{"posts": ["1", "2", "3"]}`, string(raw))

	assert.NoError(store.Append(ctx, KindFollowed, "100"))
	raw, err = os.ReadFile(filepath.Join(dir, "followed_accounts.json"))
	assert.NoError(err)
	assert.JSONEq(`{"accounts": ["100", "99"]}`, string(raw))

	// no temp files left behind
	ents, err := os.ReadDir(dir)
	assert.NoError(err)
	assert.Equal(2, len(ents))
}

func TestFileStoreCorrupt(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	assert.NoError(os.WriteFile(filepath.Join(dir, "liked_posts.json"), []byte(`{"posts": [`), 0o644))
	store, err := NewFileStore(dir)
	assert.NoError(err)
	_, err = store.Load(ctx)
	assert.Error(err)
	// refuses to overwrite a file it could not read
	assert.Error(store.Append(ctx, KindLiked, "1"))
}

func TestOpenFileURL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(ctx, "file://"+dir, nil)
	assert.NoError(err)
	_, ok := store.(*FileStore)
	assert.True(ok)

	store, err = Open(ctx, dir, nil)
	assert.NoError(err)
	_, ok = store.(*FileStore)
	assert.True(ok)

	_, err = Open(ctx, "ftp://example.com/ledger", nil)
	assert.Error(err)
	_, err = Open(ctx, "", nil)
	assert.Error(err)
}
