package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluesky-social/parrot/engine"
	"github.com/bluesky-social/parrot/ledger"

	"github.com/stretchr/testify/assert"
)

func TestReadSource(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	// legacy state directory
	legacy := filepath.Join(dir, "state")
	assert.NoError(os.MkdirAll(legacy, 0o755))
	assert.NoError(os.WriteFile(filepath.Join(legacy, "liked_posts.json"), []byte(`{"posts": ["9", "8"]}`), 0o644))
	rec, err := readSource(ctx, legacy)
	assert.NoError(err)
	assert.Equal([]string{"8", "9"}, rec.List(ledger.KindLiked))

	// export dump
	rec.Cursors["news@example.social"] = "12"
	raw, err := json.Marshal(dumpRecord(rec))
	assert.NoError(err)
	dumpPath := filepath.Join(dir, "dump.json")
	assert.NoError(os.WriteFile(dumpPath, raw, 0o644))

	fromDump, err := readSource(ctx, dumpPath)
	assert.NoError(err)
	assert.Equal([]string{"8", "9"}, fromDump.List(ledger.KindLiked))
	assert.Equal(0, fromDump.Len(ledger.KindProcessed))
	assert.Equal("12", fromDump.Cursors["news@example.social"])

	// import into a fresh store
	dst, err := ledger.Open(ctx, "file://"+filepath.Join(dir, "new"), nil)
	assert.NoError(err)
	assert.NoError(ledger.Save(ctx, dst, fromDump))
	copied, err := dst.Load(ctx)
	assert.NoError(err)
	assert.Equal(fromDump.List(ledger.KindLiked), copied.List(ledger.KindLiked))
}

func TestIntervalOverride(t *testing.T) {
	assert := assert.New(t)

	inner := &engine.StaticConfig{Config: engine.Snapshot{Interval: time.Hour}}
	src := &intervalOverride{Inner: inner, Interval: time.Minute}
	snap, err := src.Snapshot(context.Background())
	assert.NoError(err)
	assert.Equal(time.Minute, snap.Interval)
	assert.Equal(time.Hour, inner.Config.Interval)
}
