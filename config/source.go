package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bluesky-social/parrot/engine"
)

// engine.ConfigSource which re-reads a YAML file whenever its modification time changes.
//
// A file which fails to parse or validate results in an error; the engine then keeps using the previous snapshot. The bad modification time is remembered, so the same broken file is only reported once.
type FileSource struct {
	Path   string
	Logger *slog.Logger

	lk      sync.Mutex
	modTime time.Time
	size    int64
	snap    *engine.Snapshot
	lastErr error
}

var _ engine.ConfigSource = (*FileSource)(nil)

func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		Path:   path,
		Logger: logger.With("component", "config"),
	}
}

func (fs *FileSource) Snapshot(ctx context.Context) (*engine.Snapshot, error) {
	fs.lk.Lock()
	defer fs.lk.Unlock()

	info, err := os.Stat(fs.Path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if fs.isCurrent(info) {
		if fs.lastErr != nil {
			return nil, fs.lastErr
		}
		return fs.snap, nil
	}

	fs.modTime = info.ModTime()
	fs.size = info.Size()
	snap, err := loadSnapshot(fs.Path)
	if err != nil {
		fs.lastErr = err
		return nil, err
	}
	if fs.snap != nil {
		fs.Logger.Info("config reloaded", "path", fs.Path, "monitored", len(snap.Monitored), "likeRules", len(snap.LikeRules))
	}
	fs.snap = snap
	fs.lastErr = nil
	return snap, nil
}

func (fs *FileSource) isCurrent(info os.FileInfo) bool {
	if fs.snap == nil && fs.lastErr == nil {
		return false
	}
	return info.ModTime().Equal(fs.modTime) && info.Size() == fs.size
}

func loadSnapshot(path string) (*engine.Snapshot, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Snapshot()
}
