package main

import (
	"context"
	"os"
	"time"

	"github.com/bluesky-social/parrot/engine"

	"github.com/adrg/xdg"
	"golang.org/x/time/rate"
)

// Uses the given path if it exists, otherwise the first parrot/config.yaml found in the XDG config directories. Returns the given path unchanged when nothing is found, so the caller reports the name it was given.
func resolveConfigPath(p string) string {
	if _, err := os.Stat(p); err == nil {
		return p
	}
	if found, err := xdg.SearchConfigFile("parrot/config.yaml"); err == nil {
		return found
	}
	return p
}

// Replaces the cycle interval of every snapshot from the inner source.
type intervalOverride struct {
	Inner    engine.ConfigSource
	Interval time.Duration
}

func (o *intervalOverride) Snapshot(ctx context.Context) (*engine.Snapshot, error) {
	snap, err := o.Inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := *snap
	out.Interval = o.Interval
	return &out, nil
}

// zero or negative means unlimited
func rateLimit(perSecond int) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
