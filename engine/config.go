package engine

import (
	"context"
	"time"

	"github.com/bluesky-social/parrot/rules"
)

const (
	DefaultMaxLikesPerCheck = 50
	DefaultStatusLimit      = 20
	DefaultFollowerLimit    = 40
	DefaultInterval         = 5 * time.Minute
)

// Everything a single cycle needs to know about configuration. Treated as immutable once handed to the engine.
type Snapshot struct {
	// handles whose new statuses get reposted
	Monitored    []string
	RepostFilter rules.RepostFilter
	LikeRules    []rules.LikeRule
	// cap on like actions per cycle, across all like rules; zero disables likes
	MaxLikesPerCheck int
	// cap on all actions per cycle; zero means no cap
	MaxActionsPerCycle int
	FollowBack         bool
	Interval           time.Duration
	// statuses fetched per account
	StatusLimit   int
	FollowerLimit int
}

// Fills zero values with defaults.
func (s *Snapshot) WithDefaults() *Snapshot {
	out := *s
	if out.StatusLimit <= 0 {
		out.StatusLimit = DefaultStatusLimit
	}
	if out.FollowerLimit <= 0 {
		out.FollowerLimit = DefaultFollowerLimit
	}
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	return &out
}

// Provides a fresh configuration snapshot at the start of every cycle.
type ConfigSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// ConfigSource which never changes.
type StaticConfig struct {
	Config Snapshot
}

func (c *StaticConfig) Snapshot(ctx context.Context) (*Snapshot, error) {
	return c.Config.WithDefaults(), nil
}
