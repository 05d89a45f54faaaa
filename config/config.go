// Bot configuration file: which accounts to repost, which to like, and follow-back.
//
// The YAML layout is the one used by existing deployments:
//
//	accounts_to_monitor:
//	  - news@example.social
//	bot:
//	  check_interval: 300
//	  exclude_replies: true
//	  follow_back: true
//	likes:
//	  - account: art@example.social
//	    hashtags: [art, painting]
//	    require_media: true
//	like_settings:
//	  max_likes_per_check: 50
//	mastodon:
//	  instance_url: https://mastodon.social
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/parrot/engine"
	"github.com/bluesky-social/parrot/rules"

	"gopkg.in/yaml.v3"
)

const DefaultInstanceURL = "https://mastodon.social"

type Config struct {
	AccountsToMonitor []string           `yaml:"accounts_to_monitor"`
	Bot               BotConfig          `yaml:"bot"`
	Likes             []LikeConfig       `yaml:"likes"`
	LikeSettings      LikeSettingsConfig `yaml:"like_settings"`
	Mastodon          MastodonConfig     `yaml:"mastodon"`
}

type BotConfig struct {
	// seconds between cycles
	CheckInterval  int  `yaml:"check_interval"`
	BoostOnly      bool `yaml:"boost_only"`
	ExcludeReplies bool `yaml:"exclude_replies"`
	ExcludeReblogs bool `yaml:"exclude_reblogs"`
	FollowBack     bool `yaml:"follow_back"`

	MaxActionsPerCycle int `yaml:"max_actions_per_cycle"`
	StatusLimit        int `yaml:"status_limit"`
	FollowerLimit      int `yaml:"follower_limit"`
}

type LikeConfig struct {
	Account        string   `yaml:"account"`
	Hashtags       []string `yaml:"hashtags"`
	HashtagMatch   string   `yaml:"hashtag_match"`
	RequireMedia   bool     `yaml:"require_media"`
	ExcludeReplies bool     `yaml:"exclude_replies"`
	LikeEverything bool     `yaml:"like_everything"`
}

type LikeSettingsConfig struct {
	// nil means "not set", which is different from an explicit zero (likes disabled)
	MaxLikesPerCheck *int `yaml:"max_likes_per_check"`
}

type MastodonConfig struct {
	InstanceURL string `yaml:"instance_url"`
	// plain-text token as stored by the setup web UI; the environment takes precedence
	AccessToken string `yaml:"access_token"`
}

// Reads and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Bot.CheckInterval < 0 {
		return fmt.Errorf("bot.check_interval must not be negative")
	}
	if c.Bot.MaxActionsPerCycle < 0 {
		return fmt.Errorf("bot.max_actions_per_cycle must not be negative")
	}
	if c.LikeSettings.MaxLikesPerCheck != nil && *c.LikeSettings.MaxLikesPerCheck < 0 {
		return fmt.Errorf("like_settings.max_likes_per_check must not be negative")
	}
	for i, acct := range c.AccountsToMonitor {
		if strings.TrimSpace(acct) == "" {
			return fmt.Errorf("accounts_to_monitor[%d] is empty", i)
		}
	}
	for i := range c.Likes {
		rule, err := c.Likes[i].rule()
		if err != nil {
			return fmt.Errorf("likes[%d]: %w", i, err)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("likes[%d]: %w", i, err)
		}
	}
	return nil
}

func (lc *LikeConfig) rule() (*rules.LikeRule, error) {
	match, err := rules.ParseHashtagMatch(lc.HashtagMatch)
	if err != nil {
		return nil, err
	}
	for _, tag := range lc.Hashtags {
		if rules.NormalizeHashtag(tag) == "" {
			return nil, fmt.Errorf("empty hashtag for %s", lc.Account)
		}
	}
	return &rules.LikeRule{
		Account:          normalizeHandle(lc.Account),
		RequireMedia:     lc.RequireMedia,
		ExcludeReplies:   lc.ExcludeReplies,
		RequiredHashtags: rules.NormalizeHashtags(lc.Hashtags),
		HashtagMatch:     match,
		LikeEverything:   lc.LikeEverything,
	}, nil
}

// Converts the file into what the engine consumes. Assumes Validate passed.
func (c *Config) Snapshot() (*engine.Snapshot, error) {
	snap := &engine.Snapshot{
		RepostFilter: rules.RepostFilter{
			ExcludeReplies: c.Bot.ExcludeReplies,
			ExcludeReblogs: c.Bot.ExcludeReblogs,
			MediaOnly:      c.Bot.BoostOnly,
		},
		MaxLikesPerCheck:   engine.DefaultMaxLikesPerCheck,
		MaxActionsPerCycle: c.Bot.MaxActionsPerCycle,
		FollowBack:         c.Bot.FollowBack,
		Interval:           time.Duration(c.Bot.CheckInterval) * time.Second,
		StatusLimit:        c.Bot.StatusLimit,
		FollowerLimit:      c.Bot.FollowerLimit,
	}
	if c.LikeSettings.MaxLikesPerCheck != nil {
		snap.MaxLikesPerCheck = *c.LikeSettings.MaxLikesPerCheck
	}
	for _, acct := range c.AccountsToMonitor {
		snap.Monitored = append(snap.Monitored, normalizeHandle(acct))
	}
	for i := range c.Likes {
		rule, err := c.Likes[i].rule()
		if err != nil {
			return nil, fmt.Errorf("likes[%d]: %w", i, err)
		}
		snap.LikeRules = append(snap.LikeRules, *rule)
	}
	return snap.WithDefaults(), nil
}

// Resolves the instance base URL: the environment override, then the config file, then the default instance.
func (c *Config) InstanceURL(override string) string {
	if override != "" {
		return override
	}
	if c.Mastodon.InstanceURL != "" {
		return c.Mastodon.InstanceURL
	}
	return DefaultInstanceURL
}

// handles are written with or without a leading '@'
func normalizeHandle(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}
