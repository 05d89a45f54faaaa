// Pure eligibility checks which decide whether a fetched post should be liked or reposted.
//
// Nothing in this package does I/O, and results depend only on the arguments, so rules can be evaluated in any order.
package rules

import (
	"fmt"
	"strings"

	"github.com/bluesky-social/parrot/event"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// How multiple required hashtags combine.
type HashtagMatch string

const (
	// post needs at least one of the required hashtags (default)
	MatchAny HashtagMatch = "any"
	// post needs every required hashtag
	MatchAll HashtagMatch = "all"
)

func ParseHashtagMatch(raw string) (HashtagMatch, error) {
	switch HashtagMatch(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MatchAny, "or":
		return MatchAny, nil
	case MatchAll, "and":
		return MatchAll, nil
	}
	return "", fmt.Errorf("unknown hashtag match mode: %q", raw)
}

// Per-account configuration for which posts get liked.
type LikeRule struct {
	Account        string
	RequireMedia   bool
	ExcludeReplies bool
	// normalized with NormalizeHashtag
	RequiredHashtags []string
	HashtagMatch     HashtagMatch
	// skip media and hashtag checks (replies are still excluded if configured)
	LikeEverything bool
}

func (r *LikeRule) Validate() error {
	if r.Account == "" {
		return fmt.Errorf("like rule has no account")
	}
	switch r.HashtagMatch {
	case "", MatchAny, MatchAll:
	default:
		return fmt.Errorf("like rule for %s: unknown hashtag match mode: %q", r.Account, r.HashtagMatch)
	}
	for _, tag := range r.RequiredHashtags {
		if NormalizeHashtag(tag) == "" {
			return fmt.Errorf("like rule for %s: empty hashtag", r.Account)
		}
	}
	return nil
}

// Decides if a post qualifies for a like under the given rule.
func Eligible(post *event.Post, rule *LikeRule) bool {
	if rule.ExcludeReplies && post.IsReply {
		return false
	}
	if rule.LikeEverything {
		return true
	}
	if rule.RequireMedia && !post.HasMedia {
		return false
	}
	if len(rule.RequiredHashtags) == 0 {
		return true
	}
	tags := hashtagSet(post.Hashtags)
	if rule.HashtagMatch == MatchAll {
		for _, req := range rule.RequiredHashtags {
			if !tags[NormalizeHashtag(req)] {
				return false
			}
		}
		return true
	}
	for _, req := range rule.RequiredHashtags {
		if tags[NormalizeHashtag(req)] {
			return true
		}
	}
	return false
}

// Filters which statuses from monitored accounts get reposted.
type RepostFilter struct {
	ExcludeReplies bool
	ExcludeReblogs bool
	// only repost statuses with media attachments
	MediaOnly bool
}

func (f *RepostFilter) Allow(post *event.Post) bool {
	if f.ExcludeReplies && post.IsReply {
		return false
	}
	if f.ExcludeReblogs && post.IsReblog {
		return false
	}
	if f.MediaOnly && !post.HasMedia {
		return false
	}
	return true
}

// Canonical form for hashtag comparison: no leading '#', NFKC, case-folded.
func NormalizeHashtag(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "#")
	tag = norm.NFKC.String(tag)
	// Casers carry state, so one per call
	return cases.Fold().String(tag)
}

func NormalizeHashtags(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		n := NormalizeHashtag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func hashtagSet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[NormalizeHashtag(t)] = true
	}
	return m
}
