// Platform-neutral projections of the social objects the bot reacts to.
package event

import (
	"time"
)

// A status fetched from the platform, reduced to the fields which drive decisions.
type Post struct {
	ID string
	// handle ("acct") of the author
	Author    string
	IsReply   bool
	IsReblog  bool
	HasMedia  bool
	Hashtags  []string
	CreatedAt time.Time
	// short plain-text excerpt, only used for logging
	Preview string
}

// An account which follows the bot.
type Account struct {
	ID     string
	Handle string
}

// Results of fetching one monitored or liked account.
type AccountPosts struct {
	Handle string
	Posts  []Post
	// nil unless the fetch failed, in which case Posts is empty
	Err error
}

// Sorts newest-first by CreatedAt, with ID as secondary key. Used where a stable "most recent" ordering is needed.
func NewerThan(a, b *Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return CompareIDs(a.ID, b.ID) > 0
}

// Compares platform status IDs. Mastodon IDs are decimal strings which sort numerically; shorter means smaller. Non-numeric IDs fall back to plain string order among equal-length IDs.
func CompareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
