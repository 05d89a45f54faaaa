package engine

import (
	"fmt"

	"github.com/bluesky-social/parrot/event"
	"github.com/bluesky-social/parrot/ledger"
)

type ActionType int

const (
	ActionRepost ActionType = iota
	ActionLike
	ActionFollow
)

func (t ActionType) String() string {
	switch t {
	case ActionRepost:
		return "repost"
	case ActionLike:
		return "like"
	case ActionFollow:
		return "follow"
	}
	return fmt.Sprintf("action(%d)", int(t))
}

// Ledger set which records this type of action.
func (t ActionType) LedgerKind() ledger.Kind {
	switch t {
	case ActionRepost:
		return ledger.KindProcessed
	case ActionLike:
		return ledger.KindLiked
	case ActionFollow:
		return ledger.KindFollowed
	}
	panic(fmt.Sprintf("unhandled action type: %d", int(t)))
}

// A single planned side-effect against the platform.
type Action struct {
	Type ActionType
	// status ID for reposts and likes, account ID for follows
	Subject string
	// handle of the monitored/liked account, or of the follower
	Account string
	// source post; nil for follows
	Post *event.Post
}

func (a Action) String() string {
	return fmt.Sprintf("%s:%s", a.Type, a.Subject)
}
