package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluesky-social/parrot/event"
)

// Returned by Client action methods when the platform reports the action was already done (eg, status already boosted). Treated as success: the ledger entry is committed.
var ErrAlreadyPerformed = errors.New("action already performed")

// Capabilities the engine needs from a social platform.
//
// Implementations should honor context deadlines; a call which times out counts as a failure.
type Client interface {
	// Recent statuses authored (or boosted) by the account, in the order the platform returns them.
	ListRecentStatuses(ctx context.Context, handle string, opts ListOptions) ([]event.Post, error)
	// Accounts following the authenticated account, most recent first.
	ListFollowers(ctx context.Context, limit int) ([]event.Account, error)
	Boost(ctx context.Context, postID string) error
	Like(ctx context.Context, postID string) error
	Follow(ctx context.Context, accountID string) error
}

type ListOptions struct {
	// lower bound: the most recent page is returned, dropping statuses at or below this ID
	NewerThan string
	Limit     int
	// hints; the engine applies its own filters regardless
	ExcludeReplies bool
	ExcludeReblogs bool
}

// Discovery (read) failure for a single account. The account is skipped for the current cycle.
type FetchError struct {
	Account string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Account, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Platform rejected an action. Nothing is committed; the action is re-discovered next cycle.
type ActionError struct {
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action.Type, e.Action.Subject, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
