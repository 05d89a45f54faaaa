package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bluesky-social/parrot/event"
	"github.com/bluesky-social/parrot/ledger"
)

// In-memory Client for tests. Statuses and followers are fixed; errors can be injected per account or per action subject.
type MockClient struct {
	lk sync.Mutex

	Statuses  map[string][]event.Post
	Followers []event.Account
	// per-handle fetch errors
	FetchErrs    map[string]error
	FollowersErr error
	// per-subject action errors (eg, ErrAlreadyPerformed)
	ActionErrs map[string]error

	Boosted  []string
	Liked    []string
	Followed []string
	// options passed to ListRecentStatuses, per handle
	ListCalls map[string][]ListOptions
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Statuses:   make(map[string][]event.Post),
		FetchErrs:  make(map[string]error),
		ActionErrs: make(map[string]error),
		ListCalls:  make(map[string][]ListOptions),
	}
}

func (c *MockClient) ListRecentStatuses(ctx context.Context, handle string, opts ListOptions) ([]event.Post, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.ListCalls[handle] = append(c.ListCalls[handle], opts)
	if err := c.FetchErrs[handle]; err != nil {
		return nil, err
	}
	// newest page first, bounded below by the cursor
	var out []event.Post
	for _, p := range c.Statuses[handle] {
		if opts.NewerThan != "" && event.CompareIDs(p.ID, opts.NewerThan) <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return event.CompareIDs(out[i].ID, out[j].ID) < 0
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

func (c *MockClient) ListFollowers(ctx context.Context, limit int) ([]event.Account, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.FollowersErr != nil {
		return nil, c.FollowersErr
	}
	if limit > 0 && len(c.Followers) > limit {
		return c.Followers[:limit], nil
	}
	return c.Followers, nil
}

func (c *MockClient) act(subject string, record *[]string) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	*record = append(*record, subject)
	return c.ActionErrs[subject]
}

func (c *MockClient) Boost(ctx context.Context, postID string) error {
	return c.act(postID, &c.Boosted)
}

func (c *MockClient) Like(ctx context.Context, postID string) error {
	return c.act(postID, &c.Liked)
}

func (c *MockClient) Follow(ctx context.Context, accountID string) error {
	return c.act(accountID, &c.Followed)
}

// Generates simple posts for an account, oldest first, with increasing IDs and timestamps.
func MockPosts(author string, firstID, count int) []event.Post {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]event.Post, 0, count)
	for i := 0; i < count; i++ {
		id := firstID + i
		out = append(out, event.Post{
			ID:        fmt.Sprintf("%d", id),
			Author:    author,
			CreatedAt: base.Add(time.Duration(id) * time.Minute),
			Preview:   fmt.Sprintf("post number %d", id),
		})
	}
	return out
}

// Engine wired to a MockClient and an in-memory ledger.
func EngineTestFixture(snap Snapshot) (*Engine, *MockClient, *ledger.MemStore) {
	client := NewMockClient()
	store := ledger.NewMemStore()
	led := ledger.New(store)
	if err := led.Load(context.Background()); err != nil {
		panic(err)
	}
	eng := Engine{
		Logger:      slog.Default(),
		Client:      client,
		Ledger:      led,
		Config:      &StaticConfig{Config: snap},
		CallTimeout: 5 * time.Second,
	}
	return &eng, client, store
}
