package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluesky-social/parrot/engine"
	"github.com/bluesky-social/parrot/event"
)

var ErrAccountNotFound = errors.New("account not found")

type lookupParams struct {
	Acct string `url:"acct"`
}

type searchParams struct {
	Q       string `url:"q"`
	Type    string `url:"type"`
	Limit   int    `url:"limit"`
	Resolve bool   `url:"resolve"`
}

type statusesParams struct {
	Limit          int    `url:"limit,omitempty"`
	SinceID        string `url:"since_id,omitempty"`
	ExcludeReplies bool   `url:"exclude_replies,omitempty"`
	ExcludeReblogs bool   `url:"exclude_reblogs,omitempty"`
}

type pageParams struct {
	Limit int `url:"limit,omitempty"`
}

// The authenticated account. Cached after the first successful call.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	c.selfLk.Lock()
	defer c.selfLk.Unlock()
	if c.self != nil {
		return c.self, nil
	}
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, &acct); err != nil {
		return nil, err
	}
	c.self = &acct
	return c.self, nil
}

// Resolves a handle ("user@instance.example", or "user" for local accounts) to an account ID. Results are cached; failures are cached for ErrTTL.
func (c *Client) ResolveAccount(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if c.accountCache != nil {
		entry, ok := c.accountCache.Get(handle)
		if ok && !(entry.Err != nil && time.Since(entry.Updated) > c.ErrTTL) {
			accountCacheHits.Inc()
			return entry.ID, entry.Err
		}
	}

	if c.SharedCache != nil {
		id, err := c.SharedCache.Get(ctx, handle)
		if err != nil {
			c.logger().Warn("shared account cache read failed", "handle", handle, "err", err)
		} else if id != "" {
			if c.accountCache != nil {
				c.accountCache.Add(handle, accountEntry{Updated: time.Now(), ID: id})
			}
			return id, nil
		}
	}

	id, err := c.lookupAccount(ctx, handle)
	if err == nil && c.SharedCache != nil {
		if err := c.SharedCache.Set(ctx, handle, id); err != nil {
			c.logger().Warn("shared account cache write failed", "handle", handle, "err", err)
		}
	}
	// don't cache context cancellation
	if c.accountCache != nil && ctx.Err() == nil {
		c.accountCache.Add(handle, accountEntry{
			Updated: time.Now(),
			ID:      id,
			Err:     err,
		})
	}
	return id, err
}

func (c *Client) lookupAccount(ctx context.Context, handle string) (string, error) {
	var acct Account
	err := c.do(ctx, http.MethodGet, "/api/v1/accounts/lookup", &lookupParams{Acct: handle}, &acct)
	if err == nil {
		return acct.ID, nil
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return "", err
	}

	// remote accounts the instance hasn't seen yet need a resolving search
	var res searchResults
	params := &searchParams{Q: handle, Type: "accounts", Limit: 1, Resolve: true}
	if err := c.do(ctx, http.MethodGet, "/api/v2/search", params, &res); err != nil {
		return "", err
	}
	if len(res.Accounts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, handle)
	}
	c.logger().Debug("resolved account via search", "handle", handle, "id", res.Accounts[0].ID)
	return res.Accounts[0].ID, nil
}

func (c *Client) ListRecentStatuses(ctx context.Context, handle string, opts engine.ListOptions) ([]event.Post, error) {
	id, err := c.ResolveAccount(ctx, handle)
	if err != nil {
		return nil, err
	}
	params := &statusesParams{
		Limit:          opts.Limit,
		SinceID:        opts.NewerThan,
		ExcludeReplies: opts.ExcludeReplies,
		ExcludeReblogs: opts.ExcludeReblogs,
	}
	var statuses []Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(id)+"/statuses", params, &statuses); err != nil {
		return nil, err
	}
	out := make([]event.Post, 0, len(statuses))
	for i := range statuses {
		out = append(out, statuses[i].Post())
	}
	return out, nil
}

func (c *Client) ListFollowers(ctx context.Context, limit int) ([]event.Account, error) {
	self, err := c.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(self.ID)+"/followers", &pageParams{Limit: limit}, &accounts); err != nil {
		return nil, err
	}
	out := make([]event.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, event.Account{
			ID:     a.ID,
			Handle: a.Acct,
		})
	}
	return out, nil
}
