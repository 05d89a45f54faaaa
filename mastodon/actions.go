package mastodon

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bluesky-social/parrot/engine"
)

func (c *Client) Boost(ctx context.Context, postID string) error {
	var st Status
	err := c.do(ctx, http.MethodPost, "/api/v1/statuses/"+url.PathEscape(postID)+"/reblog", nil, &st)
	return actionError(err)
}

func (c *Client) Like(ctx context.Context, postID string) error {
	var st Status
	err := c.do(ctx, http.MethodPost, "/api/v1/statuses/"+url.PathEscape(postID)+"/favourite", nil, &st)
	return actionError(err)
}

func (c *Client) Follow(ctx context.Context, accountID string) error {
	var rel Relationship
	err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(accountID)+"/follow", nil, &rel)
	return actionError(err)
}

// Mastodon boost/favourite/follow are mostly idempotent and return 200 on repeats, but some servers answer 422 (or 409) with an "already" message.
func actionError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnprocessableEntity, http.StatusConflict:
			if apiErr.Wrapped != nil && strings.Contains(strings.ToLower(apiErr.Wrapped.Error()), "already") {
				return engine.ErrAlreadyPerformed
			}
		}
	}
	return err
}
