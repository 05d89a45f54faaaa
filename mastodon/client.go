// Client for the subset of the Mastodon REST API which the bot uses: account lookup, account timelines, followers, and boost/favourite/follow.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/parrot/engine"
	"github.com/bluesky-social/parrot/util"

	"github.com/PuerkitoBio/purell"
	"github.com/araddon/dateparse"
	"github.com/google/go-querystring/query"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

type Client struct {
	// used for GET requests. If not set, defaults to util.RobustHTTPClient()
	Client *http.Client
	// used for actions (POST). Should not retry, so that a boost is never sent twice by the HTTP layer. If not set, defaults to a non-retrying client
	WriteClient *http.Client
	// base URL of the instance, eg "https://mastodon.social"
	Host        string
	AccessToken string
	UserAgent   string
	// if not nil, every request waits on this limiter
	Limiter *rate.Limiter
	// how long failed handle lookups are remembered
	ErrTTL time.Duration
	// optional; consulted on local cache misses, and only holds successful lookups
	SharedCache IDCache
	Logger      *slog.Logger

	accountCache *expirable.LRU[string, accountEntry]
	selfLk       sync.Mutex
	self         *Account
}

var _ engine.Client = (*Client)(nil)

type accountEntry struct {
	Updated time.Time
	ID      string
	Err     error
}

// Mastodon's default API limit is 300 requests per 5 minutes, per account.
const DefaultRequestsPerSecond = 1.0

// Creates a client with default HTTP clients, rate limit, and account cache.
func NewClient(host, accessToken string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mastodon")
	base, err := NormalizeInstanceURL(host)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, fmt.Errorf("mastodon access token is required")
	}
	return &Client{
		Client:       util.RobustHTTPClient(logger),
		WriteClient:  util.RetryingHTTPClient(logger, 0),
		Host:         base,
		AccessToken:  accessToken,
		UserAgent:    util.UserAgent,
		Limiter:      rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 10),
		ErrTTL:       time.Minute,
		Logger:       logger,
		accountCache: expirable.NewLRU[string, accountEntry](10_000, nil, time.Hour*6),
	}, nil
}

// Cleans up an instance URL from config ("mastodon.social/", "HTTPS://Mastodon.Social") into a base URL without trailing slash.
func NormalizeInstanceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty instance URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	clean, err := purell.NormalizeURLString(raw, purell.FlagsSafe|purell.FlagRemoveTrailingSlash|purell.FlagRemoveFragment)
	if err != nil {
		return "", fmt.Errorf("invalid instance URL %q: %w", raw, err)
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("invalid instance URL %q: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported instance URL scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("instance URL has no host: %q", raw)
	}
	return strings.TrimSuffix(clean, "/"), nil
}

// Body of a non-2xx response.
type APIError struct {
	Message     string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (ae *APIError) Error() string {
	if ae.Description != "" {
		return fmt.Sprintf("%s: %s", ae.Message, ae.Description)
	}
	return ae.Message
}

type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("mastodon API error %d", e.StatusCode)
	}
	if e.StatusCode == http.StatusTooManyRequests && e.Ratelimit != nil {
		return fmt.Sprintf("mastodon API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("mastodon API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type RatelimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.Header.Get("X-RateLimit-Limit") != "" {
		r.Ratelimit = &RatelimitInfo{}
		if n, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit")); err == nil {
			r.Ratelimit.Limit = n
		}
		if n, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil {
			r.Ratelimit.Remaining = n
		}
		if t, err := dateparse.ParseAny(resp.Header.Get("X-RateLimit-Reset")); err == nil {
			r.Ratelimit.Reset = t
		}
	}
	return r
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Performs a single API call. `params` is a struct with `url` tags (or nil); `out` is decoded from the JSON response body if not nil.
func (c *Client) do(ctx context.Context, method, path string, params any, out any) error {
	uri := c.Host + path
	if params != nil {
		vals, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encoding query params: %w", err)
		}
		if len(vals) > 0 {
			uri = uri + "?" + vals.Encode()
		}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	} else {
		req.Header.Set("User-Agent", util.UserAgent)
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	client := c.Client
	if method != http.MethodGet {
		client = c.WriteClient
		if client == nil {
			client = util.RetryingHTTPClient(c.logger(), 0)
		}
	}
	if client == nil {
		client = util.RobustHTTPClient(c.logger())
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		requestsCount.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	requestsCount.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var ae APIError
		if err := json.Unmarshal(body, &ae); err != nil || ae.Message == "" {
			return errorFromHTTPResponse(resp, errors.New(strings.TrimSpace(string(bytes.ToValidUTF8(body, nil)))))
		}
		return errorFromHTTPResponse(resp, &ae)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding mastodon response: %w", err)
		}
	}
	return nil
}
