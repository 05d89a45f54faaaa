package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluesky-social/parrot/engine"

	"github.com/stretchr/testify/assert"
)

func testClient(t *testing.T, mux *http.ServeMux) *Client {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "secret-token", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Client = srv.Client()
	c.WriteClient = srv.Client()
	c.Limiter = nil
	return c
}

func writeJSON(w http.ResponseWriter, status int, val any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(val)
}

func TestNormalizeInstanceURL(t *testing.T) {
	assert := assert.New(t)

	for _, raw := range []string{"mastodon.social", "mastodon.social/", "HTTPS://Mastodon.Social/", "https://mastodon.social:443"} {
		out, err := NormalizeInstanceURL(raw)
		assert.NoError(err, raw)
		assert.Equal("https://mastodon.social", out, raw)
	}
	out, err := NormalizeInstanceURL("http://localhost:3000")
	assert.NoError(err)
	assert.Equal("http://localhost:3000", out)

	for _, raw := range []string{"", "ftp://example.social"} {
		_, err := NormalizeInstanceURL(raw)
		assert.Error(err, raw)
	}

	_, err = NewClient("https://mastodon.social", "", nil)
	assert.Error(err)
}

func TestPreview(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Hello world second & line", Preview("<p>Hello <b>world</b><br>second &amp; line</p>", 80))
	assert.Equal("one two", Preview("<p>one</p><p>two</p>", 80))
	assert.Equal("abc…", Preview("<p>abcdef</p>", 3))
	// grapheme clusters are not split
	assert.Equal("👍🏽👍🏽…", Preview("👍🏽👍🏽👍🏽", 2))
	assert.Equal("", Preview("", 10))
}

var exampleStatus = `{
  "id": "110000000000000002",
  "created_at": "2024-05-01T12:30:00.000Z",
  "in_reply_to_id": null,
  "account": {"id": "7", "username": "booster", "acct": "booster@example.social"},
  "content": "",
  "reblog": {
    "id": "109000000000000001",
    "created_at": "2024-04-30T08:00:00.000Z",
    "account": {"id": "9", "username": "artist", "acct": "artist@art.example"},
    "content": "<p>new <a href=\"https://art.example/tags/Art\">#<span>Art</span></a></p>",
    "media_attachments": [{"id": "1", "type": "image", "url": "https://art.example/1.png"}],
    "tags": [{"name": "Art", "url": "https://art.example/tags/art"}]
  },
  "media_attachments": [],
  "tags": []
}`

func TestStatusPost(t *testing.T) {
	assert := assert.New(t)

	var st Status
	assert.NoError(json.Unmarshal([]byte(exampleStatus), &st))
	p := st.Post()
	assert.Equal("110000000000000002", p.ID)
	assert.Equal("booster@example.social", p.Author)
	assert.False(p.IsReply)
	assert.True(p.IsReblog)
	assert.True(p.HasMedia)
	assert.Equal([]string{"art"}, p.Hashtags)
	assert.Equal("new #Art", p.Preview)
	assert.True(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC).Equal(p.CreatedAt))

	reply := `{"id": "3", "created_at": "bogus", "in_reply_to_id": "2", "account": {"id": "1", "acct": "a"}, "content": "<p>hi</p>"}`
	assert.NoError(json.Unmarshal([]byte(reply), &st))
	p = st.Post()
	assert.True(p.IsReply)
	assert.False(p.IsReblog)
	assert.False(p.HasMedia)
	assert.True(p.CreatedAt.IsZero())
}

func TestListRecentStatuses(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal("Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal("news@example.social", r.URL.Query().Get("acct"))
		writeJSON(w, 200, Account{ID: "42", Acct: "news@example.social"})
	})
	mux.HandleFunc("GET /api/v1/accounts/42/statuses", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal("20", q.Get("limit"))
		assert.Equal("100", q.Get("since_id"))
		assert.Equal("", q.Get("min_id"))
		assert.Equal("true", q.Get("exclude_replies"))
		assert.Equal("", q.Get("exclude_reblogs"))
		writeJSON(w, 200, []Status{
			{ID: "102", CreatedAt: "2024-05-01T12:00:02Z", Account: Account{Acct: "news@example.social"}, Content: "<p>two</p>"},
			{ID: "101", CreatedAt: "2024-05-01T12:00:01Z", Account: Account{Acct: "news@example.social"}, Content: "<p>one</p>"},
		})
	})
	c := testClient(t, mux)

	opts := engine.ListOptions{NewerThan: "100", Limit: 20, ExcludeReplies: true}
	posts, err := c.ListRecentStatuses(ctx, "@news@example.social", opts)
	assert.NoError(err)
	assert.Equal(2, len(posts))
	assert.Equal("102", posts[0].ID)
	assert.Equal("one", posts[1].Preview)

	_, err = c.ListRecentStatuses(ctx, "news@example.social", opts)
	assert.NoError(err)
	assert.Equal(int32(1), lookups.Load())
}

func TestResolveAccountSearchFallback(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, APIError{Message: "Record not found"})
	})
	mux.HandleFunc("GET /api/v2/search", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		q := r.URL.Query()
		assert.Equal("accounts", q.Get("type"))
		assert.Equal("true", q.Get("resolve"))
		if q.Get("q") == "remote@far.example" {
			writeJSON(w, 200, searchResults{Accounts: []Account{{ID: "77", Acct: "remote@far.example"}}})
			return
		}
		writeJSON(w, 200, searchResults{})
	})
	c := testClient(t, mux)

	id, err := c.ResolveAccount(ctx, "remote@far.example")
	assert.NoError(err)
	assert.Equal("77", id)

	_, err = c.ResolveAccount(ctx, "ghost@far.example")
	assert.True(errors.Is(err, ErrAccountNotFound))
	// failure is cached
	_, err = c.ResolveAccount(ctx, "ghost@far.example")
	assert.True(errors.Is(err, ErrAccountNotFound))
	assert.Equal(int32(2), searches.Load())

	// and retried once stale
	c.ErrTTL = 0
	_, err = c.ResolveAccount(ctx, "ghost@far.example")
	assert.Error(err)
	assert.Equal(int32(3), searches.Load())
}

func TestListFollowers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var creds atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		creds.Add(1)
		writeJSON(w, 200, Account{ID: "1", Acct: "parrot"})
	})
	mux.HandleFunc("GET /api/v1/accounts/1/followers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("40", r.URL.Query().Get("limit"))
		writeJSON(w, 200, []Account{{ID: "5", Acct: "fan@example.social"}, {ID: "6", Acct: "local"}})
	})
	c := testClient(t, mux)

	for range 2 {
		followers, err := c.ListFollowers(ctx, 40)
		assert.NoError(err)
		assert.Equal(2, len(followers))
		assert.Equal("5", followers[0].ID)
		assert.Equal("fan@example.social", followers[0].Handle)
	}
	assert.Equal(int32(1), creds.Load())
}

func TestActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/statuses/{id}/reblog", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "500" {
			writeJSON(w, 404, APIError{Message: "Record not found"})
			return
		}
		writeJSON(w, 200, Status{ID: "900", Reblog: &Status{ID: r.PathValue("id")}})
	})
	mux.HandleFunc("POST /api/v1/statuses/{id}/favourite", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, APIError{Message: "Validation failed: Status has already been favourited"})
	})
	mux.HandleFunc("POST /api/v1/accounts/{id}/follow", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "13" {
			writeJSON(w, 403, APIError{Message: "This action is not allowed"})
			return
		}
		writeJSON(w, 200, Relationship{ID: r.PathValue("id"), Following: true})
	})
	c := testClient(t, mux)

	assert.NoError(c.Boost(ctx, "123"))
	err := c.Boost(ctx, "500")
	assert.Error(err)
	assert.False(errors.Is(err, engine.ErrAlreadyPerformed))

	assert.True(errors.Is(c.Like(ctx, "123"), engine.ErrAlreadyPerformed))

	assert.NoError(c.Follow(ctx, "12"))
	err = c.Follow(ctx, "13")
	var apiErr *Error
	assert.True(errors.As(err, &apiErr))
	assert.Equal(403, apiErr.StatusCode)
	assert.Equal("This action is not allowed", apiErr.Wrapped.Error())
}

func TestRateLimitError(t *testing.T) {
	assert := assert.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "300")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "2024-05-01T12:05:00.000Z")
		writeJSON(w, 429, APIError{Message: "Too many requests"})
	})
	c := testClient(t, mux)

	_, err := c.VerifyCredentials(context.Background())
	var apiErr *Error
	assert.True(errors.As(err, &apiErr))
	assert.True(apiErr.IsThrottled())
	assert.Equal(300, apiErr.Ratelimit.Limit)
	assert.Equal(0, apiErr.Ratelimit.Remaining)
	assert.Equal(2024, apiErr.Ratelimit.Reset.Year())
}

type mapIDCache map[string]string

func (m mapIDCache) Get(ctx context.Context, handle string) (string, error) {
	return m[handle], nil
}

func (m mapIDCache) Set(ctx context.Context, handle, id string) error {
	m[handle] = id
	return nil
}

func TestResolveAccountSharedCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		writeJSON(w, 200, Account{ID: "55", Acct: r.URL.Query().Get("acct")})
	})
	c := testClient(t, mux)
	shared := mapIDCache{"known@example.social": "11"}
	c.SharedCache = shared

	id, err := c.ResolveAccount(ctx, "known@example.social")
	assert.NoError(err)
	assert.Equal("11", id)
	assert.Equal(int32(0), lookups.Load())

	id, err = c.ResolveAccount(ctx, "new@example.social")
	assert.NoError(err)
	assert.Equal("55", id)
	assert.Equal("55", shared["new@example.social"])
	assert.Equal(int32(1), lookups.Load())
}

func TestRedisIDCache(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	c, err := NewRedisIDCache(ctx, "redis://localhost:6379/0", time.Minute)
	assert.NoError(err)
	id, err := c.Get(ctx, "nobody@example.social")
	assert.NoError(err)
	assert.Equal("", id)
	assert.NoError(c.Set(ctx, "somebody@example.social", "123"))
	id, err = c.Get(ctx, "somebody@example.social")
	assert.NoError(err)
	assert.Equal("123", id)
}
