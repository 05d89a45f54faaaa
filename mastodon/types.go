package mastodon

import (
	"strings"
	"time"

	"github.com/bluesky-social/parrot/event"
	"github.com/bluesky-social/parrot/rules"

	"github.com/araddon/dateparse"
	"github.com/rivo/uniseg"
	"golang.org/x/net/html"
)

type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Locked      bool   `json:"locked"`
	Bot         bool   `json:"bot"`
	URL         string `json:"url"`
}

type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type MediaAttachment struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Status struct {
	ID                 string            `json:"id"`
	CreatedAt          string            `json:"created_at"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	Account            Account           `json:"account"`
	Content            string            `json:"content"`
	Visibility         string            `json:"visibility"`
	Reblog             *Status           `json:"reblog"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Tags               []Tag             `json:"tags"`
	Reblogged          *bool             `json:"reblogged,omitempty"`
	Favourited         *bool             `json:"favourited,omitempty"`
}

type Relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	Requested  bool   `json:"requested"`
	FollowedBy bool   `json:"followed_by"`
}

type searchResults struct {
	Accounts []Account `json:"accounts"`
}

const previewGraphemes = 80

// Reduces a status to the fields the engine needs.
//
// ID, author, and reply status come from the timeline entry itself. For a boost, media, hashtags, and content come from the boosted status.
func (s *Status) Post() event.Post {
	content := s
	if s.Reblog != nil {
		content = s.Reblog
	}
	p := event.Post{
		ID:        s.ID,
		Author:    s.Account.Acct,
		IsReply:   s.InReplyToID != nil && *s.InReplyToID != "",
		IsReblog:  s.Reblog != nil,
		HasMedia:  len(content.MediaAttachments) > 0,
		Preview:   Preview(content.Content, previewGraphemes),
		CreatedAt: parseTime(s.CreatedAt),
	}
	tags := make([]string, 0, len(content.Tags))
	for _, t := range content.Tags {
		tags = append(tags, t.Name)
	}
	p.Hashtags = rules.NormalizeHashtags(tags)
	return p
}

// Converts status HTML to a single line of plain text, truncated to at most maxLen grapheme clusters (with a trailing ellipsis if truncated).
func Preview(content string, maxLen int) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	extractText(doc, &sb, 0)
	text := strings.Join(strings.Fields(sb.String()), " ")

	if uniseg.GraphemeClusterCount(text) <= maxLen {
		return text
	}
	var out strings.Builder
	gr := uniseg.NewGraphemes(text)
	for n := 0; n < maxLen && gr.Next(); n++ {
		out.WriteString(gr.Str())
	}
	return strings.TrimSpace(out.String()) + "…"
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "br", "p":
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}
}

// zero time if the timestamp can't be parsed
func parseTime(raw string) time.Time {
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
