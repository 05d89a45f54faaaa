package rules

import (
	"testing"

	"github.com/bluesky-social/parrot/event"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestEligibleMediaAndHashtag(t *testing.T) {
	assert := assert.New(t)

	rule := LikeRule{
		Account:          "artist@example.com",
		RequireMedia:     true,
		RequiredHashtags: []string{"art"},
	}

	p1 := event.Post{ID: "1", HasMedia: true, Hashtags: []string{"art", "ocr"}}
	assert.True(Eligible(&p1, &rule))

	p2 := event.Post{ID: "2", HasMedia: false, Hashtags: []string{"art"}}
	assert.False(Eligible(&p2, &rule))

	p3 := event.Post{ID: "3", HasMedia: true, Hashtags: []string{"photo"}}
	assert.False(Eligible(&p3, &rule))

	p4 := event.Post{ID: "4", HasMedia: true}
	assert.False(Eligible(&p4, &rule))
}

func TestEligibleHashtagModes(t *testing.T) {
	assert := assert.New(t)

	post := event.Post{ID: "1", Hashtags: []string{"Art", "#Cats"}}

	anyRule := LikeRule{Account: "a", RequiredHashtags: []string{"dogs", "cats"}}
	assert.True(Eligible(&post, &anyRule))

	allRule := LikeRule{Account: "a", RequiredHashtags: []string{"dogs", "cats"}, HashtagMatch: MatchAll}
	assert.False(Eligible(&post, &allRule))

	allRule.RequiredHashtags = []string{"ART", "cats"}
	assert.True(Eligible(&post, &allRule))

	noTags := LikeRule{Account: "a"}
	assert.True(Eligible(&post, &noTags))
}

func TestEligibleReplies(t *testing.T) {
	assert := assert.New(t)

	reply := event.Post{ID: "1", IsReply: true, HasMedia: true}
	rule := LikeRule{Account: "a", ExcludeReplies: true, LikeEverything: true}
	assert.False(Eligible(&reply, &rule))

	rule.ExcludeReplies = false
	assert.True(Eligible(&reply, &rule))

	// like_everything skips the media check
	rule.RequireMedia = true
	reply.HasMedia = false
	assert.True(Eligible(&reply, &rule))
}

func TestNormalizeHashtag(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("art", NormalizeHashtag("#Art"))
	assert.Equal("café", NormalizeHashtag(" CAFÉ "))
	assert.Equal("fullwidth", NormalizeHashtag("ＦＵＬＬＷＩＤＴＨ"))
	assert.Equal([]string{"art", "cats"}, NormalizeHashtags([]string{"Art", "#art", "", "cats"}))
}

func TestRepostFilter(t *testing.T) {
	assert := assert.New(t)

	plain := event.Post{ID: "1"}
	reply := event.Post{ID: "2", IsReply: true}
	reblog := event.Post{ID: "3", IsReblog: true}
	media := event.Post{ID: "4", HasMedia: true}

	f := RepostFilter{}
	assert.True(f.Allow(&plain))
	assert.True(f.Allow(&reply))
	assert.True(f.Allow(&reblog))

	f = RepostFilter{ExcludeReplies: true, ExcludeReblogs: true}
	assert.True(f.Allow(&plain))
	assert.False(f.Allow(&reply))
	assert.False(f.Allow(&reblog))

	f = RepostFilter{MediaOnly: true}
	assert.False(f.Allow(&plain))
	assert.True(f.Allow(&media))
}

func TestParseHashtagMatch(t *testing.T) {
	assert := assert.New(t)

	m, err := ParseHashtagMatch("")
	assert.NoError(err)
	assert.Equal(MatchAny, m)
	m, err = ParseHashtagMatch("AND")
	assert.NoError(err)
	assert.Equal(MatchAll, m)
	_, err = ParseHashtagMatch("xor")
	assert.Error(err)
}

var tagPool = []string{"art", "Art", "#ocr", "cats", "photo", "mastoart", "news"}

func fakePost(f *gofakeit.Faker) event.Post {
	tags := []string{}
	n := f.Number(0, 4)
	for i := 0; i < n; i++ {
		tags = append(tags, f.RandomString(tagPool))
	}
	return event.Post{
		ID:        f.DigitN(18),
		Author:    f.Username(),
		IsReply:   f.Bool(),
		IsReblog:  f.Bool(),
		HasMedia:  f.Bool(),
		Hashtags:  tags,
		CreatedAt: f.Date(),
	}
}

func fakeRule(f *gofakeit.Faker) LikeRule {
	tags := []string{}
	n := f.Number(0, 3)
	for i := 0; i < n; i++ {
		tags = append(tags, f.RandomString(tagPool))
	}
	match := MatchAny
	if f.Bool() {
		match = MatchAll
	}
	return LikeRule{
		Account:          f.Username(),
		RequireMedia:     f.Bool(),
		ExcludeReplies:   f.Bool(),
		RequiredHashtags: tags,
		HashtagMatch:     match,
		LikeEverything:   f.Bool(),
	}
}

func TestEligibleProperties(t *testing.T) {
	assert := assert.New(t)
	f := gofakeit.New(42)

	for i := 0; i < 2000; i++ {
		post := fakePost(f)
		rule := fakeRule(f)
		got := Eligible(&post, &rule)

		// deterministic
		assert.Equal(got, Eligible(&post, &rule))

		if rule.ExcludeReplies && post.IsReply {
			assert.False(got, "reply liked with exclude_replies: %+v %+v", post, rule)
		}
		if rule.RequireMedia && !post.HasMedia && !rule.LikeEverything {
			assert.False(got, "media-less post liked with require_media: %+v %+v", post, rule)
		}
		if got && len(rule.RequiredHashtags) > 0 && !rule.LikeEverything {
			assert.NotEmpty(post.Hashtags)
		}

		// "all" is never more permissive than "any"
		anyRule := rule
		anyRule.HashtagMatch = MatchAny
		allRule := rule
		allRule.HashtagMatch = MatchAll
		if Eligible(&post, &allRule) {
			assert.True(Eligible(&post, &anyRule))
		}
	}
}
