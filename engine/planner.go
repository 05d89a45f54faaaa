package engine

import (
	"sort"

	"github.com/bluesky-social/parrot/event"
	"github.com/bluesky-social/parrot/ledger"
	"github.com/bluesky-social/parrot/rules"
)

// Everything fetched from the platform during one cycle. Accounts which failed to fetch carry an error and no posts.
type FetchResult struct {
	Monitored []event.AccountPosts
	// one entry per like rule, in rule order
	Liked        []event.AccountPosts
	Followers    []event.Account
	FollowersErr error
}

// Turns fetched candidates into an ordered list of actions: reposts, then likes, then follows, each group in discovery order.
//
// Consults the ledger (read-only) so that nothing already committed is planned again, and never plans the same action twice.
func Plan(snap *Snapshot, fetched *FetchResult, led *ledger.Ledger) []Action {
	p := planner{
		led:  led,
		seen: make(map[ledger.Kind]map[string]bool),
	}
	var out []Action
	out = append(out, p.planReposts(snap, fetched.Monitored)...)
	out = append(out, p.planLikes(snap, fetched.Liked)...)
	if snap.FollowBack {
		out = append(out, p.planFollows(fetched.Followers)...)
	}
	if snap.MaxActionsPerCycle > 0 && len(out) > snap.MaxActionsPerCycle {
		out = out[:snap.MaxActionsPerCycle]
	}
	return out
}

type planner struct {
	led  *ledger.Ledger
	seen map[ledger.Kind]map[string]bool
}

// true if the action is neither committed nor already in this plan; marks it as planned
func (p *planner) fresh(t ActionType, id string) bool {
	kind := t.LedgerKind()
	if p.led.Has(kind, id) {
		return false
	}
	set, ok := p.seen[kind]
	if !ok {
		set = make(map[string]bool)
		p.seen[kind] = set
	}
	if set[id] {
		return false
	}
	set[id] = true
	return true
}

func (p *planner) planReposts(snap *Snapshot, monitored []event.AccountPosts) []Action {
	var out []Action
	for _, acct := range monitored {
		if acct.Err != nil {
			continue
		}
		for i := range acct.Posts {
			post := &acct.Posts[i]
			if !snap.RepostFilter.Allow(post) {
				continue
			}
			if !p.fresh(ActionRepost, post.ID) {
				continue
			}
			out = append(out, Action{
				Type:    ActionRepost,
				Subject: post.ID,
				Account: acct.Handle,
				Post:    post,
			})
		}
	}
	return out
}

func (p *planner) planLikes(snap *Snapshot, liked []event.AccountPosts) []Action {
	if snap.MaxLikesPerCheck <= 0 {
		return nil
	}
	var candidates []Action
	for i, acct := range liked {
		if acct.Err != nil || i >= len(snap.LikeRules) {
			continue
		}
		rule := &snap.LikeRules[i]
		for j := range acct.Posts {
			post := &acct.Posts[j]
			if !rules.Eligible(post, rule) {
				continue
			}
			if !p.fresh(ActionLike, post.ID) {
				continue
			}
			candidates = append(candidates, Action{
				Type:    ActionLike,
				Subject: post.ID,
				Account: acct.Handle,
				Post:    post,
			})
		}
	}
	if len(candidates) <= snap.MaxLikesPerCheck {
		return candidates
	}

	// over quota: keep the newest, but emit them in discovery order
	ranked := make([]Action, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return event.NewerThan(ranked[i].Post, ranked[j].Post)
	})
	keep := make(map[string]bool, snap.MaxLikesPerCheck)
	for _, a := range ranked[:snap.MaxLikesPerCheck] {
		keep[a.Subject] = true
	}
	out := make([]Action, 0, snap.MaxLikesPerCheck)
	for _, a := range candidates {
		if keep[a.Subject] {
			out = append(out, a)
		}
	}
	return out
}

func (p *planner) planFollows(followers []event.Account) []Action {
	var out []Action
	for _, f := range followers {
		if !p.fresh(ActionFollow, f.ID) {
			continue
		}
		out = append(out, Action{
			Type:    ActionFollow,
			Subject: f.ID,
			Account: f.Handle,
		})
	}
	return out
}
