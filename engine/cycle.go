package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bluesky-social/parrot/event"
	"github.com/bluesky-social/parrot/ledger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Summary of one cycle.
type CycleReport struct {
	Started  time.Time
	Duration time.Duration
	Planned  []Action
	// confirmed by the platform and committed
	Performed int
	// platform said the action was already done; committed
	AlreadyDone int
	// rejected by the platform, or timed out; not committed
	Failed int
	// confirmed by the platform, but the ledger write failed
	CommitFailed int
	// committed by an earlier action in the same cycle
	Skipped     int
	FetchErrors []error
}

func (r *CycleReport) CanonicalLogLine(logger *slog.Logger) {
	logger.Info("canonical-cycle-line",
		"duration", r.Duration,
		"planned", len(r.Planned),
		"performed", r.Performed,
		"alreadyDone", r.AlreadyDone,
		"failed", r.Failed,
		"commitFailed", r.CommitFailed,
		"skipped", r.Skipped,
		"fetchErrors", len(r.FetchErrors),
	)
}

// Runs a single full cycle: fetch, plan, then execute and commit each action in order.
//
// Only setup problems (no usable config) are returned as errors; per-account and per-action failures are recorded in the report and the cycle continues.
func (eng *Engine) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	eng.cycleLk.Lock()
	defer eng.cycleLk.Unlock()
	defer eng.setState(StateIdle)

	// similar to an HTTP server, we want to recover any panics from a cycle
	defer func() {
		if r := recover(); r != nil {
			eng.logger().Error("cycle execution exception", "err", r)
			cycleCount.WithLabelValues("panic").Inc()
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()

	start := time.Now()
	snap, fetched, plan, err := eng.planCycle(ctx)
	if err != nil {
		cycleCount.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report = &CycleReport{
		Started:     start,
		Planned:     plan,
		FetchErrors: fetchErrors(fetched),
	}

	for _, act := range plan {
		if ctx.Err() != nil {
			// remaining actions are re-discovered next cycle
			break
		}
		eng.execute(ctx, act, report)
	}

	eng.setState(StateCommitting)
	eng.advanceCursors(ctx, snap, fetched)

	report.Duration = time.Since(start)
	cycleDuration.Observe(report.Duration.Seconds())
	cycleCount.WithLabelValues("ok").Inc()
	span.SetAttributes(
		attribute.Int("planned", len(plan)),
		attribute.Int("performed", report.Performed),
		attribute.Int("failed", report.Failed),
	)
	return report, nil
}

// Fetches and plans without dispatching anything. Nothing is written to the ledger.
func (eng *Engine) PlanCycle(ctx context.Context) ([]Action, error) {
	eng.cycleLk.Lock()
	defer eng.cycleLk.Unlock()
	defer eng.setState(StateIdle)

	_, _, plan, err := eng.planCycle(ctx)
	return plan, err
}

func (eng *Engine) planCycle(ctx context.Context) (*Snapshot, *FetchResult, []Action, error) {
	snap, err := eng.snapshot(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	eng.setState(StateFetching)
	fetched := eng.fetch(ctx, snap)

	eng.setState(StatePlanning)
	plan := Plan(snap, fetched, eng.Ledger)
	for _, act := range plan {
		actionPlannedCount.WithLabelValues(act.Type.String()).Inc()
	}
	eng.logger().Debug("planned cycle", "actions", len(plan))
	return snap, fetched, plan, nil
}

// Fetches all accounts in parallel. Failures are recorded per account and never abort the other fetches.
func (eng *Engine) fetch(ctx context.Context, snap *Snapshot) *FetchResult {
	ctx, span := tracer.Start(ctx, "fetch")
	defer span.End()

	res := &FetchResult{
		Monitored: make([]event.AccountPosts, len(snap.Monitored)),
		Liked:     make([]event.AccountPosts, len(snap.LikeRules)),
	}
	limit := eng.FetchConcurrency
	if limit <= 0 {
		limit = 4
	}
	// each goroutine writes only its own slot
	var eg errgroup.Group
	eg.SetLimit(limit)

	for i, handle := range snap.Monitored {
		opts := ListOptions{
			NewerThan:      eng.Ledger.Cursor(handle),
			Limit:          snap.StatusLimit,
			ExcludeReplies: snap.RepostFilter.ExcludeReplies,
			ExcludeReblogs: snap.RepostFilter.ExcludeReblogs,
		}
		eg.Go(func() error {
			res.Monitored[i] = eng.fetchAccount(ctx, "monitored", handle, opts)
			return nil
		})
	}
	for i, rule := range snap.LikeRules {
		opts := ListOptions{
			Limit:          snap.StatusLimit,
			ExcludeReplies: rule.ExcludeReplies,
		}
		eg.Go(func() error {
			res.Liked[i] = eng.fetchAccount(ctx, "liked", rule.Account, opts)
			return nil
		})
	}
	if snap.FollowBack {
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, eng.callTimeout())
			defer cancel()
			followers, err := eng.Client.ListFollowers(cctx, snap.FollowerLimit)
			if err != nil {
				res.FollowersErr = &FetchError{Account: "followers", Err: err}
				fetchErrorCount.WithLabelValues("followers").Inc()
				eng.logger().Warn("skipping follow-back this cycle", "err", err)
				return nil
			}
			res.Followers = followers
			return nil
		})
	}
	_ = eg.Wait()
	return res
}

func (eng *Engine) fetchAccount(ctx context.Context, source, handle string, opts ListOptions) event.AccountPosts {
	cctx, cancel := context.WithTimeout(ctx, eng.callTimeout())
	defer cancel()
	posts, err := eng.Client.ListRecentStatuses(cctx, handle, opts)
	if err != nil {
		fetchErrorCount.WithLabelValues(source).Inc()
		eng.logger().Warn("skipping account this cycle", "account", handle, "source", source, "err", err)
		return event.AccountPosts{Handle: handle, Err: &FetchError{Account: handle, Err: err}}
	}
	return event.AccountPosts{Handle: handle, Posts: posts}
}

func fetchErrors(fetched *FetchResult) []error {
	var out []error
	for _, a := range fetched.Monitored {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	for _, a := range fetched.Liked {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	if fetched.FollowersErr != nil {
		out = append(out, fetched.FollowersErr)
	}
	return out
}

func (eng *Engine) dispatch(ctx context.Context, act Action) error {
	switch act.Type {
	case ActionRepost:
		return eng.Client.Boost(ctx, act.Subject)
	case ActionLike:
		return eng.Client.Like(ctx, act.Subject)
	case ActionFollow:
		return eng.Client.Follow(ctx, act.Subject)
	}
	return fmt.Errorf("unhandled action type: %s", act.Type)
}

// Dispatches one action and commits it if confirmed. Never retries.
func (eng *Engine) execute(ctx context.Context, act Action, report *CycleReport) {
	kind := act.Type.LedgerKind()
	logger := eng.logger().With("action", act.Type.String(), "subject", act.Subject, "account", act.Account)

	// an earlier action in this cycle may have committed the same subject
	if eng.Ledger.Has(kind, act.Subject) {
		report.Skipped++
		actionResultCount.WithLabelValues(act.Type.String(), "skipped").Inc()
		return
	}

	ctx, span := tracer.Start(ctx, "execute")
	defer span.End()
	span.SetAttributes(attribute.String("action", act.Type.String()), attribute.String("subject", act.Subject))

	// an in-flight action runs to completion or timeout, even during shutdown
	ctx = context.WithoutCancel(ctx)

	eng.setState(StateExecuting)
	cctx, cancel := context.WithTimeout(ctx, eng.callTimeout())
	err := eng.dispatch(cctx, act)
	cancel()

	already := false
	if errors.Is(err, ErrAlreadyPerformed) {
		already = true
	} else if err != nil {
		aerr := &ActionError{Action: act, Err: err}
		logger.Error("action failed", "err", aerr)
		span.SetStatus(codes.Error, err.Error())
		report.Failed++
		actionResultCount.WithLabelValues(act.Type.String(), "failed").Inc()
		return
	}

	eng.setState(StateCommitting)
	if err := eng.Ledger.Commit(ctx, kind, act.Subject); err != nil {
		var perr *ledger.PersistenceError
		if errors.As(err, &perr) {
			logger.Error("action performed but not recorded", "err", err)
		} else {
			logger.Error("committing action", "err", err)
		}
		span.SetStatus(codes.Error, err.Error())
		report.CommitFailed++
		actionResultCount.WithLabelValues(act.Type.String(), "commit_failed").Inc()
		return
	}

	if already {
		logger.Info("action already performed, recorded")
		report.AlreadyDone++
		actionResultCount.WithLabelValues(act.Type.String(), "already").Inc()
		return
	}
	if act.Post != nil {
		logger.Info("action performed", "author", act.Post.Author, "preview", act.Post.Preview)
	} else {
		logger.Info("action performed")
	}
	report.Performed++
	actionResultCount.WithLabelValues(act.Type.String(), "ok").Inc()
}

// Moves each monitored account's cursor forward past the oldest-first run of statuses which are resolved (committed, or excluded by the repost filter). A status which failed to repost stops the cursor, so it is fetched again next cycle. Fetches always return the newest page, so once a failing status falls out of that page the cursor moves past it.
func (eng *Engine) advanceCursors(ctx context.Context, snap *Snapshot, fetched *FetchResult) {
	for _, acct := range fetched.Monitored {
		if acct.Err != nil || len(acct.Posts) == 0 {
			continue
		}
		posts := make([]*event.Post, len(acct.Posts))
		for i := range acct.Posts {
			posts[i] = &acct.Posts[i]
		}
		sort.SliceStable(posts, func(i, j int) bool {
			return event.CompareIDs(posts[i].ID, posts[j].ID) < 0
		})

		cur := eng.Ledger.Cursor(acct.Handle)
		next := cur
		for _, p := range posts {
			resolved := eng.Ledger.Has(ledger.KindProcessed, p.ID) || !snap.RepostFilter.Allow(p)
			if !resolved {
				break
			}
			if event.CompareIDs(p.ID, next) > 0 {
				next = p.ID
			}
		}
		if next == cur {
			continue
		}
		if err := eng.Ledger.SetCursor(ctx, acct.Handle, next); err != nil {
			eng.logger().Error("failed to persist cursor", "account", acct.Handle, "err", err)
		}
	}
}
