// Decision engine for the repost/like/follow-back bot.
//
// Each cycle fetches candidates from the platform, plans actions against the dedup ledger and like rules, dispatches the actions one at a time, and commits each confirmed action to the ledger before moving to the next.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/parrot/ledger"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("parrot/engine")

type State int

const (
	StateIdle State = iota
	StateFetching
	StatePlanning
	StateExecuting
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateCommitting:
		return "committing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Runtime for fetching candidates, planning actions, and recording them in the ledger.
//
// Client, Ledger, and Config must all be set. The Ledger must be loaded before the first cycle.
type Engine struct {
	Logger *slog.Logger
	Client Client
	Ledger *ledger.Ledger
	Config ConfigSource
	// max parallel account fetches within a cycle
	FetchConcurrency int
	// deadline for each individual platform call
	CallTimeout time.Duration
	// called on every state transition (optional)
	OnState func(State)

	// held for the full duration of a cycle, so cycles never overlap
	cycleLk  sync.Mutex
	stateLk  sync.Mutex
	state    State
	lastSnap *Snapshot
}

func (eng *Engine) State() State {
	eng.stateLk.Lock()
	defer eng.stateLk.Unlock()
	return eng.state
}

func (eng *Engine) setState(s State) {
	eng.stateLk.Lock()
	eng.state = s
	eng.stateLk.Unlock()
	cycleState.Set(float64(s))
	if eng.OnState != nil {
		eng.OnState(s)
	}
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

func (eng *Engine) callTimeout() time.Duration {
	if eng.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return eng.CallTimeout
}

// Fetches the current config, falling back to the last good snapshot if the source fails.
func (eng *Engine) snapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := eng.Config.Snapshot(ctx)
	if err != nil {
		if eng.lastSnap == nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		eng.logger().Error("config reload failed, using previous config", "err", err)
		return eng.lastSnap, nil
	}
	eng.lastSnap = snap
	return snap, nil
}

// Runs cycles until the context is cancelled, waiting the configured interval between cycles. Errors from individual cycles are logged, not returned.
func (eng *Engine) Run(ctx context.Context) error {
	logger := eng.logger()
	for {
		report, err := eng.RunCycle(ctx)
		if err != nil {
			logger.Error("cycle failed", "err", err)
		} else {
			report.CanonicalLogLine(logger)
		}

		interval := DefaultInterval
		if eng.lastSnap != nil {
			interval = eng.lastSnap.Interval
		}
		logger.Debug("waiting for next cycle", "interval", interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("stopping run loop")
			return nil
		case <-timer.C:
		}
	}
}
