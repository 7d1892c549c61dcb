// Package waiter drives an asynchronous task handle to its final result,
// polling the gateway at a fixed interval until the task completes, fails,
// or the wait budget runs out.
package waiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/gateway"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

const (
	// DefaultPollInterval is the fixed gap between status polls. The upstream
	// API has no freshness guarantee below ~10s, so backoff buys nothing.
	DefaultPollInterval = 10 * time.Second

	// DefaultBudget bounds a single wait. The slowest processor tier finishes
	// well inside 45 minutes; anything beyond that is a stuck run.
	DefaultBudget = 45 * time.Minute
)

// Option configures a Waiter.
type Option func(*Waiter)

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBudget overrides the total wait budget.
func WithBudget(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.budget = d
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(w *Waiter) {
		w.now = now
	}
}

// Waiter blocks on task handles until they resolve. Safe for concurrent use.
type Waiter struct {
	gw       gateway.Gateway
	interval time.Duration
	budget   time.Duration
	now      func() time.Time
}

// New returns a Waiter polling through the given gateway.
func New(gw gateway.Gateway, opts ...Option) *Waiter {
	w := &Waiter{
		gw:       gw,
		interval: DefaultPollInterval,
		budget:   DefaultBudget,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Await blocks until the handle's task reaches a terminal state and returns
// its result payload. Synchronous handles resolve immediately from their
// inline payload. Poll errors are treated as transient and retried on the
// next tick; only a reported task failure, the wait budget, or context
// cancellation end the wait early.
func (w *Waiter) Await(ctx context.Context, handle model.TaskHandle) (json.RawMessage, error) {
	if handle.Kind == model.TaskKindSynchronous {
		return handle.Inline, nil
	}

	start := w.now()
	for {
		snap, _, err := w.gw.PollStatus(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ctx.Err(), "waiter: poll task %s", handle.ID)
			}
			zap.L().Warn("status poll failed, will retry",
				zap.String("task_id", handle.ID),
				zap.String("kind", string(handle.Kind)),
				zap.Error(err))
		} else {
			done, result, err := w.resolve(ctx, handle, snap)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
		}

		if elapsed := w.now().Sub(start); elapsed+w.interval > w.budget {
			return nil, &TimeoutError{Handle: handle, Elapsed: elapsed}
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "waiter: await task %s", handle.ID)
		case <-time.After(w.interval):
		}
	}
}

// resolve inspects one status snapshot. A (false, nil, nil) return means
// the task is still in flight.
func (w *Waiter) resolve(ctx context.Context, handle model.TaskHandle, snap *gateway.StatusSnapshot) (bool, json.RawMessage, error) {
	switch handle.Kind {
	case model.TaskKindDualFlag:
		// Generation and enrichment wind down independently; the task is
		// finished only once both are idle. There is no failure signal.
		if snap.ActiveGeneration || snap.ActiveEnrichment {
			return false, nil, nil
		}
		return true, snap.Raw, nil

	default:
		switch snap.Status {
		case parallel.RunStatusCompleted:
			result, _, err := w.gw.FetchResult(ctx, handle)
			if err != nil {
				return false, nil, eris.Wrapf(err, "waiter: fetch result for task %s", handle.ID)
			}
			return true, result, nil
		case parallel.RunStatusFailed:
			return false, nil, &TaskFailedError{Handle: handle, Detail: snap.Error}
		}
		return false, nil, nil
	}
}
