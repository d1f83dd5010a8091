package view

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

// midnightSpec fires at local midnight, when "today" advances and every
// derived view must be recomputed even without a new fetch.
const midnightSpec = "0 0 * * *"

// Publisher receives recomputed views. Implementations must be safe for
// concurrent use; the recomputer calls them from the poller goroutines and
// from its own midnight loop.
type Publisher interface {
	// Publish delivers the current view of one postal code.
	Publish(ctx context.Context, postalCode string, v View) error
}

// Recomputer feeds the pure view computation from its two triggers:
// snapshot updates (via SnapshotUpdated) and the local-midnight schedule.
type Recomputer struct {
	stateSvc  state.Service
	publisher Publisher
	schedule  cron.Schedule
	now       func() time.Time

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// RecomputerOption configures a Recomputer.
type RecomputerOption func(*Recomputer)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) RecomputerOption {
	return func(r *Recomputer) {
		r.now = now
	}
}

// NewRecomputer creates a recomputer publishing through the given publisher.
func NewRecomputer(stateSvc state.Service, publisher Publisher, opts ...RecomputerOption) *Recomputer {
	// The expression is a constant; parsing it cannot fail
	schedule, _ := cron.ParseStandard(midnightSpec)

	r := &Recomputer{
		stateSvc:  stateSvc,
		publisher: publisher,
		schedule:  schedule,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SnapshotUpdated implements the coordinator's notifier contract: a changed
// snapshot republishes that code's view immediately.
func (r *Recomputer) SnapshotUpdated(ctx context.Context, postalCode string, snap *snapshot.Snapshot) {
	r.publish(ctx, postalCode, snap)
}

// Start runs the midnight loop until the context is cancelled.
func (r *Recomputer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	defer close(r.done)

	for {
		next := r.schedule.Next(r.now())
		timer := time.NewTimer(next.Sub(r.now()))

		select {
		case <-runCtx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.recomputeAll(runCtx)
		}
	}
}

// Stop cancels the midnight loop and waits for it to drain.
func (r *Recomputer) Stop() error {
	if r.cancelFunc != nil {
		r.cancelFunc()
		<-r.done
	}
	return nil
}

// recomputeAll republishes every registered code's view as of the new day.
func (r *Recomputer) recomputeAll(ctx context.Context) {
	codes, err := r.stateSvc.ListCodes(ctx)
	if err != nil {
		slog.Error("Midnight recompute failed to list codes", "error", err)
		return
	}

	slog.Info("Recomputing derived views at midnight", "code_count", len(codes))

	for _, code := range codes {
		snap, err := r.stateSvc.GetSnapshot(ctx, code)
		if err != nil {
			slog.Warn("Midnight recompute failed to read snapshot", "postal_code", code, "error", err)
			continue
		}
		r.publish(ctx, code, snap)
	}
}

func (r *Recomputer) publish(ctx context.Context, postalCode string, snap *snapshot.Snapshot) {
	if r.publisher == nil {
		return
	}
	v := Compute(postalCode, snap, r.now())
	if err := r.publisher.Publish(ctx, postalCode, v); err != nil {
		slog.Warn("Failed to publish view", "postal_code", postalCode, "error", err)
	}
}
