package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	otelutil "github.com/geekuality/posti-delivery-dates/internal/otel"
	"github.com/geekuality/posti-delivery-dates/internal/poll"
	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
	"github.com/geekuality/posti-delivery-dates/internal/telemetry"
)

// pollerDeps bundles the dependencies of one per-code poller.
type pollerDeps struct {
	postalCode  string
	seeded      bool
	fetcher     posti.Fetcher
	stateSvc    state.Service
	scheduler   *poll.Scheduler
	notifier    Notifier
	pollMetrics *telemetry.PollMetrics
	codeMetrics *telemetry.CodeMetrics
	tracer      trace.Tracer
	now         func() time.Time
}

// poller runs the fetch cycles of one postal code sequentially. All state
// mutation for the code happens from this goroutine, so no further locking
// is needed beyond the state service's own.
type poller struct {
	pollerDeps

	phase      snapshot.Phase
	instanceID string

	refresh chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	log *slog.Logger
}

func newPoller(deps pollerDeps) *poller {
	phase := snapshot.PhaseFirstFetch
	if deps.seeded {
		phase = snapshot.PhaseSeeded
	}
	return &poller{
		pollerDeps: deps,
		phase:      phase,
		instanceID: uuid.New().String(),
		refresh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		log:        slog.With("postal_code", deps.postalCode),
	}
}

// run is the poller loop: one cycle per timer fire, rearming the timer with
// the wait the scheduler computed for the cycle's outcome. A new cycle can
// never start while a previous one is still awaiting the remote response.
func (p *poller) run(ctx context.Context) {
	defer close(p.done)

	p.log.Info("Starting poller", "phase", p.phase, "instance_id", p.instanceID)

	// First cycle fires immediately: a seeded poller skips it, an unseeded
	// one performs its first fetch
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		forced := false
		select {
		case <-ctx.Done():
			p.log.Info("Poller stopping")
			return
		case <-timer.C:
		case <-p.refresh:
			forced = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		wait := p.cycle(ctx, forced)
		if ctx.Err() != nil {
			p.log.Info("Poller stopping")
			return
		}

		p.log.Debug("Scheduled next poll cycle", "wait", wait)
		timer.Reset(wait)
	}
}

// cycle executes one poll cycle and returns the wait before the next one.
func (p *poller) cycle(ctx context.Context, forced bool) time.Duration {
	start := p.now()

	prev, err := p.stateSvc.GetSnapshot(ctx, p.postalCode)
	if err != nil {
		p.log.Error("Failed to read cached snapshot", "error", err)
		return p.scheduler.NextWait(poll.OutcomeFailure)
	}

	decision := p.scheduler.Decide(p.phase, prev, start)
	if forced {
		decision = poll.Decision{Fetch: true, Reason: poll.ReasonManual}
	}
	p.log.Info("Poll cycle check", "fetch", decision.Fetch, "reason", decision.Reason)

	if !decision.Fetch {
		return p.skipCycle(ctx, decision.Reason)
	}

	outcome := p.fetchCycle(ctx, prev, start, decision.Reason)
	if ctx.Err() != nil {
		// Teardown began mid-cycle; the next wait is irrelevant
		return 0
	}

	p.pollMetrics.RecordCycleDuration(ctx, p.postalCode, p.now().Sub(start), outcome == poll.OutcomeSuccess, decision.Reason)
	return p.scheduler.NextWait(outcome)
}

// skipCycle handles the seeded first cycle: the snapshot stays as-is.
func (p *poller) skipCycle(ctx context.Context, reason string) time.Duration {
	p.phase = snapshot.PhaseSteady

	if _, err := p.stateSvc.UpdateStatusAtomically(ctx, p.postalCode, func(status *snapshot.PollStatus) bool {
		status.Phase = snapshot.PhaseSteady
		status.Message = fmt.Sprintf("Fetch skipped: %s", reason)
		status.InstanceID = p.instanceID
		return true
	}); err != nil {
		p.log.Warn("Failed to persist skipped poll status", "error", err)
	}

	return p.scheduler.NextWait(poll.OutcomeSkipped)
}

// fetchCycle performs the fetch, reconciles, and stores the fresh snapshot.
func (p *poller) fetchCycle(ctx context.Context, prev *snapshot.Snapshot, start time.Time, reason string) poll.Outcome {
	ctx, span := otelutil.StartSpan(ctx, p.tracer, "poll.fetch",
		trace.WithAttributes(
			otelutil.AttrPostalCode.String(p.postalCode),
			otelutil.AttrFetchReason.String(reason),
		))
	defer span.End()

	outcome := p.doFetch(ctx, span, prev, start, reason)
	span.SetAttributes(otelutil.AttrFetchOutcome.String(outcome.String()))
	return outcome
}

func (p *poller) doFetch(ctx context.Context, span trace.Span, prev *snapshot.Snapshot, start time.Time, reason string) poll.Outcome {
	var attemptCount int
	if _, err := p.stateSvc.UpdateStatusAtomically(ctx, p.postalCode, func(status *snapshot.PollStatus) bool {
		status.Phase = snapshot.PhaseFetching
		status.Message = "Fetch in progress"
		attempt := start
		status.LastAttempt = &attempt
		status.AttemptCount++
		status.InstanceID = p.instanceID
		attemptCount = status.AttemptCount
		return true
	}); err != nil {
		p.log.Warn("Failed to persist fetching status", "error", err)
	}

	p.log.Info("Starting fetch", "attempt", attemptCount, "reason", reason)

	// The fetch is the only suspension point; the fetcher bounds it with
	// its own timeout and honors ctx cancellation
	dates, fetchErr := p.fetcher.Fetch(ctx, p.postalCode)

	if ctx.Err() != nil {
		// Late-arriving result after teardown began; drop it unrecorded
		return poll.OutcomeFailure
	}

	now := p.now()

	if fetchErr != nil {
		otelutil.RecordError(span, fetchErr)
		var ferr *posti.FetchError
		if errors.As(fetchErr, &ferr) && ferr.StatusCode != 0 {
			span.SetAttributes(otelutil.AttrSourceStatus.Int(ferr.StatusCode))
		}

		// Cached data outlives the failure: only phase and timing change
		p.phase = snapshot.PhaseFailing
		if _, err := p.stateSvc.UpdateStatusAtomically(ctx, p.postalCode, func(status *snapshot.PollStatus) bool {
			status.Phase = snapshot.PhaseFailing
			status.Message = fetchErr.Error()
			return true
		}); err != nil {
			p.log.Warn("Failed to persist failing status", "error", err)
		}
		p.log.Error("Fetch failed", "error", fetchErr, "attempt", attemptCount)
		return poll.OutcomeFailure
	}

	// Reconcile against the pre-update snapshot before overwriting it:
	// a previously-announced "next" date that has passed becomes the last
	// completed delivery
	lastDelivery := poll.Reconcile(prev, now)

	fresh := snapshot.New(p.postalCode, dates, now)
	fresh.LastDeliveryDate = lastDelivery

	if err := p.stateSvc.UpdateSnapshot(ctx, p.postalCode, fresh); err != nil {
		p.log.Error("Failed to store snapshot", "error", err)
		otelutil.RecordError(span, err)
		p.phase = snapshot.PhaseFailing
		return poll.OutcomeFailure
	}

	p.phase = snapshot.PhaseSteady
	if _, err := p.stateSvc.UpdateStatusAtomically(ctx, p.postalCode, func(status *snapshot.PollStatus) bool {
		status.Phase = snapshot.PhaseSteady
		status.Message = "Fetch completed successfully"
		success := now
		status.LastSuccess = &success
		status.AttemptCount = 0
		return true
	}); err != nil {
		p.log.Warn("Failed to persist poll status", "error", err)
	}

	span.SetAttributes(otelutil.AttrDateCount.Int(len(fresh.DeliveryDates)))

	p.log.Info("Fetch completed successfully",
		"delivery_count", len(fresh.DeliveryDates),
		"last_delivery_date", fresh.LastDeliveryDate)

	p.codeMetrics.RecordDeliveryCount(ctx, p.postalCode, int64(len(fresh.DeliveryDates)))

	if p.notifier != nil {
		p.notifier.SnapshotUpdated(ctx, p.postalCode, fresh.Clone())
	}

	return poll.OutcomeSuccess
}
