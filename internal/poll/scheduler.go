// Package poll contains the scheduling state machine and the snapshot
// reconciliation logic driving the per-postal-code update cycle.
package poll

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

// Poll decision reason constants, surfaced in logs and skip messages.
const (
	ReasonSeededSkip   = "seeded-snapshot-fresh"
	ReasonFirstFetch   = "first-fetch"
	ReasonStaleData    = "stale-data-forced-refresh"
	ReasonIntervalDue  = "interval-elapsed"
	ReasonManual       = "manual-refresh"
	ReasonRetry        = "retry-after-failure"
)

// Default timing policy.
const (
	// DefaultBaseInterval is the steady-state poll period
	DefaultBaseInterval = 12 * time.Hour

	// DefaultInitialOffsetMax bounds the one-time random offset spreading
	// the first real fetch across instances seeded at the same moment
	DefaultInitialOffsetMax = 30 * time.Minute

	// DefaultJitterMax bounds the symmetric steady-state jitter
	DefaultJitterMax = 2 * time.Minute

	// DefaultRetryInterval is the fixed wait after a failed fetch
	DefaultRetryInterval = time.Hour
)

// Intervals is the scheduler's timing policy.
type Intervals struct {
	// Base is the steady-state poll period
	Base time.Duration

	// InitialOffsetMax bounds the one-time uniform offset in [0, InitialOffsetMax]
	InitialOffsetMax time.Duration

	// JitterMax bounds the steady-state jitter in [-JitterMax, +JitterMax]
	JitterMax time.Duration

	// Retry is the fixed, unjittered wait after a failed fetch
	Retry time.Duration
}

// DefaultIntervals returns the reference timing policy.
func DefaultIntervals() Intervals {
	return Intervals{
		Base:             DefaultBaseInterval,
		InitialOffsetMax: DefaultInitialOffsetMax,
		JitterMax:        DefaultJitterMax,
		Retry:            DefaultRetryInterval,
	}
}

// Validate checks the policy invariants: the retry interval must stay
// strictly below the base interval so outages recover faster than the
// steady cadence, and jitter must never dominate the base period.
func (iv Intervals) Validate() error {
	if iv.Base <= 0 {
		return fmt.Errorf("base interval must be positive, got %s", iv.Base)
	}
	if iv.Retry <= 0 || iv.Retry >= iv.Base {
		return fmt.Errorf("retry interval must be positive and less than the base interval, got %s", iv.Retry)
	}
	if iv.InitialOffsetMax < 0 {
		return fmt.Errorf("initial offset max must be non-negative, got %s", iv.InitialOffsetMax)
	}
	if iv.JitterMax < 0 || iv.JitterMax >= iv.Base {
		return fmt.Errorf("jitter max must be non-negative and less than the base interval, got %s", iv.JitterMax)
	}
	return nil
}

// Decision is the scheduler's verdict for one cycle.
type Decision struct {
	// Fetch reports whether this cycle must hit the remote endpoint
	Fetch bool

	// Reason explains the verdict for logging
	Reason string
}

// Outcome describes how a cycle ended, for next-wait computation.
type Outcome int

const (
	// OutcomeSkipped means the cycle performed no fetch (seeded skip)
	OutcomeSkipped Outcome = iota

	// OutcomeSuccess means the fetch succeeded
	OutcomeSuccess

	// OutcomeFailure means the fetch failed
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Scheduler computes per-cycle fetch decisions and next-wait durations for
// one poller instance. It is not safe for concurrent use; each poller owns
// its own Scheduler.
type Scheduler struct {
	intervals Intervals
	rng       *rand.Rand

	// offsetPending marks the one-time initial offset as unconsumed
	offsetPending bool

	retry backoff.BackOff
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRand injects a seeded random source for reproducible tests.
func WithRand(rng *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

// NewScheduler creates a scheduler with the given timing policy.
func NewScheduler(intervals Intervals, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		intervals:     intervals,
		offsetPending: true,
		retry:         backoff.NewConstantBackOff(intervals.Retry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		//nolint:gosec // G404: Non-cryptographic randomness is sufficient for poll jitter
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// IsStale reports whether the snapshot's age exceeds the base interval.
// A stale snapshot forces an immediate fetch regardless of phase; this
// guards against missed cycles when the host was asleep or offline.
func (s *Scheduler) IsStale(snap *snapshot.Snapshot, now time.Time) bool {
	if snap == nil {
		return false
	}
	refreshDue := snap.LastUpdated.Add(s.intervals.Base)
	return now.After(refreshDue)
}

// Decide returns the fetch verdict for the current cycle. Staleness
// overrides the phase-based seeded skip.
func (s *Scheduler) Decide(phase snapshot.Phase, snap *snapshot.Snapshot, now time.Time) Decision {
	if s.IsStale(snap, now) {
		return Decision{Fetch: true, Reason: ReasonStaleData}
	}

	switch phase {
	case snapshot.PhaseSeeded:
		return Decision{Fetch: false, Reason: ReasonSeededSkip}
	case snapshot.PhaseFirstFetch:
		return Decision{Fetch: true, Reason: ReasonFirstFetch}
	case snapshot.PhaseFailing:
		return Decision{Fetch: true, Reason: ReasonRetry}
	default:
		return Decision{Fetch: true, Reason: ReasonIntervalDue}
	}
}

// NextWait computes the wait before the next cycle from how this one ended.
//
// The first completed cycle (seeded skip or first fetch) consumes the
// one-time offset: base plus a uniform duration in [0, InitialOffsetMax].
// Steady successes get base plus symmetric jitter in [-JitterMax, +JitterMax].
// Failures get the fixed retry interval with no jitter; deterministic retry
// timing is easier to reason about during outages.
func (s *Scheduler) NextWait(outcome Outcome) time.Duration {
	if outcome == OutcomeFailure {
		return s.retry.NextBackOff()
	}

	s.retry.Reset()

	if s.offsetPending {
		s.offsetPending = false
		return s.intervals.Base + s.uniform(0, s.intervals.InitialOffsetMax)
	}

	return s.intervals.Base + s.uniform(-s.intervals.JitterMax, s.intervals.JitterMax)
}

// uniform draws a whole-second duration uniformly from [lo, hi].
func (s *Scheduler) uniform(lo, hi time.Duration) time.Duration {
	loSec := int64(lo / time.Second)
	hiSec := int64(hi / time.Second)
	if hiSec <= loSec {
		return lo
	}
	return time.Duration(loSec+s.rng.Int64N(hiSec-loSec+1)) * time.Second
}
