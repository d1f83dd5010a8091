// Package snapshot defines the cached per-postal-code state the poller
// maintains: the delivery-date snapshot itself and the poll status
// bookkeeping persisted alongside it.
package snapshot

import (
	"time"

	"github.com/samber/lo"
)

// Phase represents the scheduling mode of a postal-code poller.
type Phase string

const (
	// PhaseSeeded means a snapshot was injected at startup and the first
	// fetch cycle is skipped.
	PhaseSeeded Phase = "Seeded"

	// PhaseFirstFetch means no seed was provided and the very first network
	// fetch is about to happen.
	PhaseFirstFetch Phase = "FirstFetch"

	// PhaseFetching means a fetch is currently in flight.
	PhaseFetching Phase = "Fetching"

	// PhaseSteady means normal periodic operation.
	PhaseSteady Phase = "Steady"

	// PhaseFailing means the most recent fetch attempt failed.
	PhaseFailing Phase = "Failing"
)

// Snapshot is the single unit of cached state for one postal code.
//
// DeliveryDates holds the currently-announced future/boundary dates in
// source order, deduplicated. LastDeliveryDate, once set by reconciliation,
// is never cleared - only replaced by a newer passed date. LastUpdated is
// monotonically non-decreasing.
type Snapshot struct {
	// PostalCode is the code this snapshot belongs to
	PostalCode string `json:"postalCode"`

	// DeliveryDates are the announced delivery dates as "YYYY-MM-DD" strings
	DeliveryDates []string `json:"deliveryDates"`

	// LastUpdated is when this snapshot was fetched or seeded
	LastUpdated time.Time `json:"lastUpdated"`

	// LastDeliveryDate is the most recent previously-announced date observed
	// to have passed, empty when none has been observed yet
	LastDeliveryDate string `json:"lastDeliveryDate,omitempty"`
}

// New builds a snapshot from a fetched or seeded date list. Duplicate dates
// are dropped while preserving source order.
func New(postalCode string, deliveryDates []string, lastUpdated time.Time) *Snapshot {
	return &Snapshot{
		PostalCode:    postalCode,
		DeliveryDates: lo.Uniq(deliveryDates),
		LastUpdated:   lastUpdated,
	}
}

// Clone returns a deep copy so consumers can never mutate cached state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.DeliveryDates = append([]string(nil), s.DeliveryDates...)
	return &out
}

// HasDates reports whether the snapshot exists and carries at least one date.
func (s *Snapshot) HasDates() bool {
	return s != nil && len(s.DeliveryDates) > 0
}

// Age returns how long ago the snapshot was last updated.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.LastUpdated)
}

// PollStatus tracks the per-code poll state machine plus attempt bookkeeping.
// It mirrors the shape the status API exposes.
type PollStatus struct {
	// Phase is the current scheduling phase
	Phase Phase `json:"phase"`

	// Message provides additional information about the poll status
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last fetch attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of fetch attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSuccess is the timestamp of the last successful fetch
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// InstanceID identifies the poller instance, regenerated per process start
	InstanceID string `json:"instanceId,omitempty"`
}

// Clone returns a deep copy of the status.
func (s *PollStatus) Clone() *PollStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		out.LastSuccess = &t
	}
	return &out
}
