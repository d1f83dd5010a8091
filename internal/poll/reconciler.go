package poll

import (
	"time"

	"github.com/geekuality/posti-delivery-dates/internal/dates"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

// Reconcile derives the last completed delivery from the snapshot cached at
// the previous poll. The endpoint only ever reports current and future
// dates, so a previously-announced "next" date that has since passed is the
// only signal that a delivery completed.
//
// Must be called before the snapshot is overwritten with freshly fetched
// dates: it operates on the pre-update state to detect the transition that
// just occurred. The returned value never regresses to empty once set.
//
// A date that disappeared from the feed after passing is recorded as the
// last delivery even though the upstream data cannot distinguish delivery
// from cancellation; that ambiguity is preserved deliberately.
func Reconcile(prev *snapshot.Snapshot, today time.Time) string {
	if prev == nil {
		return ""
	}
	if len(prev.DeliveryDates) == 0 {
		return prev.LastDeliveryDate
	}

	// The date that was "next" as of the previous poll is the earliest
	// parseable date in the previous list, regardless of where today now
	// falls relative to it.
	candidate, ok := dates.Earliest(prev.DeliveryDates)
	if !ok {
		return prev.LastDeliveryDate
	}

	candidateDay, err := dates.Parse(candidate)
	if err != nil {
		return prev.LastDeliveryDate
	}

	if candidateDay.Before(dates.Day(today)) {
		return candidate
	}

	return prev.LastDeliveryDate
}
