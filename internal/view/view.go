// Package view derives the presentation values from a cached snapshot. The
// computation is a pure function of snapshot and "today", safe to rerun at
// any time; it is fed by two independent triggers (snapshot updates and the
// local-midnight recomputer) and never cached past a day boundary.
package view

import (
	"time"

	"github.com/samber/lo"

	"github.com/geekuality/posti-delivery-dates/internal/dates"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

// View is the derived read model for one postal code.
type View struct {
	// PostalCode identifies the code this view belongs to
	PostalCode string `json:"postalCode"`

	// NextScheduledDate is the earliest announced date on or after today,
	// empty when none remains
	NextScheduledDate string `json:"nextScheduledDate,omitempty"`

	// LastScheduledDate is the most recent previously-announced date
	// observed to have passed
	LastScheduledDate string `json:"lastScheduledDate,omitempty"`

	// DaysUntilNext is the calendar-day distance to NextScheduledDate,
	// nil when there is no next date
	DaysUntilNext *int `json:"daysUntilNext,omitempty"`

	// DeliveryCount is the number of announced delivery dates
	DeliveryCount int `json:"deliveryCount"`

	// AllDeliveryDates lists every announced date in source order
	AllDeliveryDates []string `json:"allDeliveryDates"`

	// LastUpdated is when the underlying snapshot was fetched or seeded
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Compute derives the view for a snapshot as of today. A nil snapshot
// yields an empty view for the code.
func Compute(postalCode string, snap *snapshot.Snapshot, today time.Time) View {
	v := View{
		PostalCode:       postalCode,
		AllDeliveryDates: []string{},
	}
	if snap == nil {
		return v
	}

	v.AllDeliveryDates = append([]string(nil), snap.DeliveryDates...)
	v.DeliveryCount = len(snap.DeliveryDates)
	v.LastScheduledDate = snap.LastDeliveryDate
	if !snap.LastUpdated.IsZero() {
		updated := snap.LastUpdated
		v.LastUpdated = &updated
	}

	next, ok := dates.EarliestFuture(snap.DeliveryDates, today)
	if !ok {
		return v
	}
	v.NextScheduledDate = next

	if days, err := dates.DaysUntil(next, today); err == nil {
		v.DaysUntilNext = lo.ToPtr(days)
	}

	return v
}
