// Package availability decides whether a vehicle can be held for a period.
//
// Periods are half-open: a booking ending at 10:00 and another starting at
// 10:00 on the same vehicle do not conflict.
package availability

import (
	"context"
	"slices"
	"time"

	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether [a.Start, a.End) and [b.Start, b.End) intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Reservation is the slice of a booking the checker needs.
type Reservation struct {
	BookingID int64
	Status    string
	Period    Interval
}

// Blocks reports whether the reservation holds its vehicle.
func (r Reservation) Blocks() bool {
	return slices.Contains(bookingmodel.ActiveStatuses, r.Status)
}

// HasConflict is true when any blocking reservation other than excludeID
// overlaps proposed. excludeID of 0 excludes nothing.
func HasConflict(existing []Reservation, proposed Interval, excludeID int64) bool {
	return len(Conflicts(existing, proposed, excludeID)) > 0
}

func Conflicts(existing []Reservation, proposed Interval, excludeID int64) []Reservation {
	var out []Reservation
	for _, r := range existing {
		if excludeID != 0 && r.BookingID == excludeID {
			continue
		}
		if !r.Blocks() {
			continue
		}
		if r.Period.Overlaps(proposed) {
			out = append(out, r)
		}
	}
	return out
}

// ReservationSource loads reservations for a vehicle that may overlap the
// window. Implementations are free to return extra rows.
type ReservationSource interface {
	ReservationsForVehicle(ctx context.Context, vehicleID int64, window Interval) ([]Reservation, error)
}

type Checker struct {
	source ReservationSource
}

func NewChecker(source ReservationSource) *Checker {
	return &Checker{source: source}
}

func (c *Checker) HasConflict(ctx context.Context, vehicleID int64, start, end time.Time, excludeBookingID int64) (bool, error) {
	proposed := Interval{Start: start, End: end}
	reservations, err := c.source.ReservationsForVehicle(ctx, vehicleID, proposed)
	if err != nil {
		return false, err
	}
	return HasConflict(reservations, proposed, excludeBookingID), nil
}
