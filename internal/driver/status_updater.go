package driver

import (
	"context"
	"log/slog"

	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
)

type statusSetter interface {
	SetStatus(ctx context.Context, id int64, status string) error
}

// StatusUpdater mirrors booking lifecycle changes onto the assigned driver.
type StatusUpdater struct {
	drivers statusSetter
	logger  *slog.Logger
}

func NewStatusUpdater(drivers statusSetter, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{drivers: drivers, logger: logger}
}

// DriverStatusFor maps a booking status to the driver status it implies.
// ok is false when the booking status does not affect the driver.
func DriverStatusFor(bookingStatus string) (status string, ok bool) {
	switch bookingStatus {
	case bookingmodel.StatusInProgress:
		return StatusOnTrip, true
	case bookingmodel.StatusCompleted, bookingmodel.StatusCancelled, bookingmodel.StatusNoShow:
		return StatusAvailable, true
	}
	return "", false
}

func (u *StatusUpdater) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.BookingStatusChangedEvent)
	if !ok || e.DriverID == nil {
		return nil
	}

	status, ok := DriverStatusFor(e.ToStatus)
	if !ok {
		return nil
	}

	if err := u.drivers.SetStatus(ctx, *e.DriverID, status); err != nil {
		u.logger.Error("failed to mirror booking status onto driver",
			"error", err,
			"booking_id", e.BookingID,
			"driver_id", *e.DriverID,
			"booking_status", e.ToStatus)
		return err
	}
	return nil
}

func (u *StatusUpdater) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeBookingStatusChanged, u.Handle)
}
