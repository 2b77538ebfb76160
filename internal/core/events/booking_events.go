package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeBookingStatusChanged = "booking.status_changed"
	EventTypePaymentStatusChanged = "payment.status_changed"
)

type BookingStatusChangedEvent struct {
	BaseEvent
	BookingID  int64  `json:"booking_id"`
	VehicleID  int64  `json:"vehicle_id"`
	DriverID   *int64 `json:"driver_id,omitempty"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

func NewBookingStatusChangedEvent(bookingID, vehicleID int64, driverID *int64, from, to string) *BookingStatusChangedEvent {
	data := map[string]interface{}{
		"booking_id":  bookingID,
		"vehicle_id":  vehicleID,
		"from_status": from,
		"to_status":   to,
	}
	if driverID != nil {
		data["driver_id"] = *driverID
	}
	return &BookingStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingStatusChanged,
			Timestamp: time.Now(),
			Data:      data,
		},
		BookingID:  bookingID,
		VehicleID:  vehicleID,
		DriverID:   driverID,
		FromStatus: from,
		ToStatus:   to,
	}
}

type PaymentStatusChangedEvent struct {
	BaseEvent
	BookingID  int64  `json:"booking_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	NetPaid    int64  `json:"net_paid"`
}

func NewPaymentStatusChangedEvent(bookingID int64, from, to string, netPaid int64) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id":  bookingID,
				"from_status": from,
				"to_status":   to,
				"net_paid":    netPaid,
			},
		},
		BookingID:  bookingID,
		FromStatus: from,
		ToStatus:   to,
		NetPaid:    netPaid,
	}
}
