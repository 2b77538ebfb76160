package booking

import (
	"slices"
	"time"

	"github.com/frahmantamala/vehicle-rental/internal/availability"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
)

const (
	StatusPending    = bookingmodel.StatusPending
	StatusConfirmed  = bookingmodel.StatusConfirmed
	StatusInProgress = bookingmodel.StatusInProgress
	StatusCompleted  = bookingmodel.StatusCompleted
	StatusCancelled  = bookingmodel.StatusCancelled
	StatusNoShow     = bookingmodel.StatusNoShow
)

const (
	PaymentStatusPending  = bookingmodel.PaymentStatusPending
	PaymentStatusPartial  = bookingmodel.PaymentStatusPartial
	PaymentStatusPaid     = bookingmodel.PaymentStatusPaid
	PaymentStatusRefunded = bookingmodel.PaymentStatusRefunded
	PaymentStatusFailed   = bookingmodel.PaymentStatusFailed
)

var transitions = map[string][]string{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. Completed, cancelled and no_show are terminal.
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

type Booking struct {
	ID                 int64      `json:"id"`
	BookingNumber      string     `json:"booking_number"`
	VehicleID          int64      `json:"vehicle_id"`
	RenterID           int64      `json:"renter_id"`
	DriverID           *int64     `json:"driver_id,omitempty"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	DurationUnit       string     `json:"duration_unit"`
	DurationUnits      int        `json:"duration_units"`
	BasePrice          int64      `json:"base_price"`
	DiscountAmount     int64      `json:"discount_amount"`
	TaxAmount          int64      `json:"tax_amount"`
	CommissionAmount   int64      `json:"commission_amount"`
	TotalAmount        int64      `json:"total_amount"`
	SuggestedPrice     *int64     `json:"suggested_price,omitempty"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	RefundAmount       int64      `json:"refund_amount"`
	PickupTime         *time.Time `json:"pickup_time,omitempty"`
	DropoffTime        *time.Time `json:"dropoff_time,omitempty"`
	OdometerStart      *int64     `json:"odometer_start,omitempty"`
	OdometerEnd        *int64     `json:"odometer_end,omitempty"`
	FuelLevelStart     *int       `json:"fuel_level_start,omitempty"`
	FuelLevelEnd       *int       `json:"fuel_level_end,omitempty"`
	DistanceKm         *int64     `json:"distance_km,omitempty"`
	DamageReport       *string    `json:"damage_report,omitempty"`
	RenterRating       *int       `json:"renter_rating,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (b *Booking) Period() availability.Interval {
	return availability.Interval{Start: b.StartDate, End: b.EndDate}
}

// CanBeCancelled is true for pending or confirmed bookings while now is
// still before start minus cutoff.
func (b *Booking) CanBeCancelled(now time.Time, cutoff time.Duration) bool {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return false
	}
	return now.Before(b.StartDate.Add(-cutoff))
}

// RefundPercent is the share of the total returned on cancellation given
// how long before the start it happens.
func RefundPercent(untilStart time.Duration) int64 {
	switch {
	case untilStart >= 24*time.Hour:
		return 100
	case untilStart >= 12*time.Hour:
		return 50
	default:
		return 0
	}
}

// CancellationRefund is the amount owed for cancelling at now, before it
// is capped by what was actually paid.
func (b *Booking) CancellationRefund(now time.Time) int64 {
	return b.TotalAmount * RefundPercent(b.StartDate.Sub(now)) / 100
}

func ToDataModel(b *Booking) *bookingmodel.Booking {
	return &bookingmodel.Booking{
		ID:                 b.ID,
		BookingNumber:      b.BookingNumber,
		VehicleID:          b.VehicleID,
		RenterID:           b.RenterID,
		DriverID:           b.DriverID,
		StartDate:          b.StartDate,
		EndDate:            b.EndDate,
		DurationUnit:       b.DurationUnit,
		DurationUnits:      b.DurationUnits,
		BasePrice:          b.BasePrice,
		DiscountAmount:     b.DiscountAmount,
		TaxAmount:          b.TaxAmount,
		CommissionAmount:   b.CommissionAmount,
		TotalAmount:        b.TotalAmount,
		SuggestedPrice:     b.SuggestedPrice,
		Currency:           b.Currency,
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		RefundAmount:       b.RefundAmount,
		PickupTime:         b.PickupTime,
		DropoffTime:        b.DropoffTime,
		OdometerStart:      b.OdometerStart,
		OdometerEnd:        b.OdometerEnd,
		FuelLevelStart:     b.FuelLevelStart,
		FuelLevelEnd:       b.FuelLevelEnd,
		DistanceKm:         b.DistanceKm,
		DamageReport:       b.DamageReport,
		RenterRating:       b.RenterRating,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func FromDataModel(b *bookingmodel.Booking) *Booking {
	return &Booking{
		ID:                 b.ID,
		BookingNumber:      b.BookingNumber,
		VehicleID:          b.VehicleID,
		RenterID:           b.RenterID,
		DriverID:           b.DriverID,
		StartDate:          b.StartDate,
		EndDate:            b.EndDate,
		DurationUnit:       b.DurationUnit,
		DurationUnits:      b.DurationUnits,
		BasePrice:          b.BasePrice,
		DiscountAmount:     b.DiscountAmount,
		TaxAmount:          b.TaxAmount,
		CommissionAmount:   b.CommissionAmount,
		TotalAmount:        b.TotalAmount,
		SuggestedPrice:     b.SuggestedPrice,
		Currency:           b.Currency,
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		RefundAmount:       b.RefundAmount,
		PickupTime:         b.PickupTime,
		DropoffTime:        b.DropoffTime,
		OdometerStart:      b.OdometerStart,
		OdometerEnd:        b.OdometerEnd,
		FuelLevelStart:     b.FuelLevelStart,
		FuelLevelEnd:       b.FuelLevelEnd,
		DistanceKm:         b.DistanceKm,
		DamageReport:       b.DamageReport,
		RenterRating:       b.RenterRating,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
