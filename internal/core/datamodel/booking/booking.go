package booking

import "time"

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPartial  = "partial"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
	PaymentStatusFailed   = "failed"
)

// ActiveStatuses hold the vehicle for their interval.
var ActiveStatuses = []string{StatusConfirmed, StatusInProgress}

type Booking struct {
	ID                 int64      `gorm:"primaryKey"`
	BookingNumber      string     `gorm:"column:booking_number;not null;uniqueIndex"`
	VehicleID          int64      `gorm:"column:vehicle_id;not null;index:idx_bookings_vehicle_period,priority:1"`
	RenterID           int64      `gorm:"column:renter_id;not null;index"`
	DriverID           *int64     `gorm:"column:driver_id"`
	StartDate          time.Time  `gorm:"column:start_date;not null;index:idx_bookings_vehicle_period,priority:2"`
	EndDate            time.Time  `gorm:"column:end_date;not null;index:idx_bookings_vehicle_period,priority:3"`
	DurationUnit       string     `gorm:"column:duration_unit;not null;default:day"`
	DurationUnits      int        `gorm:"column:duration_units;not null;default:1"`
	BasePrice          int64      `gorm:"column:base_price;not null"`
	DiscountAmount     int64      `gorm:"column:discount_amount;not null;default:0"`
	TaxAmount          int64      `gorm:"column:tax_amount;not null;default:0"`
	CommissionAmount   int64      `gorm:"column:commission_amount;not null;default:0"`
	TotalAmount        int64      `gorm:"column:total_amount;not null"`
	SuggestedPrice     *int64     `gorm:"column:suggested_price"`
	Currency           string     `gorm:"column:currency;not null;default:USD"`
	Status             string     `gorm:"column:status;not null;default:pending;index"`
	PaymentStatus      string     `gorm:"column:payment_status;not null;default:pending"`
	CancellationReason *string    `gorm:"column:cancellation_reason"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	RefundAmount       int64      `gorm:"column:refund_amount;not null;default:0"`
	PickupTime         *time.Time `gorm:"column:pickup_time"`
	DropoffTime        *time.Time `gorm:"column:dropoff_time"`
	OdometerStart      *int64     `gorm:"column:odometer_start"`
	OdometerEnd        *int64     `gorm:"column:odometer_end"`
	FuelLevelStart     *int       `gorm:"column:fuel_level_start"`
	FuelLevelEnd       *int       `gorm:"column:fuel_level_end"`
	DistanceKm         *int64     `gorm:"column:distance_km"`
	DamageReport       *string    `gorm:"column:damage_report"`
	RenterRating       *int       `gorm:"column:renter_rating"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string {
	return "bookings"
}
