package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/common/validation"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
)

type CreateBookingRequest struct {
	VehicleID      int64     `json:"vehicle_id"`
	RenterID       int64     `json:"renter_id"`
	DriverID       *int64    `json:"driver_id,omitempty"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	DurationUnit   string    `json:"duration_unit"`
	DiscountAmount int64     `json:"discount_amount"`
}

func (r *CreateBookingRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("vehicle_id", r.VehicleID).Required()
	v.Field("renter_id", r.RenterID).Required()
	v.Field("start_date", r.StartDate).Required()
	v.Field("end_date", r.EndDate).Required().After(r.StartDate, "start_date")
	v.Field("duration_unit", r.DurationUnit).Custom(durationUnitRule)
	v.Field("discount_amount", r.DiscountAmount).MinInt(0, internal.ErrCodeInvalidAmount)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *CreateBookingRequest) unit() pricing.DurationUnit {
	if r.DurationUnit == "" {
		return pricing.UnitDay
	}
	return pricing.DurationUnit(r.DurationUnit)
}

func durationUnitRule(value interface{}) *internal.AppError {
	unit, _ := value.(string)
	if unit == "" || pricing.DurationUnit(unit).Valid() {
		return nil
	}
	return internal.NewValidationFieldError("duration_unit", "duration_unit must be one of hour, day, week, month", internal.ErrCodeInvalidDuration)
}

type QuoteRequest struct {
	VehicleID      int64     `json:"vehicle_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	DurationUnit   string    `json:"duration_unit"`
	DiscountAmount int64     `json:"discount_amount"`
}

func (r *QuoteRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("vehicle_id", r.VehicleID).Required()
	v.Field("start_date", r.StartDate).Required()
	v.Field("end_date", r.EndDate).Required().After(r.StartDate, "start_date")
	v.Field("duration_unit", r.DurationUnit).Custom(durationUnitRule)
	v.Field("discount_amount", r.DiscountAmount).MinInt(0, internal.ErrCodeInvalidAmount)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Quote is a price breakdown that was not persisted.
type Quote struct {
	pricing.Breakdown
	VehicleID      int64     `json:"vehicle_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Currency       string    `json:"currency"`
	SuggestedPrice int64     `json:"suggested_price"`
}

type StartTripRequest struct {
	PickupTime     *time.Time `json:"pickup_time,omitempty"`
	OdometerStart  *int64     `json:"odometer_start,omitempty"`
	FuelLevelStart *int       `json:"fuel_level_start,omitempty"`
}

func (r *StartTripRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("odometer_start", r.OdometerStart).MinInt(0, internal.ErrCodeValidationFailed)
	v.Field("fuel_level_start", r.FuelLevelStart).Range(0, 100, internal.ErrCodeValidationFailed)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CompleteTripRequest struct {
	DropoffTime  *time.Time `json:"dropoff_time,omitempty"`
	OdometerEnd  *int64     `json:"odometer_end,omitempty"`
	FuelLevelEnd *int       `json:"fuel_level_end,omitempty"`
	DamageReport *string    `json:"damage_report,omitempty"`
	RenterRating *int       `json:"renter_rating,omitempty"`
}

func (r *CompleteTripRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("odometer_end", r.OdometerEnd).MinInt(0, internal.ErrCodeValidationFailed)
	v.Field("fuel_level_end", r.FuelLevelEnd).Range(0, 100, internal.ErrCodeValidationFailed)
	v.Field("renter_rating", r.RenterRating).Range(1, 5, internal.ErrCodeValidationFailed)
	if r.DamageReport != nil {
		v.Field("damage_report", *r.DamageReport).MaxLength(2000)
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CancelBookingRequest struct {
	Reason     string `json:"reason"`
	WantRefund bool   `json:"want_refund"`
}

func (r *CancelBookingRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("reason", r.Reason).MaxLength(500)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type AssignDriverRequest struct {
	DriverID int64 `json:"driver_id"`
}

const defaultListLimit = 20

// ListFilter selects bookings. Zero fields do not filter.
type ListFilter struct {
	VehicleID     int64      `json:"vehicle_id" validate:"min=0"`
	RenterID      int64      `json:"renter_id" validate:"min=0"`
	DriverID      int64      `json:"driver_id" validate:"min=0"`
	Status        string     `json:"status" validate:"omitempty,oneof=pending confirmed in_progress completed cancelled no_show"`
	PaymentStatus string     `json:"payment_status" validate:"omitempty,oneof=pending partial paid refunded failed"`
	From          *time.Time `json:"from"`
	To            *time.Time `json:"to"`
	Limit         int        `json:"limit" validate:"min=0,max=100"`
	Offset        int        `json:"offset" validate:"min=0"`
}

var filterValidator = validator.New()

// Validate checks the filter and fills in the default page size.
func (f *ListFilter) Validate() error {
	if err := filterValidator.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return internal.NewValidationError(err.Error(), internal.ErrCodeInvalidFilter)
		}
		details := internal.ValidationErrors{}
		for _, fe := range fieldErrs {
			details.Errors = append(details.Errors, internal.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()),
				Code:    string(internal.ErrCodeInvalidFilter),
			})
		}
		return internal.NewValidationError("invalid filter", internal.ErrCodeInvalidFilter).WithDetails(details)
	}

	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return internal.NewValidationFieldError("to", "to must be after from", internal.ErrCodeInvalidFilter)
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	return nil
}

type ListResult struct {
	Bookings []*Booking `json:"bookings"`
	Total    int64      `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
