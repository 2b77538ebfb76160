package vehicle

import (
	"time"

	vehiclemodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/vehicle"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
)

const (
	StatusActive      = vehiclemodel.StatusActive
	StatusMaintenance = vehiclemodel.StatusMaintenance
	StatusUnavailable = vehiclemodel.StatusUnavailable
	StatusRetired     = vehiclemodel.StatusRetired
)

type Vehicle struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PlateNumber   string    `json:"plate_number"`
	DailyRate     int64     `json:"daily_rate"`
	HourlyRate    *int64    `json:"hourly_rate,omitempty"`
	WeeklyRate    *int64    `json:"weekly_rate,omitempty"`
	MonthlyRate   *int64    `json:"monthly_rate,omitempty"`
	Currency      string    `json:"currency"`
	IsAvailable   bool      `json:"is_available"`
	Status        string    `json:"status"`
	TotalBookings int64     `json:"total_bookings"`
	AverageRating float64   `json:"average_rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Operational reports whether the vehicle can take new bookings.
func (v *Vehicle) Operational() bool {
	return v.Status == StatusActive && v.IsAvailable
}

func (v *Vehicle) Rates() pricing.Rates {
	return pricing.Rates{
		HourlyRate:  v.HourlyRate,
		DailyRate:   v.DailyRate,
		WeeklyRate:  v.WeeklyRate,
		MonthlyRate: v.MonthlyRate,
	}
}

// Stats are the aggregates derived from a vehicle's completed bookings.
type Stats struct {
	TotalBookings int64
	AverageRating float64
}

func ToDataModel(v *Vehicle) *vehiclemodel.Vehicle {
	return &vehiclemodel.Vehicle{
		ID:            v.ID,
		Name:          v.Name,
		PlateNumber:   v.PlateNumber,
		DailyRate:     v.DailyRate,
		HourlyRate:    v.HourlyRate,
		WeeklyRate:    v.WeeklyRate,
		MonthlyRate:   v.MonthlyRate,
		Currency:      v.Currency,
		IsAvailable:   v.IsAvailable,
		Status:        v.Status,
		TotalBookings: v.TotalBookings,
		AverageRating: v.AverageRating,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

func FromDataModel(v *vehiclemodel.Vehicle) *Vehicle {
	return &Vehicle{
		ID:            v.ID,
		Name:          v.Name,
		PlateNumber:   v.PlateNumber,
		DailyRate:     v.DailyRate,
		HourlyRate:    v.HourlyRate,
		WeeklyRate:    v.WeeklyRate,
		MonthlyRate:   v.MonthlyRate,
		Currency:      v.Currency,
		IsAvailable:   v.IsAvailable,
		Status:        v.Status,
		TotalBookings: v.TotalBookings,
		AverageRating: v.AverageRating,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}
