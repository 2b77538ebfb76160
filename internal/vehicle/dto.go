package vehicle

import (
	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/common/validation"
)

type CreateVehicleRequest struct {
	Name        string `json:"name"`
	PlateNumber string `json:"plate_number"`
	DailyRate   int64  `json:"daily_rate"`
	HourlyRate  *int64 `json:"hourly_rate,omitempty"`
	WeeklyRate  *int64 `json:"weekly_rate,omitempty"`
	MonthlyRate *int64 `json:"monthly_rate,omitempty"`
	Currency    string `json:"currency"`
}

func (r *CreateVehicleRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("name", r.Name).Required().MaxLength(100)
	v.Field("plate_number", r.PlateNumber).Required().MaxLength(20)
	v.Field("daily_rate", r.DailyRate).Required().MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("hourly_rate", r.HourlyRate).MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("weekly_rate", r.WeeklyRate).MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("monthly_rate", r.MonthlyRate).MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("currency", r.Currency).Required().MinLength(3).MaxLength(3)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
