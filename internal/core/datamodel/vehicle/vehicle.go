package vehicle

import "time"

const (
	StatusActive      = "active"
	StatusMaintenance = "maintenance"
	StatusUnavailable = "unavailable"
	StatusRetired     = "retired"
)

type Vehicle struct {
	ID            int64     `gorm:"primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	PlateNumber   string    `gorm:"column:plate_number;not null;uniqueIndex"`
	DailyRate     int64     `gorm:"column:daily_rate;not null"`
	HourlyRate    *int64    `gorm:"column:hourly_rate"`
	WeeklyRate    *int64    `gorm:"column:weekly_rate"`
	MonthlyRate   *int64    `gorm:"column:monthly_rate"`
	Currency      string    `gorm:"column:currency;not null;default:USD"`
	IsAvailable   bool      `gorm:"column:is_available;not null"`
	Status        string    `gorm:"column:status;not null;default:active"`
	TotalBookings int64     `gorm:"column:total_bookings;not null;default:0"`
	AverageRating float64   `gorm:"column:average_rating;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}
