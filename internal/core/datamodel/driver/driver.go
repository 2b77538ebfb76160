package driver

import "time"

const (
	StatusAvailable = "available"
	StatusOnTrip    = "on_trip"
	StatusOffDuty   = "off_duty"
)

type Driver struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Phone     string    `gorm:"column:phone"`
	Status    string    `gorm:"column:status;not null;default:available"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Driver) TableName() string {
	return "drivers"
}
