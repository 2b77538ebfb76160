package driver

import (
	"time"

	drivermodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/driver"
)

const (
	StatusAvailable = drivermodel.StatusAvailable
	StatusOnTrip    = drivermodel.StatusOnTrip
	StatusOffDuty   = drivermodel.StatusOffDuty
)

type Driver struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Driver) Available() bool {
	return d.Status == StatusAvailable
}

func ValidStatus(status string) bool {
	switch status {
	case StatusAvailable, StatusOnTrip, StatusOffDuty:
		return true
	}
	return false
}

func ToDataModel(d *Driver) *drivermodel.Driver {
	return &drivermodel.Driver{
		ID:        d.ID,
		Name:      d.Name,
		Phone:     d.Phone,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func FromDataModel(d *drivermodel.Driver) *Driver {
	return &Driver{
		ID:        d.ID,
		Name:      d.Name,
		Phone:     d.Phone,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
