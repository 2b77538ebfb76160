package postgres

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	vehiclemodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/vehicle"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
)

type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

var _ vehicle.Repository = (*VehicleRepository)(nil)

func (r *VehicleRepository) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}

func (r *VehicleRepository) Create(ctx context.Context, v *vehicle.Vehicle) error {
	model := vehicle.ToDataModel(v)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		return err
	}
	v.ID = model.ID
	v.CreatedAt = model.CreatedAt
	v.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*vehicle.Vehicle, error) {
	var v vehiclemodel.Vehicle
	if err := r.conn(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrVehicleNotFound
		}
		return nil, err
	}
	return vehicle.FromDataModel(&v), nil
}

func (r *VehicleRepository) List(ctx context.Context) ([]*vehicle.Vehicle, error) {
	var models []*vehiclemodel.Vehicle
	if err := r.conn(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*vehicle.Vehicle, len(models))
	for i, m := range models {
		out[i] = vehicle.FromDataModel(m)
	}
	return out, nil
}

func (r *VehicleRepository) CompletedStats(ctx context.Context, vehicleID int64) (vehicle.Stats, error) {
	var row struct {
		Total int64
		Avg   *float64
	}
	err := r.conn(ctx).Model(&bookingmodel.Booking{}).
		Select("COUNT(*) AS total, AVG(renter_rating) AS avg").
		Where("vehicle_id = ? AND status = ?", vehicleID, bookingmodel.StatusCompleted).
		Scan(&row).Error
	if err != nil {
		return vehicle.Stats{}, err
	}

	stats := vehicle.Stats{TotalBookings: row.Total}
	if row.Avg != nil {
		stats.AverageRating = math.Round(*row.Avg*100) / 100
	}
	return stats, nil
}

func (r *VehicleRepository) UpdateStats(ctx context.Context, vehicleID int64, stats vehicle.Stats) error {
	res := r.conn(ctx).Model(&vehiclemodel.Vehicle{}).
		Where("id = ?", vehicleID).
		Updates(map[string]interface{}{
			"total_bookings": stats.TotalBookings,
			"average_rating": stats.AverageRating,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrVehicleNotFound
	}
	return nil
}
