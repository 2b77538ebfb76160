package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	drivermodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/driver"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
)

type DriverRepository struct {
	db *gorm.DB
}

func NewDriverRepository(db *gorm.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

var _ driver.Repository = (*DriverRepository)(nil)

func (r *DriverRepository) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}

func (r *DriverRepository) Create(ctx context.Context, d *driver.Driver) error {
	model := driver.ToDataModel(d)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		return err
	}
	d.ID = model.ID
	d.CreatedAt = model.CreatedAt
	d.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *DriverRepository) GetByID(ctx context.Context, id int64) (*driver.Driver, error) {
	var d drivermodel.Driver
	if err := r.conn(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrDriverNotFound
		}
		return nil, err
	}
	return driver.FromDataModel(&d), nil
}

func (r *DriverRepository) List(ctx context.Context) ([]*driver.Driver, error) {
	var models []*drivermodel.Driver
	if err := r.conn(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*driver.Driver, len(models))
	for i, m := range models {
		out[i] = driver.FromDataModel(m)
	}
	return out, nil
}

func (r *DriverRepository) SetStatus(ctx context.Context, id int64, status string) error {
	res := r.conn(ctx).Model(&drivermodel.Driver{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrDriverNotFound
	}
	return nil
}
