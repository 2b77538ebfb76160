package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/availability"
	"github.com/frahmantamala/vehicle-rental/internal/booking"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	vehiclemodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/vehicle"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

var _ booking.Repository = (*BookingRepository)(nil)

func (r *BookingRepository) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	model := booking.ToDataModel(b)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return internal.ErrDuplicateNumber
		}
		return err
	}
	b.ID = model.ID
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*booking.Booking, error) {
	var b bookingmodel.Booking
	if err := r.conn(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, err
	}
	return booking.FromDataModel(&b), nil
}

func (r *BookingRepository) GetByNumber(ctx context.Context, number string) (*booking.Booking, error) {
	var b bookingmodel.Booking
	if err := r.conn(ctx).Where("booking_number = ?", number).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, err
	}
	return booking.FromDataModel(&b), nil
}

func (r *BookingRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&bookingmodel.Booking{}).
		Where("booking_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// GetForUpdate loads the booking and holds its row lock until the
// transaction bound to ctx ends.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id int64) (*booking.Booking, error) {
	var b bookingmodel.Booking
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, err
	}
	return booking.FromDataModel(&b), nil
}

// Update writes b only while the stored status still equals
// expectedStatus.
func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking, expectedStatus string) error {
	model := booking.ToDataModel(b)
	res := r.conn(ctx).Model(model).
		Select("*").
		Omit("id", "payment_status", "created_at").
		Where("status = ?", expectedStatus).
		Updates(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrBookingStatusChanged
	}
	b.UpdatedAt = model.UpdatedAt
	return nil
}

func filterScope(f booking.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.VehicleID != 0 {
			db = db.Where("vehicle_id = ?", f.VehicleID)
		}
		if f.RenterID != 0 {
			db = db.Where("renter_id = ?", f.RenterID)
		}
		if f.DriverID != 0 {
			db = db.Where("driver_id = ?", f.DriverID)
		}
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.PaymentStatus != "" {
			db = db.Where("payment_status = ?", f.PaymentStatus)
		}
		if f.From != nil {
			db = db.Where("end_date > ?", *f.From)
		}
		if f.To != nil {
			db = db.Where("start_date < ?", *f.To)
		}
		return db
	}
}

func (r *BookingRepository) List(ctx context.Context, f booking.ListFilter) ([]*booking.Booking, int64, error) {
	var total int64
	err := r.conn(ctx).Model(&bookingmodel.Booking{}).
		Scopes(filterScope(f)).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var models []*bookingmodel.Booking
	err = r.conn(ctx).
		Scopes(filterScope(f)).
		Order("start_date DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*booking.Booking, len(models))
	for i, m := range models {
		out[i] = booking.FromDataModel(m)
	}
	return out, total, nil
}

func (r *BookingRepository) ListStartedBefore(ctx context.Context, status string, before time.Time, limit int) ([]*booking.Booking, error) {
	var models []*bookingmodel.Booking
	err := r.conn(ctx).
		Where("status = ? AND start_date < ?", status, before).
		Order("start_date ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*booking.Booking, len(models))
	for i, m := range models {
		out[i] = booking.FromDataModel(m)
	}
	return out, nil
}

// ReservationsForVehicle returns the active bookings on the vehicle that
// overlap window.
func (r *BookingRepository) ReservationsForVehicle(ctx context.Context, vehicleID int64, window availability.Interval) ([]availability.Reservation, error) {
	var rows []bookingmodel.Booking
	err := r.conn(ctx).
		Select("id", "status", "start_date", "end_date").
		Where("vehicle_id = ? AND status IN ? AND start_date < ? AND end_date > ?",
			vehicleID, bookingmodel.ActiveStatuses, window.End, window.Start).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]availability.Reservation, len(rows))
	for i, row := range rows {
		out[i] = availability.Reservation{
			BookingID: row.ID,
			Status:    row.Status,
			Period:    availability.Interval{Start: row.StartDate, End: row.EndDate},
		}
	}
	return out, nil
}

func (r *BookingRepository) CountNearby(ctx context.Context, vehicleID, excludeID int64, window availability.Interval) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&bookingmodel.Booking{}).
		Where("vehicle_id = ? AND id <> ? AND status <> ? AND start_date >= ? AND start_date <= ?",
			vehicleID, excludeID, bookingmodel.StatusCancelled, window.Start, window.End).
		Count(&count).Error
	return count, err
}

func (r *BookingRepository) LockVehicle(ctx context.Context, vehicleID int64) error {
	var v vehiclemodel.Vehicle
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&v, vehicleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return internal.ErrVehicleNotFound
		}
		return err
	}
	return nil
}
