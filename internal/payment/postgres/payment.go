package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	paymentmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/vehicle-rental/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

var _ paymentpkg.Repository = (*PaymentRepository)(nil)

func (r *PaymentRepository) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}

func (r *PaymentRepository) Create(ctx context.Context, p *paymentpkg.Payment) error {
	model := paymentpkg.ToDataModel(p)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		return err
	}
	p.ID = model.ID
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*paymentpkg.Payment, error) {
	var p paymentmodel.Payment
	if err := r.conn(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentpkg.FromDataModel(&p), nil
}

func (r *PaymentRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*paymentpkg.Payment, error) {
	var p paymentmodel.Payment
	err := r.conn(ctx).Where("correlation_id = ?", correlationID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentpkg.FromDataModel(&p), nil
}

func (r *PaymentRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&paymentmodel.Payment{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID int64) (paymentpkg.Ledger, error) {
	var payments []*paymentmodel.Payment
	err := r.conn(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return paymentpkg.FromDataModelSlice(payments), nil
}

func (r *PaymentRepository) UpdateSettlement(ctx context.Context, id int64, s paymentpkg.Settlement) error {
	updates := map[string]interface{}{
		"status": s.Status,
	}

	if s.Reference != nil {
		updates["gateway_reference"] = *s.Reference
	}

	if s.FailureReason != nil {
		updates["failure_reason"] = *s.FailureReason
	}

	if s.Response != nil {
		updates["gateway_response"] = []byte(s.Response)
	}

	if s.ProcessedAt != nil {
		updates["processed_at"] = *s.ProcessedAt
	}

	res := r.conn(ctx).Model(&paymentmodel.Payment{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) BookingBalance(ctx context.Context, bookingID int64) (*paymentpkg.BookingBalance, error) {
	var b bookingmodel.Booking
	err := r.conn(ctx).
		Select("id", "total_amount", "currency", "status", "payment_status").
		First(&b, bookingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, err
	}
	return &paymentpkg.BookingBalance{
		BookingID:     b.ID,
		Total:         b.TotalAmount,
		Currency:      b.Currency,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
	}, nil
}

func (r *PaymentRepository) LockBooking(ctx context.Context, bookingID int64) error {
	var b bookingmodel.Booking
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&b, bookingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return internal.ErrBookingNotFound
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) SetBookingPaymentStatus(ctx context.Context, bookingID int64, status string) error {
	return r.conn(ctx).Model(&bookingmodel.Booking{}).
		Where("id = ?", bookingID).
		Update("payment_status", status).Error
}
