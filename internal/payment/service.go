package payment

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
)

const maxIdentifierAttempts = 5

// Settlement carries the columns written when an attempt changes state.
// Nil fields are left untouched.
type Settlement struct {
	Status        string
	Reference     *string
	FailureReason *string
	Response      json.RawMessage
	ProcessedAt   *time.Time
}

// BookingBalance is the slice of a booking the ledger needs. Status is the
// booking's lifecycle status.
type BookingBalance struct {
	BookingID     int64
	Total         int64
	Currency      string
	Status        string
	PaymentStatus string
}

// Closed reports whether the booking will never run, so no new charge may
// be taken for it.
func (b *BookingBalance) Closed() bool {
	return b.Status == bookingmodel.StatusCancelled || b.Status == bookingmodel.StatusNoShow
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*Payment, error)
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	ListByBooking(ctx context.Context, bookingID int64) (Ledger, error)
	UpdateSettlement(ctx context.Context, id int64, s Settlement) error
	BookingBalance(ctx context.Context, bookingID int64) (*BookingBalance, error)
	// LockBooking holds the booking row lock until the transaction bound to
	// ctx ends.
	LockBooking(ctx context.Context, bookingID int64) error
	SetBookingPaymentStatus(ctx context.Context, bookingID int64, status string) error
}

// Service is the payment ledger. Every mutation holds the booking lock and
// runs in one transaction that ends with a payment status recompute.
type Service struct {
	repo           Repository
	tx             database.Transactor
	locker         lock.Locker
	publisher      events.Publisher
	logger         *slog.Logger
	commissionRate float64

	now              func() time.Time
	newTransactionID func() string
}

func NewService(repo Repository, tx database.Transactor, locker lock.Locker, publisher events.Publisher, commissionRate float64, logger *slog.Logger) *Service {
	return &Service{
		repo:             repo,
		tx:               tx,
		locker:           locker,
		publisher:        publisher,
		logger:           logger,
		commissionRate:   commissionRate,
		now:              time.Now,
		newTransactionID: func() string { return "TXN-" + uuid.NewString() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) withBooking(ctx context.Context, bookingID int64, fn func(ctx context.Context) error) error {
	ctx, release, err := lock.Hold(ctx, s.locker, lock.BookingKey(bookingID))
	if err != nil {
		return internal.NewInternalError("failed to acquire booking lock", err)
	}
	defer release()

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockBooking(ctx, bookingID); err != nil {
			return storageErr("failed to lock booking", err)
		}
		return fn(ctx)
	})
}

func storageErr(message string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	return internal.NewStorageError(message, err)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("failed to load payment", err)
	}
	return p, nil
}

func (s *Service) ListByBooking(ctx context.Context, bookingID int64) (Ledger, error) {
	ledger, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, storageErr("failed to list payments", err)
	}
	return ledger, nil
}

func (s *Service) GetBookingLedger(ctx context.Context, bookingID int64) (*BookingLedgerView, error) {
	bal, err := s.repo.BookingBalance(ctx, bookingID)
	if err != nil {
		return nil, storageErr("failed to load booking", err)
	}
	ledger, err := s.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingLedgerView{
		BookingID:     bookingID,
		PaymentStatus: bal.PaymentStatus,
		Totals:        ledger.Totals(),
		Refundable:    ledger.TotalRefundable(),
		Payments:      ledger,
	}, nil
}

// Outstanding is the booking total minus the net amount already settled.
func (s *Service) Outstanding(ctx context.Context, bookingID int64) (int64, error) {
	bal, err := s.repo.BookingBalance(ctx, bookingID)
	if err != nil {
		return 0, storageErr("failed to load booking", err)
	}
	ledger, err := s.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	return max(bal.Total-ledger.Totals().Net, 0), nil
}

func (s *Service) RecordAttempt(ctx context.Context, req RecordAttemptRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		s.logger.Warn("payment attempt validation failed", "error", err, "booking_id", req.BookingID)
		return nil, err
	}

	var created *Payment
	err := s.withBooking(ctx, req.BookingID, func(ctx context.Context) error {
		bal, err := s.repo.BookingBalance(ctx, req.BookingID)
		if err != nil {
			return storageErr("failed to load booking", err)
		}
		if bal.Closed() {
			return internal.NewBookingClosedError(bal.Status)
		}

		currency := req.Currency
		if currency == "" {
			currency = bal.Currency
		}
		if currency != bal.Currency {
			return internal.NewValidationFieldError("currency",
				fmt.Sprintf("currency must match booking currency %s", bal.Currency), internal.ErrCodeValidationFailed)
		}

		txnID, err := s.uniqueTransactionID(ctx)
		if err != nil {
			return err
		}

		status := req.InitialStatus
		if status == "" {
			status = StatusPending
		}

		p := &Payment{
			TransactionID: txnID,
			BookingID:     req.BookingID,
			Amount:        req.Amount,
			Currency:      currency,
			Type:          req.Type,
			Status:        status,
			Method:        req.Method,
			Gateway:       req.Gateway,
		}
		if req.Type == TypePayment {
			p.CommissionAmount = pricing.ApplyRate(req.Amount, s.commissionRate)
		}
		p.NetAmount = p.Amount - p.CommissionAmount
		if req.CorrelationID != "" {
			p.CorrelationID = &req.CorrelationID
		}
		if req.Description != "" {
			p.Description = &req.Description
		}

		if err := s.repo.Create(ctx, p); err != nil {
			return storageErr("failed to record payment attempt", err)
		}
		created = p

		_, err = s.recompute(ctx, req.BookingID)
		return err
	})
	if err != nil {
		s.logger.Error("failed to record payment attempt", "error", err, "booking_id", req.BookingID, "gateway", req.Gateway)
		return nil, err
	}

	s.logger.Info("payment attempt recorded",
		"payment_id", created.ID,
		"transaction_id", created.TransactionID,
		"booking_id", created.BookingID,
		"gateway", created.Gateway,
		"amount", created.Amount,
		"status", created.Status)

	return created, nil
}

func (s *Service) uniqueTransactionID(ctx context.Context) (string, error) {
	for i := 0; i < maxIdentifierAttempts; i++ {
		id := s.newTransactionID()
		exists, err := s.repo.TransactionIDExists(ctx, id)
		if err != nil {
			return "", storageErr("failed to check transaction id", err)
		}
		if !exists {
			return id, nil
		}
		s.logger.Warn("transaction id collision, regenerating", "transaction_id", id)
	}
	return "", internal.NewStorageError("could not allocate a unique transaction id", nil)
}

func (s *Service) MarkProcessing(ctx context.Context, paymentID int64, data GatewayData) (*Payment, error) {
	return s.settle(ctx, paymentID, StatusProcessing, []string{StatusPending}, data, nil, true)
}

func (s *Service) MarkCompleted(ctx context.Context, paymentID int64, data GatewayData) (*Payment, error) {
	return s.settle(ctx, paymentID, StatusCompleted, []string{StatusPending, StatusProcessing}, data, nil, true)
}

func (s *Service) MarkFailed(ctx context.Context, paymentID int64, reason string, data GatewayData) (*Payment, error) {
	return s.settle(ctx, paymentID, StatusFailed, []string{StatusPending, StatusProcessing}, data, &reason, true)
}

// MarkFailedBeforeRetry fails an attempt that another attempt on the same
// booking is about to follow. The booking's payment status is left alone;
// the next RecordAttempt recomputes it.
func (s *Service) MarkFailedBeforeRetry(ctx context.Context, paymentID int64, reason string, data GatewayData) (*Payment, error) {
	return s.settle(ctx, paymentID, StatusFailed, []string{StatusPending, StatusProcessing}, data, &reason, false)
}

// Cancel abandons an attempt whose outcome will never arrive, such as a
// manual bank transfer that was never made.
func (s *Service) Cancel(ctx context.Context, paymentID int64, reason string) (*Payment, error) {
	return s.settle(ctx, paymentID, StatusCancelled, []string{StatusPending, StatusProcessing}, GatewayData{}, &reason, true)
}

func (s *Service) settle(ctx context.Context, paymentID int64, to string, from []string, data GatewayData, reason *string, recompute bool) (*Payment, error) {
	current, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var updated *Payment
	err = s.withBooking(ctx, current.BookingID, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, paymentID)
		if err != nil {
			return storageErr("failed to load payment", err)
		}
		if !slices.Contains(from, p.Status) {
			return internal.NewInvalidStateTransitionError("payment", p.Status, to)
		}

		u := Settlement{Status: to, Response: data.Response, FailureReason: reason}
		if data.Reference != "" {
			u.Reference = &data.Reference
		}
		if to != StatusProcessing {
			now := s.now()
			u.ProcessedAt = &now
		}
		if err := s.repo.UpdateSettlement(ctx, p.ID, u); err != nil {
			return storageErr("failed to update payment", err)
		}

		if updated, err = s.repo.GetByID(ctx, paymentID); err != nil {
			return storageErr("failed to reload payment", err)
		}

		if !recompute {
			return nil
		}
		_, err = s.recompute(ctx, p.BookingID)
		return err
	})
	if err != nil {
		s.logger.Error("payment status change failed", "error", err, "payment_id", paymentID, "to", to)
		return nil, err
	}

	s.logger.Info("payment status changed",
		"payment_id", paymentID,
		"booking_id", updated.BookingID,
		"from", current.Status,
		"to", to)

	return updated, nil
}

// HandleSettlement applies an asynchronous processor callback. Replays of a
// callback already applied return the payment unchanged.
func (s *Service) HandleSettlement(ctx context.Context, cb SettlementCallback) (*Payment, error) {
	if err := cb.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByCorrelationID(ctx, cb.CorrelationID)
	if err != nil {
		return nil, storageErr("failed to load payment", err)
	}

	data := GatewayData{Reference: cb.Reference}
	if raw, err := json.Marshal(cb); err == nil {
		data.Response = raw
	}

	if cb.Status == "SUCCESS" {
		if p.Status == StatusCompleted {
			return p, nil
		}
		return s.MarkCompleted(ctx, p.ID, data)
	}

	if p.Status == StatusFailed {
		return p, nil
	}
	reason := cb.FailureReason
	if reason == "" {
		reason = "declined by " + p.Gateway
	}
	return s.MarkFailed(ctx, p.ID, reason, data)
}

// Refund returns money from a settled charge. A nil amount refunds
// everything still refundable.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	source, err := s.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	var refund *Payment
	err = s.withBooking(ctx, source.BookingID, func(ctx context.Context) error {
		ledger, err := s.repo.ListByBooking(ctx, source.BookingID)
		if err != nil {
			return storageErr("failed to list payments", err)
		}
		src := findPayment(ledger, req.PaymentID)
		if src == nil {
			return internal.ErrPaymentNotFound
		}

		if refund, err = s.refundLocked(ctx, ledger, src, req.Amount, req.Reason); err != nil {
			return err
		}

		_, err = s.recompute(ctx, src.BookingID)
		return err
	})
	if err != nil {
		s.logger.Warn("refund rejected", "error", err, "payment_id", req.PaymentID)
		return nil, err
	}

	s.logger.Info("refund recorded",
		"refund_id", refund.ID,
		"payment_id", req.PaymentID,
		"booking_id", refund.BookingID,
		"amount", -refund.Amount)

	return refund, nil
}

// RefundBooking spreads amount over the booking's settled charges, newest
// first. It fails without writing anything when amount exceeds what is
// refundable.
func (s *Service) RefundBooking(ctx context.Context, bookingID, amount int64, reason string) ([]*Payment, error) {
	if amount < 0 {
		return nil, internal.NewValidationFieldError("amount", "amount must not be negative", internal.ErrCodeInvalidAmount)
	}
	if amount == 0 {
		return nil, nil
	}

	var refunds []*Payment
	err := s.withBooking(ctx, bookingID, func(ctx context.Context) error {
		ledger, err := s.repo.ListByBooking(ctx, bookingID)
		if err != nil {
			return storageErr("failed to list payments", err)
		}

		available := ledger.TotalRefundable()
		if amount > available {
			return internal.NewRefundExceedsAvailableError(amount, available)
		}

		sources := slices.Clone(ledger)
		slices.SortStableFunc(sources, func(a, b *Payment) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})

		remaining := amount
		for _, src := range sources {
			part := min(remaining, ledger.Refundable(src))
			if part == 0 {
				continue
			}
			refund, err := s.refundLocked(ctx, ledger, src, &part, reason)
			if err != nil {
				return err
			}
			ledger = append(ledger, refund)
			refunds = append(refunds, refund)

			if remaining -= part; remaining == 0 {
				break
			}
		}

		_, err = s.recompute(ctx, bookingID)
		return err
	})
	if err != nil {
		s.logger.Warn("booking refund rejected", "error", err, "booking_id", bookingID, "amount", amount)
		return nil, err
	}

	s.logger.Info("booking refunded", "booking_id", bookingID, "amount", amount, "refunds", len(refunds))
	return refunds, nil
}

func (s *Service) refundLocked(ctx context.Context, ledger Ledger, src *Payment, amount *int64, reason string) (*Payment, error) {
	if !src.CanBeRefunded() {
		return nil, internal.NewValidationError(
			fmt.Sprintf("%s payment %d is %s and cannot be refunded", src.Type, src.ID, src.Status),
			internal.ErrCodeRefundNotAllowed)
	}

	available := ledger.Refundable(src)
	requested := available
	if amount != nil {
		requested = *amount
	}
	if requested <= 0 {
		return nil, internal.NewValidationError("nothing left to refund", internal.ErrCodeRefundNotAllowed)
	}
	if requested > available {
		return nil, internal.NewRefundExceedsAvailableError(requested, available)
	}

	txnID, err := s.uniqueTransactionID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	parentID := src.ID
	refund := &Payment{
		TransactionID:   txnID,
		BookingID:       src.BookingID,
		Amount:          -requested,
		Currency:        src.Currency,
		Type:            TypeRefund,
		Status:          StatusCompleted,
		Method:          src.Method,
		Gateway:         src.Gateway,
		NetAmount:       -requested,
		ParentPaymentID: &parentID,
		ProcessedAt:     &now,
	}
	if reason != "" {
		refund.Description = &reason
	}
	if err := s.repo.Create(ctx, refund); err != nil {
		return nil, storageErr("failed to record refund", err)
	}

	srcStatus := StatusPartiallyRefunded
	if requested == available {
		srcStatus = StatusRefunded
	}
	if err := s.repo.UpdateSettlement(ctx, src.ID, Settlement{Status: srcStatus}); err != nil {
		return nil, storageErr("failed to update refunded payment", err)
	}
	src.Status = srcStatus

	return refund, nil
}

func (s *Service) Refundable(ctx context.Context, paymentID int64) (int64, error) {
	p, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	ledger, err := s.ListByBooking(ctx, p.BookingID)
	if err != nil {
		return 0, err
	}
	if src := findPayment(ledger, paymentID); src != nil {
		return ledger.Refundable(src), nil
	}
	return 0, internal.ErrPaymentNotFound
}

func (s *Service) BookingRefundable(ctx context.Context, bookingID int64) (int64, error) {
	ledger, err := s.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	return ledger.TotalRefundable(), nil
}

// RecomputeBookingPaymentStatus re-derives the booking's payment_status from
// its ledger. Calling it again without ledger changes writes nothing.
func (s *Service) RecomputeBookingPaymentStatus(ctx context.Context, bookingID int64) (string, error) {
	var status string
	err := s.withBooking(ctx, bookingID, func(ctx context.Context) error {
		var err error
		status, err = s.recompute(ctx, bookingID)
		return err
	})
	return status, err
}

func (s *Service) recompute(ctx context.Context, bookingID int64) (string, error) {
	bal, err := s.repo.BookingBalance(ctx, bookingID)
	if err != nil {
		return "", storageErr("failed to load booking", err)
	}
	ledger, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return "", storageErr("failed to list payments", err)
	}

	next := DerivePaymentStatus(bal.Total, ledger)
	if next == bal.PaymentStatus {
		return next, nil
	}

	if err := s.repo.SetBookingPaymentStatus(ctx, bookingID, next); err != nil {
		return "", storageErr("failed to update booking payment status", err)
	}

	s.logger.Info("booking payment status changed",
		"booking_id", bookingID,
		"from", bal.PaymentStatus,
		"to", next)

	if s.publisher != nil {
		event := events.NewPaymentStatusChangedEvent(bookingID, bal.PaymentStatus, next, ledger.Totals().Net)
		database.AfterCommit(ctx, func(ctx context.Context) {
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Error("failed to publish payment status change", "error", err, "booking_id", bookingID)
			}
		})
	}

	return next, nil
}

func findPayment(ledger Ledger, id int64) *Payment {
	for _, p := range ledger {
		if p.ID == id {
			return p
		}
	}
	return nil
}
