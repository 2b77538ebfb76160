package payment

import (
	"encoding/json"
	"time"

	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	paymentmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/payment"
)

const (
	TypePayment    = paymentmodel.TypePayment
	TypeDeposit    = paymentmodel.TypeDeposit
	TypeRefund     = paymentmodel.TypeRefund
	TypeCommission = paymentmodel.TypeCommission
	TypePenalty    = paymentmodel.TypePenalty

	StatusPending           = paymentmodel.StatusPending
	StatusProcessing        = paymentmodel.StatusProcessing
	StatusCompleted         = paymentmodel.StatusCompleted
	StatusFailed            = paymentmodel.StatusFailed
	StatusCancelled         = paymentmodel.StatusCancelled
	StatusRefunded          = paymentmodel.StatusRefunded
	StatusPartiallyRefunded = paymentmodel.StatusPartiallyRefunded

	paymentStatusPending  = bookingmodel.PaymentStatusPending
	paymentStatusPartial  = bookingmodel.PaymentStatusPartial
	paymentStatusPaid     = bookingmodel.PaymentStatusPaid
	paymentStatusRefunded = bookingmodel.PaymentStatusRefunded
	paymentStatusFailed   = bookingmodel.PaymentStatusFailed

	GatewayManual = "manual"
	MethodBank    = "bank_transfer"
)

type Payment struct {
	ID               int64           `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	BookingID        int64           `json:"booking_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	Gateway          string          `json:"gateway"`
	GatewayReference *string         `json:"gateway_reference,omitempty"`
	CorrelationID    *string         `json:"correlation_id,omitempty"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	Description      *string         `json:"description,omitempty"`
	GatewayResponse  json.RawMessage `json:"gateway_response,omitempty"`
	CommissionAmount int64           `json:"commission_amount"`
	NetAmount        int64           `json:"net_amount"`
	ParentPaymentID  *int64          `json:"parent_payment_id,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func ValidType(t string) bool {
	switch t {
	case TypePayment, TypeDeposit, TypeRefund, TypeCommission, TypePenalty:
		return true
	}
	return false
}

// IsOpen reports whether the gateway outcome is still unknown.
func (p *Payment) IsOpen() bool {
	return p.Status == StatusPending || p.Status == StatusProcessing
}

// CanBeRefunded is true for settled charges that have not been fully
// returned.
func (p *Payment) CanBeRefunded() bool {
	return p.Type == TypePayment &&
		(p.Status == StatusCompleted || p.Status == StatusPartiallyRefunded)
}

// countsAsSettled is true for money that actually moved to us.
func (p *Payment) countsAsSettled() bool {
	return p.Type == TypePayment &&
		(p.Status == StatusCompleted || p.Status == StatusPartiallyRefunded || p.Status == StatusRefunded)
}

func (p *Payment) isCompletedRefund() bool {
	return p.Type == TypeRefund && p.Status == StatusCompleted
}

// Ledger is every payment row recorded against one booking.
type Ledger []*Payment

type Totals struct {
	Paid     int64 `json:"paid"`
	Refunded int64 `json:"refunded"`
	Net      int64 `json:"net"`
}

func (l Ledger) Totals() Totals {
	var t Totals
	for _, p := range l {
		switch {
		case p.countsAsSettled():
			t.Paid += p.Amount
		case p.isCompletedRefund():
			t.Refunded += abs(p.Amount)
		}
	}
	t.Net = t.Paid - t.Refunded
	return t
}

// RefundedAgainst sums completed refunds whose parent is paymentID.
func (l Ledger) RefundedAgainst(paymentID int64) int64 {
	var sum int64
	for _, p := range l {
		if p.isCompletedRefund() && p.ParentPaymentID != nil && *p.ParentPaymentID == paymentID {
			sum += abs(p.Amount)
		}
	}
	return sum
}

// Refundable is how much of source can still be returned.
func (l Ledger) Refundable(source *Payment) int64 {
	if !source.CanBeRefunded() {
		return 0
	}
	return max(source.Amount-l.RefundedAgainst(source.ID), 0)
}

func (l Ledger) TotalRefundable() int64 {
	var sum int64
	for _, p := range l {
		sum += l.Refundable(p)
	}
	return sum
}

// DerivePaymentStatus maps a booking's ledger to its payment_status. It is
// a pure function of the ledger and the booking total.
//
// A booking whose net settled amount has been fully returned is refunded;
// otherwise it is paid once net covers the total and partial while some
// money is held. With nothing held, it is failed only when every attempt
// has failed or been cancelled, and pending in all other cases.
func DerivePaymentStatus(total int64, ledger Ledger) string {
	t := ledger.Totals()

	switch {
	case t.Refunded > 0 && t.Net <= 0:
		return paymentStatusRefunded
	case t.Net > 0 && t.Net >= total:
		return paymentStatusPaid
	case t.Net > 0:
		return paymentStatusPartial
	}

	attempts, dead := 0, 0
	for _, p := range ledger {
		if p.Type != TypePayment {
			continue
		}
		attempts++
		if p.Status == StatusFailed || p.Status == StatusCancelled {
			dead++
		}
	}
	if attempts > 0 && attempts == dead {
		return paymentStatusFailed
	}
	return paymentStatusPending
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func ToDataModel(p *Payment) *paymentmodel.Payment {
	return &paymentmodel.Payment{
		ID:               p.ID,
		TransactionID:    p.TransactionID,
		BookingID:        p.BookingID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Type:             p.Type,
		Status:           p.Status,
		Method:           p.Method,
		Gateway:          p.Gateway,
		GatewayReference: p.GatewayReference,
		CorrelationID:    p.CorrelationID,
		FailureReason:    p.FailureReason,
		Description:      p.Description,
		GatewayResponse:  p.GatewayResponse,
		CommissionAmount: p.CommissionAmount,
		NetAmount:        p.NetAmount,
		ParentPaymentID:  p.ParentPaymentID,
		ProcessedAt:      p.ProcessedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func FromDataModel(p *paymentmodel.Payment) *Payment {
	return &Payment{
		ID:               p.ID,
		TransactionID:    p.TransactionID,
		BookingID:        p.BookingID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Type:             p.Type,
		Status:           p.Status,
		Method:           p.Method,
		Gateway:          p.Gateway,
		GatewayReference: p.GatewayReference,
		CorrelationID:    p.CorrelationID,
		FailureReason:    p.FailureReason,
		Description:      p.Description,
		GatewayResponse:  p.GatewayResponse,
		CommissionAmount: p.CommissionAmount,
		NetAmount:        p.NetAmount,
		ParentPaymentID:  p.ParentPaymentID,
		ProcessedAt:      p.ProcessedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func FromDataModelSlice(payments []*paymentmodel.Payment) Ledger {
	result := make(Ledger, len(payments))
	for i, p := range payments {
		result[i] = FromDataModel(p)
	}
	return result
}
