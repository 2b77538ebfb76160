package payment

import (
	"encoding/json"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/common/validation"
)

// RecordAttemptRequest opens a new ledger row. InitialStatus may be pending
// (the default) or processing.
type RecordAttemptRequest struct {
	BookingID     int64
	Amount        int64
	Currency      string
	Type          string
	Method        string
	Gateway       string
	CorrelationID string
	Description   string
	InitialStatus string
}

func (r *RecordAttemptRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("booking_id", r.BookingID).Required()
	v.Field("amount", r.Amount).Required().MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("method", r.Method).Required().MaxLength(32)
	v.Field("gateway", r.Gateway).Required().MaxLength(32)
	v.Field("type", r.Type).Custom(func(value interface{}) *internal.AppError {
		t := value.(string)
		if t == "" || t == TypeRefund || !ValidType(t) {
			return internal.NewValidationFieldError("type", "type must be payment, deposit, commission or penalty", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	v.Field("initial_status", r.InitialStatus).OneOf("", StatusPending, StatusProcessing)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// GatewayData is what a processor told us about an attempt.
type GatewayData struct {
	Reference string
	Response  json.RawMessage
}

type RefundRequest struct {
	PaymentID int64  `json:"-"`
	Amount    *int64 `json:"amount,omitempty"`
	Reason    string `json:"reason"`
}

func (r *RefundRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("payment_id", r.PaymentID).Required()
	if r.Amount != nil {
		v.Field("amount", *r.Amount).MinInt(1, internal.ErrCodeInvalidAmount)
	}
	v.Field("reason", r.Reason).MaxLength(500)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ChargeRequest struct {
	BookingID     int64  `json:"booking_id"`
	Amount        *int64 `json:"amount,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Type          string `json:"type,omitempty"`
}

func (r *ChargeRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("booking_id", r.BookingID).Required()
	if r.Amount != nil {
		v.Field("amount", *r.Amount).MinInt(1, internal.ErrCodeInvalidAmount)
	}
	v.Field("type", r.Type).OneOf("", TypePayment, TypeDeposit)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Attempt is one gateway try inside a Charge call.
type Attempt struct {
	Gateway   string `json:"gateway"`
	PaymentID int64  `json:"payment_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type ChargeResult struct {
	Attempts      []Attempt `json:"attempts"`
	Payment       *Payment  `json:"payment"`
	PaymentStatus string    `json:"booking_payment_status"`
	// Manual is set when every gateway failed and a bank transfer is
	// awaited instead.
	Manual bool `json:"manual"`
}

// SettlementCallback is posted by asynchronous processors once a charge
// they reported as pending has settled.
type SettlementCallback struct {
	CorrelationID string `json:"external_id"`
	Status        string `json:"status"`
	Reference     string `json:"gateway_payment_id"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (c *SettlementCallback) Validate() error {
	v := validation.NewValidator()
	v.Field("external_id", c.CorrelationID).Required()
	v.Field("status", c.Status).Required().OneOf("SUCCESS", "FAILED", "DECLINED")

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type BookingLedgerView struct {
	BookingID     int64      `json:"booking_id"`
	PaymentStatus string     `json:"payment_status"`
	Totals        Totals     `json:"totals"`
	Refundable    int64      `json:"refundable"`
	Payments      []*Payment `json:"payments"`
}
