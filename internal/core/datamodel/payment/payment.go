package payment

import (
	"encoding/json"
	"time"
)

const (
	TypePayment    = "payment"
	TypeDeposit    = "deposit"
	TypeRefund     = "refund"
	TypeCommission = "commission"
	TypePenalty    = "penalty"
)

const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusCancelled         = "cancelled"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

type Payment struct {
	ID               int64           `gorm:"primaryKey"`
	TransactionID    string          `gorm:"column:transaction_id;not null;uniqueIndex"`
	BookingID        int64           `gorm:"column:booking_id;not null;index"`
	Amount           int64           `gorm:"column:amount;not null"`
	Currency         string          `gorm:"column:currency;not null"`
	Type             string          `gorm:"column:type;not null;default:payment"`
	Status           string          `gorm:"column:status;not null;default:pending"`
	Method           string          `gorm:"column:method;not null"`
	Gateway          string          `gorm:"column:gateway;not null"`
	GatewayReference *string         `gorm:"column:gateway_reference"`
	CorrelationID    *string         `gorm:"column:correlation_id;uniqueIndex"`
	FailureReason    *string         `gorm:"column:failure_reason"`
	Description      *string         `gorm:"column:description"`
	GatewayResponse  json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	CommissionAmount int64           `gorm:"column:commission_amount;not null;default:0"`
	NetAmount        int64           `gorm:"column:net_amount;not null;default:0"`
	ParentPaymentID  *int64          `gorm:"column:parent_payment_id;index"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}
