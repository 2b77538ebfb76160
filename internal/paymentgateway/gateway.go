// Package paymentgateway adapts external processors to a single Charge
// call. Declines come back as PAYMENT_DECLINED errors; timeouts and
// transport failures as EXTERNAL_ERROR.
package paymentgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/frahmantamala/vehicle-rental/internal"
)

type Status string

const (
	StatusCompleted  Status = "completed"
	StatusProcessing Status = "processing"
)

type ChargeRequest struct {
	// CorrelationID is sent as the idempotency key and echoed back by
	// processors that support it.
	CorrelationID string
	Amount        int64
	Currency      string
	Description   string
	PaymentMethod string
	Metadata      map[string]string
}

type ChargeResult struct {
	Reference string
	Status    Status
	Raw       json.RawMessage
}

type Gateway interface {
	Name() string
	Method() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Classify turns a raw processor error into the module's error taxonomy.
func Classify(gateway string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return internal.NewExternalServiceError(fmt.Sprintf("%s timed out", gateway), internal.ErrCodeGatewayTimeout, err)
	}
	return internal.NewExternalServiceError(fmt.Sprintf("%s unavailable", gateway), internal.ErrCodeGatewayUnavailable, err)
}

// FailureReason is the short text stored on a failed payment.
func FailureReason(err error) string {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr.Error()
	}
	return err.Error()
}
