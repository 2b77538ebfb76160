package paymentgateway

import (
	"errors"
)

// ChargeStatus is the settlement state reported by the fallback processor.
type ChargeStatus string

const (
	ChargeStatusPending  ChargeStatus = "PENDING"
	ChargeStatusSuccess  ChargeStatus = "SUCCESS"
	ChargeStatusFailed   ChargeStatus = "FAILED"
	ChargeStatusDeclined ChargeStatus = "DECLINED"
)

// Accepted reports whether the processor took the charge, settled or not.
func (s ChargeStatus) Accepted() bool {
	return s == ChargeStatusSuccess || s == ChargeStatusPending
}

// ChargeRequest is the body of POST /payments. ExternalID carries the
// attempt's correlation id so a retried request settles at most once.
type ChargeRequest struct {
	ExternalID    string            `json:"external_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (r *ChargeRequest) Validate() error {
	if r.ExternalID == "" {
		return errors.New("external_id is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be a 3-letter ISO code")
	}
	return nil
}

type ChargeData struct {
	ID            string       `json:"id"`
	ExternalID    string       `json:"external_id"`
	Status        ChargeStatus `json:"status"`
	Amount        int64        `json:"amount,omitempty"`
	Currency      string       `json:"currency,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

type ChargeResponse struct {
	Data ChargeData `json:"data"`
}
