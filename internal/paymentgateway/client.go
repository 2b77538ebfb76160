package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vehicle-rental/internal"
	gatewaytypes "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/paymentgateway"
)

type Config struct {
	Name    string
	BaseURL string
	APIKey  string
}

// HTTPGateway talks to a JSON payment processor exposing POST /payments.
// It is used as the fallback behind Stripe.
type HTTPGateway struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPGateway(config Config, logger *slog.Logger) *HTTPGateway {
	name := config.Name
	if name == "" {
		name = "fallback"
	}
	return &HTTPGateway{
		name:    name,
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (g *HTTPGateway) Name() string   { return g.name }
func (g *HTTPGateway) Method() string { return "card" }

// Charge has no timeout of its own; callers bound it through ctx.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body := gatewaytypes.ChargeRequest{
		ExternalID:    req.CorrelationID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	}
	if err := body.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.CorrelationID)
	if g.apiKey != "" {
		httpReq.Header.Set("X-API-Key", g.apiKey)
	}

	g.logger.Info("sending charge to payment processor",
		"gateway", g.name,
		"correlation_id", req.CorrelationID,
		"amount", req.Amount)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, Classify(g.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(g.name, err)
	}

	var apiResponse gatewaytypes.ChargeResponse
	decodeErr := json.Unmarshal(raw, &apiResponse)

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, internal.NewPaymentDeclinedError(g.name, declineReason(apiResponse.Data, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, internal.NewExternalServiceError(
			fmt.Sprintf("%s returned status %d", g.name, resp.StatusCode), internal.ErrCodeGatewayUnavailable, nil)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, internal.NewExternalServiceError(
			fmt.Sprintf("%s rejected request with status %d", g.name, resp.StatusCode), internal.ErrCodeGatewayUnavailable, nil)
	}

	if decodeErr != nil {
		return nil, internal.NewExternalServiceError(
			fmt.Sprintf("%s sent an unreadable response", g.name), internal.ErrCodeGatewayUnavailable, decodeErr)
	}

	data := apiResponse.Data
	if data.Status.Accepted() && data.Amount != 0 && data.Amount != req.Amount {
		return nil, internal.NewExternalServiceError(
			fmt.Sprintf("%s settled %d instead of %d", g.name, data.Amount, req.Amount), internal.ErrCodeGatewayUnavailable, nil)
	}

	result := &ChargeResult{Reference: data.ID, Raw: raw}
	switch data.Status {
	case gatewaytypes.ChargeStatusSuccess:
		result.Status = StatusCompleted
	case gatewaytypes.ChargeStatusPending:
		result.Status = StatusProcessing
	default:
		return nil, internal.NewPaymentDeclinedError(g.name, declineReason(data, resp.StatusCode))
	}

	g.logger.Info("payment processor accepted charge",
		"gateway", g.name,
		"correlation_id", req.CorrelationID,
		"reference", result.Reference,
		"status", result.Status)

	return result, nil
}

func declineReason(data gatewaytypes.ChargeData, statusCode int) string {
	if data.FailureReason != "" {
		return data.FailureReason
	}
	if data.Status != "" {
		return string(data.Status)
	}
	return fmt.Sprintf("status %d", statusCode)
}
