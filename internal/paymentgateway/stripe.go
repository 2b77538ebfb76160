package paymentgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/frahmantamala/vehicle-rental/internal"
)

const StripeName = "stripe"

type paymentIntentCreator interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
}

// StripeGateway confirms a PaymentIntent synchronously against a saved
// payment method.
type StripeGateway struct {
	intents paymentIntentCreator
	logger  *slog.Logger
}

func NewStripeGateway(sc *stripe.Client, logger *slog.Logger) *StripeGateway {
	return &StripeGateway{intents: sc.V1PaymentIntents, logger: logger}
}

func (g *StripeGateway) Name() string   { return StripeName }
func (g *StripeGateway) Method() string { return "card" }

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("correlation_id", req.CorrelationID)
	params.SetIdempotencyKey(req.CorrelationID)

	g.logger.Info("creating stripe payment intent",
		"correlation_id", req.CorrelationID,
		"amount", req.Amount,
		"currency", req.Currency)

	pi, err := g.intents.Create(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return stripeResult(pi)
}

func stripeResult(pi *stripe.PaymentIntent) (*ChargeResult, error) {
	raw, _ := json.Marshal(map[string]interface{}{
		"id":     pi.ID,
		"status": pi.Status,
	})
	result := &ChargeResult{Reference: pi.ID, Raw: raw}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = StatusCompleted
		return result, nil
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		result.Status = StatusProcessing
		return result, nil
	}

	reason := string(pi.Status)
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	return nil, internal.NewPaymentDeclinedError(StripeName, reason)
}

func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			reason := stripeErr.Msg
			if stripeErr.DeclineCode != "" {
				reason = fmt.Sprintf("%s (%s)", reason, stripeErr.DeclineCode)
			}
			return internal.NewPaymentDeclinedError(StripeName, reason)
		}
		return internal.NewExternalServiceError(
			fmt.Sprintf("stripe returned %s", stripeErr.Type), internal.ErrCodeGatewayUnavailable, err)
	}
	return Classify(StripeName, err)
}
