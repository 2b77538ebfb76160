package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/paymentgateway"
)

// Ledger operations the orchestrator drives. *Service implements it.
type LedgerWriter interface {
	RecordAttempt(ctx context.Context, req RecordAttemptRequest) (*Payment, error)
	MarkCompleted(ctx context.Context, paymentID int64, data GatewayData) (*Payment, error)
	MarkProcessing(ctx context.Context, paymentID int64, data GatewayData) (*Payment, error)
	MarkFailedBeforeRetry(ctx context.Context, paymentID int64, reason string, data GatewayData) (*Payment, error)
	RecomputeBookingPaymentStatus(ctx context.Context, bookingID int64) (string, error)
	Outstanding(ctx context.Context, bookingID int64) (int64, error)
	GetBookingLedger(ctx context.Context, bookingID int64) (*BookingLedgerView, error)
}

// Orchestrator charges a booking through an ordered list of gateways. Each
// gateway gets exactly one attempt per call; when all of them fail a manual
// bank transfer is recorded as pending.
type Orchestrator struct {
	ledger         LedgerWriter
	gateways       []paymentgateway.Gateway
	attemptTimeout time.Duration
	logger         *slog.Logger
	newCorrelation func() string
}

const defaultAttemptTimeout = 10 * time.Second

func NewOrchestrator(ledger LedgerWriter, gateways []paymentgateway.Gateway, attemptTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &Orchestrator{
		ledger:         ledger,
		gateways:       gateways,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		newCorrelation: uuid.NewString,
	}
}

func (o *Orchestrator) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amount, err := o.amountFor(ctx, req)
	if err != nil {
		return nil, err
	}

	paymentType := req.Type
	if paymentType == "" {
		paymentType = TypePayment
	}

	log := o.logger.With("booking_id", req.BookingID, "amount", amount)
	result := &ChargeResult{}

	for _, gw := range o.gateways {
		p, ok, err := o.attempt(ctx, gw, req, paymentType, amount, result)
		if err != nil {
			return nil, o.abort(ctx, req.BookingID, result, err)
		}
		if ok {
			result.Payment = p
			return o.finish(ctx, req.BookingID, result)
		}
	}

	log.Warn("all gateways failed, awaiting manual bank transfer", "attempts", len(result.Attempts))

	manual, err := o.ledger.RecordAttempt(ctx, RecordAttemptRequest{
		BookingID:     req.BookingID,
		Amount:        amount,
		Type:          paymentType,
		Method:        MethodBank,
		Gateway:       GatewayManual,
		CorrelationID: o.newCorrelation(),
		Description:   "awaiting bank transfer",
	})
	if err != nil {
		return nil, o.abort(ctx, req.BookingID, result, err)
	}
	result.Manual = true
	result.Payment = manual
	result.Attempts = append(result.Attempts, Attempt{Gateway: GatewayManual, PaymentID: manual.ID, Status: manual.Status})

	return o.finish(ctx, req.BookingID, result)
}

func (o *Orchestrator) amountFor(ctx context.Context, req ChargeRequest) (int64, error) {
	if req.Amount != nil {
		return *req.Amount, nil
	}
	outstanding, err := o.ledger.Outstanding(ctx, req.BookingID)
	if err != nil {
		return 0, err
	}
	if outstanding == 0 {
		return 0, internal.NewValidationError("booking is already paid", internal.ErrCodeInvalidAmount)
	}
	return outstanding, nil
}

// attempt returns ok when the gateway accepted the charge. Gateway errors
// are recorded and swallowed; ledger errors are returned.
func (o *Orchestrator) attempt(ctx context.Context, gw paymentgateway.Gateway, req ChargeRequest, paymentType string, amount int64, result *ChargeResult) (*Payment, bool, error) {
	correlationID := o.newCorrelation()

	p, err := o.ledger.RecordAttempt(ctx, RecordAttemptRequest{
		BookingID:     req.BookingID,
		Amount:        amount,
		Type:          paymentType,
		Method:        gw.Method(),
		Gateway:       gw.Name(),
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, false, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	res, chargeErr := gw.Charge(attemptCtx, paymentgateway.ChargeRequest{
		CorrelationID: correlationID,
		Amount:        amount,
		Currency:      p.Currency,
		Description:   fmt.Sprintf("booking %d", req.BookingID),
		PaymentMethod: req.PaymentMethod,
		Metadata: map[string]string{
			"booking_id":     fmt.Sprint(req.BookingID),
			"transaction_id": p.TransactionID,
		},
	})
	cancel()

	if chargeErr != nil {
		chargeErr = paymentgateway.Classify(gw.Name(), chargeErr)
		reason := paymentgateway.FailureReason(chargeErr)

		o.logger.Warn("gateway attempt failed",
			"gateway", gw.Name(),
			"booking_id", req.BookingID,
			"payment_id", p.ID,
			"error", chargeErr)

		// the next attempt or the manual fallback recomputes the booking
		failed, err := o.ledger.MarkFailedBeforeRetry(ctx, p.ID, reason, GatewayData{})
		if err != nil {
			return nil, false, err
		}
		result.Attempts = append(result.Attempts, Attempt{Gateway: gw.Name(), PaymentID: p.ID, Status: failed.Status, Error: reason})
		return nil, false, nil
	}

	data := GatewayData{Reference: res.Reference, Response: res.Raw}
	var settled *Payment
	if res.Status == paymentgateway.StatusProcessing {
		settled, err = o.ledger.MarkProcessing(ctx, p.ID, data)
	} else {
		settled, err = o.ledger.MarkCompleted(ctx, p.ID, data)
	}
	if err != nil {
		return nil, false, err
	}

	o.logger.Info("gateway attempt succeeded",
		"gateway", gw.Name(),
		"booking_id", req.BookingID,
		"payment_id", p.ID,
		"status", settled.Status)

	result.Attempts = append(result.Attempts, Attempt{Gateway: gw.Name(), PaymentID: p.ID, Status: settled.Status})
	return settled, true, nil
}

// abort returns err after bringing the booking's payment status up to date
// with any attempts already failed in this call.
func (o *Orchestrator) abort(ctx context.Context, bookingID int64, result *ChargeResult, err error) error {
	if len(result.Attempts) == 0 {
		return err
	}
	if _, rerr := o.ledger.RecomputeBookingPaymentStatus(ctx, bookingID); rerr != nil {
		o.logger.Error("failed to recompute payment status", "error", rerr, "booking_id", bookingID)
	}
	return err
}

func (o *Orchestrator) finish(ctx context.Context, bookingID int64, result *ChargeResult) (*ChargeResult, error) {
	view, err := o.ledger.GetBookingLedger(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	result.PaymentStatus = view.PaymentStatus
	return result, nil
}
