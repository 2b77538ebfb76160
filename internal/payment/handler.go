package payment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

// ServiceAPI is what the HTTP layer needs from the ledger.
type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetBookingLedger(ctx context.Context, bookingID int64) (*BookingLedgerView, error)
	Refund(ctx context.Context, req RefundRequest) (*Payment, error)
	HandleSettlement(ctx context.Context, cb SettlementCallback) (*Payment, error)
}

type ChargerAPI interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
	Charger        ChargerAPI
	Logger         *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, charger ChargerAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
		Charger:        charger,
		Logger:         logger,
	}
}

// Charge handles POST /api/v1/bookings/{id}/payments
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	bookingID, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	var req ChargeRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Error("Charge: failed to parse request body", "booking_id", bookingID)
		h.HandleError(w, appErr)
		return
	}
	req.BookingID = bookingID

	result, err := h.Charger.Charge(r.Context(), req)
	if err != nil {
		h.Logger.Error("Charge: service error", "error", err, "booking_id", bookingID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Manual {
		status = http.StatusAccepted
	}

	h.Logger.Info("Charge: booking charged",
		"booking_id", bookingID,
		"payment_id", result.Payment.ID,
		"attempts", len(result.Attempts),
		"manual", result.Manual)

	h.WriteJSON(w, status, result)
}

// GetBookingLedger handles GET /api/v1/bookings/{id}/payments
func (h *Handler) GetBookingLedger(w http.ResponseWriter, r *http.Request) {
	bookingID, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	view, err := h.PaymentService.GetBookingLedger(r.Context(), bookingID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.PaymentService.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

// Refund handles POST /api/v1/payments/{id}/refunds
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	var req RefundRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	req.PaymentID = id

	refund, err := h.PaymentService.Refund(r.Context(), req)
	if err != nil {
		h.Logger.Error("Refund: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, refund)
}
