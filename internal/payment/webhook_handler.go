package payment

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

// WebhookHandler receives settlement callbacks from processors that answered
// a charge with PENDING.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		logger:         logger,
	}
}

type PaymentCallbackResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	PaymentID     int64  `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
}

func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req SettlementCallback
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.logger.Error("invalid payment callback request")
		h.HandleError(w, appErr)
		return
	}

	h.logger.Info("received payment callback",
		"external_id", req.CorrelationID,
		"status", req.Status,
		"gateway_payment_id", req.Reference)

	p, err := h.paymentService.HandleSettlement(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process payment callback",
			"error", err,
			"external_id", req.CorrelationID,
			"status", req.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.logger.Info("payment callback processed successfully",
		"external_id", req.CorrelationID,
		"payment_id", p.ID,
		"payment_status", p.Status)

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:        "success",
		Message:       "callback processed successfully",
		PaymentID:     p.ID,
		PaymentStatus: p.Status,
	})
}
