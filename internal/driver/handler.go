package driver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, id int64) (*Driver, error)
	List(ctx context.Context) ([]*Driver, error)
	Create(ctx context.Context, name, phone string) (*Driver, error)
	SetStatus(ctx context.Context, id int64, status string) error
}

type CreateDriverRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type Handler struct {
	*transport.BaseHandler
	DriverService ServiceAPI
	Logger        *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, driverService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:   baseHandler,
		DriverService: driverService,
		Logger:        logger,
	}
}

// CreateDriver handles POST /api/v1/drivers
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	d, err := h.DriverService.Create(r.Context(), req.Name, req.Phone)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, d)
}

// ListDrivers handles GET /api/v1/drivers
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.DriverService.List(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, drivers)
}

// SetStatus handles PUT /api/v1/drivers/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	var req SetStatusRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if err := h.DriverService.SetStatus(r.Context(), id, req.Status); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	d, err := h.DriverService.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, d)
}
