package vehicle

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, id int64) (*Vehicle, error)
	List(ctx context.Context) ([]*Vehicle, error)
	Create(ctx context.Context, req CreateVehicleRequest) (*Vehicle, error)
}

type Handler struct {
	*transport.BaseHandler
	VehicleService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, vehicleService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		VehicleService: vehicleService,
		Logger:         logger,
	}
}

// CreateVehicle handles POST /api/v1/vehicles
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	v, err := h.VehicleService.Create(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, v)
}

// GetVehicle handles GET /api/v1/vehicles/{id}
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	v, err := h.VehicleService.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, v)
}

// ListVehicles handles GET /api/v1/vehicles
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.VehicleService.List(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, vehicles)
}
