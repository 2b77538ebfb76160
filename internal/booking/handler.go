package booking

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, req CreateBookingRequest) (*Booking, error)
	Get(ctx context.Context, id int64) (*Booking, error)
	GetByNumber(ctx context.Context, number string) (*Booking, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	HasConflict(ctx context.Context, vehicleID int64, start, end time.Time, excludeBookingID int64) (bool, error)
	Confirm(ctx context.Context, id int64) (*Booking, error)
	StartTrip(ctx context.Context, id int64, req StartTripRequest) (*Booking, error)
	Complete(ctx context.Context, id int64, req CompleteTripRequest) (*Booking, error)
	Cancel(ctx context.Context, id int64, req CancelBookingRequest) (*Booking, error)
	MarkNoShow(ctx context.Context, id int64) (*Booking, error)
	AssignDriver(ctx context.Context, id, driverID int64) (*Booking, error)
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

type Handler struct {
	*transport.BaseHandler
	BookingService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, bookingService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		BookingService: bookingService,
		Logger:         logger,
	}
}

type AvailabilityResponse struct {
	VehicleID int64     `json:"vehicle_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Available bool      `json:"available"`
}

// CreateBooking handles POST /api/v1/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Error("CreateBooking: failed to parse request body")
		h.HandleError(w, appErr)
		return
	}
	if req.RenterID == 0 {
		req.RenterID = internal.RenterIDFromContext(r.Context())
	}

	b, err := h.BookingService.Create(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, b)
}

// GetBooking handles GET /api/v1/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	b, err := h.BookingService.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, b)
}

// GetBookingByNumber handles GET /api/v1/bookings/number/{number}
func (h *Handler) GetBookingByNumber(w http.ResponseWriter, r *http.Request) {
	b, err := h.BookingService.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, b)
}

// ListBookings handles GET /api/v1/bookings
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	filter, appErr := parseListFilter(r.URL.Query())
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	result, err := h.BookingService.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// CheckAvailability handles GET /api/v1/vehicles/{id}/availability
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	vehicleID, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	q := r.URL.Query()
	start, appErr := parseTime(q, "start_date")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	end, appErr := parseTime(q, "end_date")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	if start == nil || end == nil || !end.After(*start) {
		h.HandleError(w, internal.NewValidationFieldError("end_date", "start_date and end_date are required and end_date must be after start_date", internal.ErrCodeInvalidDate))
		return
	}

	conflict, err := h.BookingService.HasConflict(r.Context(), vehicleID, *start, *end, 0)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, AvailabilityResponse{
		VehicleID: vehicleID,
		StartDate: *start,
		EndDate:   *end,
		Available: !conflict,
	})
}

// QuoteBooking handles POST /api/v1/bookings/quote
func (h *Handler) QuoteBooking(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	quote, err := h.BookingService.Quote(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, quote)
}

// ConfirmBooking handles POST /api/v1/bookings/{id}/confirm
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.Confirm(ctx, id)
	})
}

// StartTrip handles POST /api/v1/bookings/{id}/start
func (h *Handler) StartTrip(w http.ResponseWriter, r *http.Request) {
	var req StartTripRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.StartTrip(ctx, id, req)
	})
}

// CompleteTrip handles POST /api/v1/bookings/{id}/complete
func (h *Handler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	var req CompleteTripRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.Complete(ctx, id, req)
	})
}

// CancelBooking handles POST /api/v1/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.Cancel(ctx, id, req)
	})
}

// MarkNoShow handles POST /api/v1/bookings/{id}/no-show
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.MarkNoShow(ctx, id)
	})
}

// AssignDriver handles PUT /api/v1/bookings/{id}/driver
func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	var req AssignDriverRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	h.changeStatus(w, r, func(ctx context.Context, id int64) (*Booking, error) {
		return h.BookingService.AssignDriver(ctx, id, req.DriverID)
	})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64) (*Booking, error)) {
	id, appErr := h.ParseIDParam(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	b, err := apply(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, b)
}

func parseListFilter(q url.Values) (ListFilter, *internal.AppError) {
	var (
		f   ListFilter
		err *internal.AppError
	)
	if f.VehicleID, err = parseInt(q, "vehicle_id"); err != nil {
		return f, err
	}
	if f.RenterID, err = parseInt(q, "renter_id"); err != nil {
		return f, err
	}
	if f.DriverID, err = parseInt(q, "driver_id"); err != nil {
		return f, err
	}
	limit, err := parseInt(q, "limit")
	if err != nil {
		return f, err
	}
	offset, err := parseInt(q, "offset")
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = int(limit), int(offset)

	if f.From, err = parseTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q, "to"); err != nil {
		return f, err
	}
	f.Status = q.Get("status")
	f.PaymentStatus = q.Get("payment_status")
	return f, nil
}

func parseInt(q url.Values, key string) (int64, *internal.AppError) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, internal.NewValidationFieldError(key, key+" must be an integer", internal.ErrCodeInvalidFilter)
	}
	return v, nil
}

func parseTime(q url.Values, key string) (*time.Time, *internal.AppError) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, internal.NewValidationFieldError(key, key+" must be an RFC 3339 timestamp", internal.ErrCodeInvalidDate)
	}
	return &t, nil
}
