package booking_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/booking"
	"github.com/frahmantamala/vehicle-rental/internal/transport"
)

// stubService answers the calls a test needs; anything else panics through
// the nil embedded interface.
type stubService struct {
	booking.ServiceAPI

	created  booking.CreateBookingRequest
	filter   booking.ListFilter
	conflict bool
	confirm  func(id int64) (*booking.Booking, error)
}

func (s *stubService) Create(_ context.Context, req booking.CreateBookingRequest) (*booking.Booking, error) {
	s.created = req
	return &booking.Booking{ID: 9, BookingNumber: "BK2025000009", Status: booking.StatusPending, TotalAmount: 16500}, nil
}

func (s *stubService) Get(_ context.Context, id int64) (*booking.Booking, error) {
	return nil, internal.ErrBookingNotFound
}

func (s *stubService) List(_ context.Context, filter booking.ListFilter) (*booking.ListResult, error) {
	s.filter = filter
	return &booking.ListResult{Limit: 20}, nil
}

func (s *stubService) HasConflict(_ context.Context, _ int64, _, _ time.Time, _ int64) (bool, error) {
	return s.conflict, nil
}

func (s *stubService) Confirm(_ context.Context, id int64) (*booking.Booking, error) {
	return s.confirm(id)
}

var _ = Describe("Booking HTTP handler", func() {
	var (
		stub   *stubService
		router *chi.Mux
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		stub = &stubService{}
		h := booking.NewHandler(transport.NewBaseHandler(logger), stub, logger)

		router = chi.NewRouter()
		router.Post("/bookings", h.CreateBooking)
		router.Get("/bookings", h.ListBookings)
		router.Get("/bookings/{id}", h.GetBooking)
		router.Post("/bookings/{id}/confirm", h.ConfirmBooking)
		router.Get("/vehicles/{id}/availability", h.CheckAvailability)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorCode := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body.Error.Code
	}

	It("should create a booking from the request body", func() {
		rec := do(http.MethodPost, "/bookings",
			`{"vehicle_id":3,"renter_id":42,"start_date":"2025-03-15T10:00:00Z","end_date":"2025-03-18T10:00:00Z"}`)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(stub.created.VehicleID).To(Equal(int64(3)))
		Expect(stub.created.EndDate.Sub(stub.created.StartDate)).To(Equal(72 * time.Hour))

		var b booking.Booking
		Expect(json.Unmarshal(rec.Body.Bytes(), &b)).To(Succeed())
		Expect(b.BookingNumber).To(Equal("BK2025000009"))
	})

	It("should take the renter from the request context when the body omits it", func() {
		req := httptest.NewRequest(http.MethodPost, "/bookings",
			strings.NewReader(`{"vehicle_id":3,"start_date":"2025-03-15T10:00:00Z","end_date":"2025-03-18T10:00:00Z"}`))
		req = req.WithContext(internal.ContextWithRenterID(req.Context(), 42))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(stub.created.RenterID).To(Equal(int64(42)))
	})

	It("should reject a malformed body", func() {
		rec := do(http.MethodPost, "/bookings", `{"vehicle_id":`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should map a lost confirm race to 409", func() {
		stub.confirm = func(int64) (*booking.Booking, error) { return nil, internal.ErrBookingConflict }

		rec := do(http.MethodPost, "/bookings/5/confirm", "")

		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeBookingConflict)))
	})

	It("should map an illegal transition to 422", func() {
		stub.confirm = func(int64) (*booking.Booking, error) {
			return nil, internal.NewInvalidStateTransitionError("booking", booking.StatusCompleted, booking.StatusConfirmed)
		}

		rec := do(http.MethodPost, "/bookings/5/confirm", "")

		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
	})

	It("should return 404 for unknown bookings and 400 for bad ids", func() {
		Expect(do(http.MethodGet, "/bookings/77", "").Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodGet, "/bookings/abc", "").Code).To(Equal(http.StatusBadRequest))
	})

	It("should parse list filters from the query string", func() {
		rec := do(http.MethodGet, "/bookings?status=confirmed&vehicle_id=3&limit=5&from=2025-03-01T00:00:00Z", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(stub.filter.Status).To(Equal(booking.StatusConfirmed))
		Expect(stub.filter.VehicleID).To(Equal(int64(3)))
		Expect(stub.filter.Limit).To(Equal(5))
		Expect(stub.filter.From).ToNot(BeNil())
	})

	It("should reject non-numeric list filters", func() {
		rec := do(http.MethodGet, "/bookings?limit=ten", "")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report availability for a window", func() {
		stub.conflict = true

		rec := do(http.MethodGet, "/vehicles/3/availability?start_date=2025-03-15T10:00:00Z&end_date=2025-03-16T10:00:00Z", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp booking.AvailabilityResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Available).To(BeFalse())
	})

	It("should require both ends of the availability window", func() {
		rec := do(http.MethodGet, "/vehicles/3/availability?start_date=2025-03-15T10:00:00Z", "")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
