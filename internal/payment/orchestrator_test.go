package payment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
	"github.com/frahmantamala/vehicle-rental/internal/paymentgateway"
)

var _ = Describe("Orchestrator", func() {
	const bookingID = int64(7)

	var (
		ctx     context.Context
		logger  *slog.Logger
		repo    *memoryRepo
		service *Service
		seq     int
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepo()
		repo.addBooking(bookingID, 16500)
		service = NewService(repo, database.NoopTransactor{}, lock.NewKeyedMutex(), nil, 0.03, logger)
		seq = 0
	})

	newOrchestrator := func(gateways ...paymentgateway.Gateway) *Orchestrator {
		o := NewOrchestrator(service, gateways, 50*time.Millisecond, logger)
		o.newCorrelation = func() string {
			seq++
			return fmt.Sprintf("corr-%d", seq)
		}
		return o
	}

	declining := func(name string) *stubGateway {
		return &stubGateway{name: name, charge: func(context.Context, paymentgateway.ChargeRequest) (*paymentgateway.ChargeResult, error) {
			return nil, internal.NewPaymentDeclinedError(name, "card_declined")
		}}
	}

	succeeding := func(name string, status paymentgateway.Status) *stubGateway {
		return &stubGateway{name: name, charge: func(_ context.Context, req paymentgateway.ChargeRequest) (*paymentgateway.ChargeResult, error) {
			return &paymentgateway.ChargeResult{Reference: name + "_" + req.CorrelationID, Status: status}, nil
		}}
	}

	It("stops at the first gateway that accepts the charge", func() {
		primary := succeeding("stripe", paymentgateway.StatusCompleted)
		fallback := succeeding("acme", paymentgateway.StatusCompleted)

		result, err := newOrchestrator(primary, fallback).Charge(ctx, ChargeRequest{BookingID: bookingID})

		Expect(err).ToNot(HaveOccurred())
		Expect(fallback.calls).To(BeZero())
		Expect(result.Manual).To(BeFalse())
		Expect(result.Attempts).To(HaveLen(1))
		Expect(result.Payment.Status).To(Equal(StatusCompleted))
		Expect(result.Payment.Amount).To(Equal(int64(16500)))
		Expect(*result.Payment.GatewayReference).To(Equal("stripe_corr-1"))
		Expect(result.PaymentStatus).To(Equal(paymentStatusPaid))
	})

	It("falls back after a decline", func() {
		result, err := newOrchestrator(declining("stripe"), succeeding("acme", paymentgateway.StatusProcessing)).
			Charge(ctx, ChargeRequest{BookingID: bookingID})

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Attempts).To(HaveLen(2))
		Expect(result.Attempts[0].Status).To(Equal(StatusFailed))
		Expect(result.Attempts[1].Status).To(Equal(StatusProcessing))
		Expect(result.PaymentStatus).To(Equal(paymentStatusPending))
	})

	It("records a pending bank transfer when every gateway fails", func() {
		// Given a processor that never answers within the attempt timeout
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()
		slow := paymentgateway.NewHTTPGateway(paymentgateway.Config{Name: "acme", BaseURL: server.URL, APIKey: "k"}, logger)

		// When
		result, err := newOrchestrator(declining("stripe"), slow).Charge(ctx, ChargeRequest{BookingID: bookingID})

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Manual).To(BeTrue())
		Expect(result.Attempts).To(HaveLen(3))
		Expect(result.Attempts[0].Error).To(ContainSubstring("declined"))
		Expect(result.Attempts[1].Error).To(ContainSubstring("timed out"))
		Expect(result.Payment.Gateway).To(Equal(GatewayManual))
		Expect(result.Payment.Method).To(Equal(MethodBank))
		Expect(result.Payment.Status).To(Equal(StatusPending))
		Expect(result.PaymentStatus).To(Equal(paymentStatusPending))

		ledger, err := service.ListByBooking(ctx, bookingID)
		Expect(err).ToNot(HaveOccurred())
		Expect(ledger).To(HaveLen(3))
		Expect(ledger[0].Status).To(Equal(StatusFailed))
		Expect(ledger[1].Status).To(Equal(StatusFailed))
		Expect(ledger[2].Status).To(Equal(StatusPending))
	})

	It("keeps the booking pending while it falls through to a bank transfer", func() {
		publisher := &recordingPublisher{}
		service = NewService(repo, database.NoopTransactor{}, lock.NewKeyedMutex(), publisher, 0.03, logger)

		result, err := newOrchestrator(declining("stripe"), declining("acme")).Charge(ctx, ChargeRequest{BookingID: bookingID})

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Manual).To(BeTrue())
		Expect(result.PaymentStatus).To(Equal(paymentStatusPending))
		Expect(repo.statusWrites).To(BeZero())
		Expect(publisher.statusChanges()).To(BeEmpty())
	})

	It("settles the payment status when the booking closes mid-charge", func() {
		closing := &stubGateway{name: "stripe", charge: func(context.Context, paymentgateway.ChargeRequest) (*paymentgateway.ChargeResult, error) {
			repo.setBookingStatus(bookingID, bookingmodel.StatusCancelled)
			return nil, internal.NewPaymentDeclinedError("stripe", "card_declined")
		}}

		_, err := newOrchestrator(closing).Charge(ctx, ChargeRequest{BookingID: bookingID})

		Expect(err).To(MatchError(internal.NewBookingClosedError(bookingmodel.StatusCancelled)))
		Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusFailed))
	})

	It("charges only the outstanding balance", func() {
		first := int64(10000)
		o := newOrchestrator(succeeding("stripe", paymentgateway.StatusCompleted))
		_, err := o.Charge(ctx, ChargeRequest{BookingID: bookingID, Amount: &first})
		Expect(err).ToNot(HaveOccurred())

		result, err := o.Charge(ctx, ChargeRequest{BookingID: bookingID})

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Payment.Amount).To(Equal(int64(6500)))
		Expect(result.PaymentStatus).To(Equal(paymentStatusPaid))

		_, err = o.Charge(ctx, ChargeRequest{BookingID: bookingID})
		Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
	})

	It("returns ledger errors instead of falling back", func() {
		gw := succeeding("stripe", paymentgateway.StatusCompleted)

		_, err := newOrchestrator(gw).Charge(ctx, ChargeRequest{BookingID: 99, Amount: ptrTo(int64(100))})

		Expect(err).To(MatchError(internal.ErrBookingNotFound))
		Expect(gw.calls).To(BeZero())
	})
})

func ptrTo[T any](v T) *T { return &v }
