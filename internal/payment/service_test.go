package payment

import (
	"context"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
)

var _ = Describe("Service", func() {
	const bookingID = int64(42)

	var (
		ctx       context.Context
		repo      *memoryRepo
		publisher *recordingPublisher
		service   *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMemoryRepo()
		repo.addBooking(bookingID, 16500)
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, database.NoopTransactor{}, lock.NewKeyedMutex(), publisher, 0.03, logger)
	})

	attempt := func(amount int64) *Payment {
		p, err := service.RecordAttempt(ctx, RecordAttemptRequest{
			BookingID: bookingID,
			Amount:    amount,
			Type:      TypePayment,
			Method:    "card",
			Gateway:   "stripe",
		})
		Expect(err).ToNot(HaveOccurred())
		return p
	}

	settled := func(amount int64) *Payment {
		p, err := service.MarkCompleted(ctx, attempt(amount).ID, GatewayData{Reference: "ref"})
		Expect(err).ToNot(HaveOccurred())
		return p
	}

	Describe("RecordAttempt", func() {
		It("should compute commission and net for charges", func() {
			p := attempt(16500)

			Expect(p.Status).To(Equal(StatusPending))
			Expect(p.Currency).To(Equal("USD"))
			Expect(p.CommissionAmount).To(Equal(int64(495)))
			Expect(p.NetAmount).To(Equal(int64(16005)))
			Expect(p.TransactionID).To(HavePrefix("TXN-"))
		})

		It("should reject a currency different from the booking", func() {
			_, err := service.RecordAttempt(ctx, RecordAttemptRequest{
				BookingID: bookingID,
				Amount:    100,
				Currency:  "EUR",
				Type:      TypePayment,
				Method:    "card",
				Gateway:   "stripe",
			})

			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("should reject refunds recorded as attempts", func() {
			_, err := service.RecordAttempt(ctx, RecordAttemptRequest{
				BookingID: bookingID,
				Amount:    100,
				Type:      TypeRefund,
				Method:    "card",
				Gateway:   "stripe",
			})

			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("should report unknown bookings", func() {
			_, err := service.RecordAttempt(ctx, RecordAttemptRequest{
				BookingID: 7,
				Amount:    100,
				Type:      TypePayment,
				Method:    "card",
				Gateway:   "stripe",
			})

			Expect(err).To(MatchError(internal.ErrBookingNotFound))
		})

		It("should lock the booking row before writing", func() {
			attempt(100)

			Expect(repo.locks).To(Equal(1))
		})

		It("should refuse to charge cancelled or no-show bookings", func() {
			for _, status := range []string{bookingmodel.StatusCancelled, bookingmodel.StatusNoShow} {
				repo.setBookingStatus(bookingID, status)

				_, err := service.RecordAttempt(ctx, RecordAttemptRequest{
					BookingID: bookingID,
					Amount:    100,
					Type:      TypePayment,
					Method:    "card",
					Gateway:   "stripe",
				})

				Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue(), status)
				Expect(err).To(MatchError(internal.NewBookingClosedError(status)))
			}
			Expect(repo.payments).To(BeEmpty())
		})

		It("should retry transaction ids that already exist", func() {
			ids := []string{"TXN-dup", "TXN-dup", "TXN-fresh"}
			service.newTransactionID = func() string {
				id := ids[0]
				ids = ids[1:]
				return id
			}

			first := attempt(100)
			second := attempt(100)

			Expect(first.TransactionID).To(Equal("TXN-dup"))
			Expect(second.TransactionID).To(Equal("TXN-fresh"))
		})
	})

	Describe("status changes", func() {
		It("should reject completing a failed attempt", func() {
			p := attempt(16500)
			_, err := service.MarkFailed(ctx, p.ID, "declined", GatewayData{})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.MarkCompleted(ctx, p.ID, GatewayData{})

			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
			Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusFailed))
		})

		It("should move the booking to paid and publish once", func() {
			settled(16500)

			Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusPaid))
			changes := publisher.statusChanges()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].FromStatus).To(Equal(paymentStatusPending))
			Expect(changes[0].ToStatus).To(Equal(paymentStatusPaid))
			Expect(changes[0].NetPaid).To(Equal(int64(16500)))
		})
	})

	Describe("RecomputeBookingPaymentStatus", func() {
		It("should write nothing when the ledger is unchanged", func() {
			settled(5000)
			writes := repo.statusWrites

			for i := 0; i < 3; i++ {
				status, err := service.RecomputeBookingPaymentStatus(ctx, bookingID)
				Expect(err).ToNot(HaveOccurred())
				Expect(status).To(Equal(paymentStatusPartial))
			}

			Expect(repo.statusWrites).To(Equal(writes))
			Expect(publisher.statusChanges()).To(HaveLen(1))
		})
	})

	Describe("HandleSettlement", func() {
		It("should apply a callback once", func() {
			corr := "corr-9"
			p, err := service.RecordAttempt(ctx, RecordAttemptRequest{
				BookingID:     bookingID,
				Amount:        16500,
				Type:          TypePayment,
				Method:        "card",
				Gateway:       "acme",
				CorrelationID: corr,
				InitialStatus: StatusProcessing,
			})
			Expect(err).ToNot(HaveOccurred())

			cb := SettlementCallback{CorrelationID: corr, Status: "SUCCESS", Reference: "acme_1"}
			first, err := service.HandleSettlement(ctx, cb)
			Expect(err).ToNot(HaveOccurred())
			second, err := service.HandleSettlement(ctx, cb)
			Expect(err).ToNot(HaveOccurred())

			Expect(first.ID).To(Equal(p.ID))
			Expect(second.Status).To(Equal(StatusCompleted))
			Expect(*second.GatewayReference).To(Equal("acme_1"))
			Expect(publisher.statusChanges()).To(HaveLen(1))
		})

		It("should record the processor's decline reason", func() {
			corr := "corr-10"
			_, err := service.RecordAttempt(ctx, RecordAttemptRequest{
				BookingID:     bookingID,
				Amount:        16500,
				Type:          TypePayment,
				Method:        "card",
				Gateway:       "acme",
				CorrelationID: corr,
			})
			Expect(err).ToNot(HaveOccurred())

			p, err := service.HandleSettlement(ctx, SettlementCallback{CorrelationID: corr, Status: "DECLINED", FailureReason: "insufficient funds"})

			Expect(err).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(StatusFailed))
			Expect(*p.FailureReason).To(Equal("insufficient funds"))
		})

		It("should reject unknown correlation ids", func() {
			_, err := service.HandleSettlement(ctx, SettlementCallback{CorrelationID: "nope", Status: "SUCCESS"})
			Expect(err).To(MatchError(internal.ErrPaymentNotFound))
		})
	})

	Describe("Refund", func() {
		It("should record a negative completed row linked to its charge", func() {
			p := settled(16500)
			amount := int64(8250)

			refund, err := service.Refund(ctx, RefundRequest{PaymentID: p.ID, Amount: &amount, Reason: "late pickup"})

			Expect(err).ToNot(HaveOccurred())
			Expect(refund.Amount).To(Equal(int64(-8250)))
			Expect(refund.Type).To(Equal(TypeRefund))
			Expect(refund.Status).To(Equal(StatusCompleted))
			Expect(*refund.ParentPaymentID).To(Equal(p.ID))

			source, err := service.GetByID(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(source.Status).To(Equal(StatusPartiallyRefunded))
			Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusPartial))
		})

		It("should refund the remainder when no amount is given", func() {
			p := settled(16500)

			refund, err := service.Refund(ctx, RefundRequest{PaymentID: p.ID})

			Expect(err).ToNot(HaveOccurred())
			Expect(refund.Amount).To(Equal(int64(-16500)))
			Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusRefunded))
		})

		It("should reject an amount above the refundable balance without writing", func() {
			p := settled(16500)
			before, _ := service.ListByBooking(ctx, bookingID)
			amount := int64(16501)

			_, err := service.Refund(ctx, RefundRequest{PaymentID: p.ID, Amount: &amount})

			Expect(internal.IsType(err, internal.ErrorTypeRefundExceedsAvailable)).To(BeTrue())
			after, _ := service.ListByBooking(ctx, bookingID)
			Expect(after).To(HaveLen(len(before)))
			Expect(repo.paymentStatus(bookingID)).To(Equal(paymentStatusPaid))
		})

		It("should reject refunds of unsettled attempts", func() {
			p := attempt(16500)

			_, err := service.Refund(ctx, RefundRequest{PaymentID: p.ID})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeRefundNotAllowed))
		})

		It("should never refund more than was paid under concurrency", func() {
			p := settled(16500)
			amount := int64(5000)

			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					if _, err := service.Refund(ctx, RefundRequest{PaymentID: p.ID, Amount: &amount}); err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(succeeded).To(Equal(3))
			refundable, err := service.Refundable(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(refundable).To(Equal(int64(1500)))
		})
	})

	Describe("RefundBooking", func() {
		It("should spread the amount over charges newest first", func() {
			older := settled(10000)
			newer := settled(6500)

			refunds, err := service.RefundBooking(ctx, bookingID, 8000, "cancelled")

			Expect(err).ToNot(HaveOccurred())
			Expect(refunds).To(HaveLen(2))
			Expect(*refunds[0].ParentPaymentID).To(Equal(newer.ID))
			Expect(refunds[0].Amount).To(Equal(int64(-6500)))
			Expect(*refunds[1].ParentPaymentID).To(Equal(older.ID))
			Expect(refunds[1].Amount).To(Equal(int64(-1500)))

			remaining, err := service.BookingRefundable(ctx, bookingID)
			Expect(err).ToNot(HaveOccurred())
			Expect(remaining).To(Equal(int64(8500)))
		})

		It("should do nothing for a zero amount", func() {
			refunds, err := service.RefundBooking(ctx, bookingID, 0, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(refunds).To(BeEmpty())
		})

		It("should reject more than the booking holds", func() {
			settled(5000)

			_, err := service.RefundBooking(ctx, bookingID, 5001, "")

			Expect(internal.IsType(err, internal.ErrorTypeRefundExceedsAvailable)).To(BeTrue())
			ledger, _ := service.ListByBooking(ctx, bookingID)
			Expect(ledger).To(HaveLen(1))
		})
	})

	Describe("Outstanding", func() {
		It("should be the total less what is held", func() {
			settled(5000)

			outstanding, err := service.Outstanding(ctx, bookingID)

			Expect(err).ToNot(HaveOccurred())
			Expect(outstanding).To(Equal(int64(11500)))
		})
	})
})
