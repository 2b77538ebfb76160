package booking_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/booking"
	bookingpg "github.com/frahmantamala/vehicle-rental/internal/booking/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	drivermodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/driver"
	paymentmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/payment"
	vehiclemodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/vehicle"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
	driverpg "github.com/frahmantamala/vehicle-rental/internal/driver/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
	"github.com/frahmantamala/vehicle-rental/internal/payment"
	paymentpg "github.com/frahmantamala/vehicle-rental/internal/payment/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
	vehiclepg "github.com/frahmantamala/vehicle-rental/internal/vehicle/postgres"
)

// recordingBus forwards to a real bus and remembers every event.
type recordingBus struct {
	bus *events.EventBus

	mu     sync.Mutex
	events []events.Event
}

func (p *recordingBus) record(event events.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingBus) Publish(ctx context.Context, event events.Event) error {
	p.record(event)
	return p.bus.Publish(ctx, event)
}

func (p *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	p.record(event)
	return p.bus.PublishSync(ctx, event)
}

// slowSetter delays one driver status so late deliveries can overtake.
type slowSetter struct {
	drivers *driver.Service
	status  string
	delay   time.Duration
}

func (s slowSetter) SetStatus(ctx context.Context, id int64, status string) error {
	if status == s.status {
		time.Sleep(s.delay)
	}
	return s.drivers.SetStatus(ctx, id, status)
}

func (p *recordingBus) bookingTransitions(bookingID int64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if changed, ok := e.(*events.BookingStatusChangedEvent); ok && changed.BookingID == bookingID {
			out = append(out, changed.FromStatus+"->"+changed.ToStatus)
		}
	}
	return out
}

func appErrorCode(err error) internal.ErrorCode {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		return ""
	}
	return appErr.Code
}

var _ = Describe("Booking Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		now       time.Time
		bus       *recordingBus
		service   *booking.Service
		payments  *payment.Service
		drivers   *driver.Service
		vehicles  *vehicle.Service
		vehicleID int64
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		log := slog.New(slog.NewTextHandler(io.Discard, nil))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).ToNot(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).ToNot(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(
			&vehiclemodel.Vehicle{},
			&drivermodel.Driver{},
			&bookingmodel.Booking{},
			&paymentmodel.Payment{},
		)).To(Succeed())

		tx := database.NewTransactor(db)
		locker := lock.NewKeyedMutex()
		bus = &recordingBus{bus: events.NewEventBus(log)}

		vehicles = vehicle.NewService(vehiclepg.NewVehicleRepository(db), log)
		drivers = driver.NewService(driverpg.NewDriverRepository(db), log)
		payments = payment.NewService(paymentpg.NewPaymentRepository(db), tx, locker, bus, 0.03, log)

		service = booking.NewService(booking.Dependencies{
			Repo:       bookingpg.NewBookingRepository(db),
			Vehicles:   vehicles,
			Drivers:    drivers,
			Refunds:    payments,
			Calculator: pricing.NewCalculator(0.10, 0.03),
			Locker:     locker,
			Tx:         tx,
			Publisher:  bus,
		}, booking.Config{
			Currency:    "USD",
			NoShowGrace: 2 * time.Hour,
		}, log).WithClock(func() time.Time { return now })

		driver.NewStatusUpdater(drivers, log).Register(bus.bus)
		vehicles.Register(bus.bus)
		service.Register(bus.bus)

		v, err := vehicles.Create(ctx, vehicle.CreateVehicleRequest{
			Name:        "Toyota Avanza",
			PlateNumber: "B 1234 XYZ",
			DailyRate:   5000,
			Currency:    "USD",
		})
		Expect(err).ToNot(HaveOccurred())
		vehicleID = v.ID
	})

	AfterEach(func() {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		Expect(bus.bus.Wait(waitCtx)).To(Succeed())
	})

	request := func(start time.Time, days int) booking.CreateBookingRequest {
		return booking.CreateBookingRequest{
			VehicleID: vehicleID,
			RenterID:  42,
			StartDate: start,
			EndDate:   start.AddDate(0, 0, days),
		}
	}

	createConfirmed := func(start time.Time, days int) *booking.Booking {
		b, err := service.Create(ctx, request(start, days))
		Expect(err).ToNot(HaveOccurred())
		b, err = service.Confirm(ctx, b.ID)
		Expect(err).ToNot(HaveOccurred())
		return b
	}

	payInFull := func(b *booking.Booking) {
		p, err := payments.RecordAttempt(ctx, payment.RecordAttemptRequest{
			BookingID:     b.ID,
			Amount:        b.TotalAmount,
			Type:          payment.TypePayment,
			Method:        "card",
			Gateway:       "stripe",
			CorrelationID: "pay-" + b.BookingNumber,
		})
		Expect(err).ToNot(HaveOccurred())
		_, err = payments.MarkCompleted(ctx, p.ID, payment.GatewayData{Reference: "ch_1"})
		Expect(err).ToNot(HaveOccurred())
	}

	start := func() time.Time {
		return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	}

	Describe("Create", func() {
		It("should price a three day rental and leave it pending", func() {
			b, err := service.Create(ctx, request(start(), 3))

			Expect(err).ToNot(HaveOccurred())
			Expect(b.BookingNumber).To(MatchRegexp(`^BK2025\d{6}$`))
			Expect(b.Status).To(Equal(booking.StatusPending))
			Expect(b.PaymentStatus).To(Equal(booking.PaymentStatusPending))
			Expect(b.DurationUnits).To(Equal(3))
			Expect(b.BasePrice).To(Equal(int64(15000)))
			Expect(b.TaxAmount).To(Equal(int64(1500)))
			Expect(b.CommissionAmount).To(Equal(int64(450)))
			Expect(b.TotalAmount).To(Equal(int64(16500)))
			Expect(b.SuggestedPrice).ToNot(BeNil())
		})

		It("should refuse a vehicle in maintenance", func() {
			Expect(db.Model(&vehiclemodel.Vehicle{}).Where("id = ?", vehicleID).
				Update("status", vehiclemodel.StatusMaintenance).Error).To(Succeed())

			_, err := service.Create(ctx, request(start(), 3))

			Expect(err).To(MatchError(internal.ErrVehicleNotAvailable))
		})

		It("should refuse a period held by a confirmed booking", func() {
			createConfirmed(start(), 3)

			_, err := service.Create(ctx, request(start().AddDate(0, 0, 1), 3))

			Expect(err).To(MatchError(internal.ErrBookingConflict))
		})

		It("should accept back to back bookings", func() {
			first := createConfirmed(start(), 3)

			second, err := service.Create(ctx, request(first.EndDate, 2))

			Expect(err).ToNot(HaveOccurred())
			_, err = service.Confirm(ctx, second.ID)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should reject an unknown duration unit", func() {
			req := request(start(), 3)
			req.DurationUnit = "fortnight"

			_, err := service.Create(ctx, req)

			Expect(err).To(HaveOccurred())
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})
	})

	Describe("Confirm", func() {
		It("should let exactly one of two overlapping bookings through", func() {
			a, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())
			b, err := service.Create(ctx, request(start().AddDate(0, 0, 1), 3))
			Expect(err).ToNot(HaveOccurred())

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, id := range []int64{a.ID, b.ID} {
				wg.Add(1)
				go func(i int, id int64) {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = service.Confirm(ctx, id)
				}(i, id)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				Expect(err).To(MatchError(internal.ErrBookingConflict))
			}
			Expect(succeeded).To(Equal(1))
		})

		DescribeTable("should reject confirming a booking that is not pending",
			func(prepare func(b *booking.Booking) string) {
				b, err := service.Create(ctx, request(start(), 3))
				Expect(err).ToNot(HaveOccurred())
				status := prepare(b)
				before, err := service.Get(ctx, b.ID)
				Expect(err).ToNot(HaveOccurred())

				_, err = service.Confirm(ctx, b.ID)

				Expect(appErrorCode(err)).To(Equal(internal.ErrCodeInvalidTransition))
				after, err := service.Get(ctx, b.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(after.Status).To(Equal(status))
				Expect(after.UpdatedAt).To(Equal(before.UpdatedAt))
			},
			Entry("confirmed", func(b *booking.Booking) string {
				_, err := service.Confirm(ctx, b.ID)
				Expect(err).ToNot(HaveOccurred())
				return booking.StatusConfirmed
			}),
			Entry("cancelled", func(b *booking.Booking) string {
				_, err := service.Cancel(ctx, b.ID, booking.CancelBookingRequest{})
				Expect(err).ToNot(HaveOccurred())
				return booking.StatusCancelled
			}),
			Entry("in progress", func(b *booking.Booking) string {
				_, err := service.Confirm(ctx, b.ID)
				Expect(err).ToNot(HaveOccurred())
				_, err = service.StartTrip(ctx, b.ID, booking.StartTripRequest{})
				Expect(err).ToNot(HaveOccurred())
				return booking.StatusInProgress
			}),
		)
	})

	Describe("Cancel", func() {
		It("should refund a paid booking in full well before the start", func() {
			b, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())
			payInFull(b)

			cancelled, err := service.Cancel(ctx, b.ID, booking.CancelBookingRequest{Reason: "plans changed", WantRefund: true})

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled.Status).To(Equal(booking.StatusCancelled))
			Expect(cancelled.RefundAmount).To(Equal(int64(16500)))
			Expect(cancelled.PaymentStatus).To(Equal(booking.PaymentStatusRefunded))
			Expect(cancelled.CancelledAt).ToNot(BeNil())
			Expect(*cancelled.CancellationReason).To(Equal("plans changed"))

			ledger, err := payments.GetBookingLedger(ctx, b.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ledger.Totals.Refunded).To(Equal(int64(16500)))
			Expect(ledger.Totals.Net).To(BeZero())
		})

		It("should refund half inside the last day", func() {
			b, err := service.Create(ctx, request(now.Add(18*time.Hour), 3))
			Expect(err).ToNot(HaveOccurred())
			payInFull(b)

			cancelled, err := service.Cancel(ctx, b.ID, booking.CancelBookingRequest{WantRefund: true})

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled.RefundAmount).To(Equal(int64(8250)))
			Expect(cancelled.PaymentStatus).To(Equal(booking.PaymentStatusPartial))
		})

		It("should not refund an unpaid booking", func() {
			b, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())

			cancelled, err := service.Cancel(ctx, b.ID, booking.CancelBookingRequest{WantRefund: true})

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled.RefundAmount).To(BeZero())
			Expect(cancelled.PaymentStatus).To(Equal(booking.PaymentStatusPending))
		})

		It("should refuse new charges after cancelling", func() {
			b, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Cancel(ctx, b.ID, booking.CancelBookingRequest{})
			Expect(err).ToNot(HaveOccurred())

			charger := payment.NewOrchestrator(payments, nil, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
			_, err = charger.Charge(ctx, payment.ChargeRequest{BookingID: b.ID})

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeBookingClosed))
			ledger, err := payments.ListByBooking(ctx, b.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ledger).To(BeEmpty())
		})

		It("should close once the rental has started", func() {
			b := createConfirmed(now.Add(-time.Hour), 3)

			_, err := service.Cancel(ctx, b.ID, booking.CancelBookingRequest{})

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeCancellationClosed))
			found, _ := service.Get(ctx, b.ID)
			Expect(found.Status).To(Equal(booking.StatusConfirmed))
		})
	})

	Describe("Trip lifecycle", func() {
		It("should move the driver and record the trip", func() {
			d, err := drivers.Create(ctx, "Budi", "+62811000111")
			Expect(err).ToNot(HaveOccurred())
			req := request(start(), 3)
			req.DriverID = &d.ID
			b, err := service.Create(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Confirm(ctx, b.ID)
			Expect(err).ToNot(HaveOccurred())

			odoStart, odoEnd, rating := int64(1000), int64(1240), 5
			_, err = service.StartTrip(ctx, b.ID, booking.StartTripRequest{OdometerStart: &odoStart})
			Expect(err).ToNot(HaveOccurred())

			onTrip, err := drivers.Get(ctx, d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(onTrip.Status).To(Equal(driver.StatusOnTrip))

			completed, err := service.Complete(ctx, b.ID, booking.CompleteTripRequest{OdometerEnd: &odoEnd, RenterRating: &rating})
			Expect(err).ToNot(HaveOccurred())
			Expect(*completed.DistanceKm).To(Equal(int64(240)))
			Expect(completed.DropoffTime).ToNot(BeNil())

			free, err := drivers.Get(ctx, d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(free.Status).To(Equal(driver.StatusAvailable))

			v, err := vehicles.Get(ctx, vehicleID)
			Expect(err).ToNot(HaveOccurred())
			Expect(v.TotalBookings).To(Equal(int64(1)))
			Expect(v.AverageRating).To(Equal(5.0))

			Expect(bus.bookingTransitions(b.ID)).To(Equal([]string{
				"pending->confirmed",
				"confirmed->in_progress",
				"in_progress->completed",
			}))
		})

		It("should leave the driver available when mirroring the start is slow", func() {
			driver.NewStatusUpdater(slowSetter{drivers: drivers, status: driver.StatusOnTrip, delay: 50 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil))).
				Register(bus.bus)

			d, err := drivers.Create(ctx, "Budi", "+62811000111")
			Expect(err).ToNot(HaveOccurred())
			req := request(start(), 3)
			req.DriverID = &d.ID
			b, err := service.Create(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Confirm(ctx, b.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.StartTrip(ctx, b.ID, booking.StartTripRequest{})
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Complete(ctx, b.ID, booking.CompleteTripRequest{})
			Expect(err).ToNot(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			Expect(bus.bus.Wait(waitCtx)).To(Succeed())
			found, err := drivers.Get(ctx, d.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(found.Status).To(Equal(driver.StatusAvailable))
		})

		It("should reject an odometer that goes backwards", func() {
			b := createConfirmed(start(), 3)
			odoStart, odoEnd := int64(1000), int64(900)
			_, err := service.StartTrip(ctx, b.ID, booking.StartTripRequest{OdometerStart: &odoStart})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Complete(ctx, b.ID, booking.CompleteTripRequest{OdometerEnd: &odoEnd})

			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
			found, _ := service.Get(ctx, b.ID)
			Expect(found.Status).To(Equal(booking.StatusInProgress))
		})

		It("should not complete a booking that never started", func() {
			b := createConfirmed(start(), 3)

			_, err := service.Complete(ctx, b.ID, booking.CompleteTripRequest{})

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeInvalidTransition))
		})
	})

	Describe("AssignDriver", func() {
		It("should assign an available driver", func() {
			d, err := drivers.Create(ctx, "Sari", "")
			Expect(err).ToNot(HaveOccurred())
			b := createConfirmed(start(), 3)

			assigned, err := service.AssignDriver(ctx, b.ID, d.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(*assigned.DriverID).To(Equal(d.ID))
		})

		It("should refuse a driver who is off duty", func() {
			d, err := drivers.Create(ctx, "Sari", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(drivers.SetStatus(ctx, d.ID, driver.StatusOffDuty)).To(Succeed())
			b := createConfirmed(start(), 3)

			_, err = service.AssignDriver(ctx, b.ID, d.ID)

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeDriverUnavailable))
			found, _ := service.Get(ctx, b.ID)
			Expect(found.DriverID).To(BeNil())
		})

		It("should refuse a finished booking", func() {
			d, err := drivers.Create(ctx, "Sari", "")
			Expect(err).ToNot(HaveOccurred())
			b, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Cancel(ctx, b.ID, booking.CancelBookingRequest{})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.AssignDriver(ctx, b.ID, d.ID)

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeInvalidTransition))
		})
	})

	Describe("No-shows", func() {
		It("should refuse before the start", func() {
			b := createConfirmed(start(), 3)

			_, err := service.MarkNoShow(ctx, b.ID)

			Expect(appErrorCode(err)).To(Equal(internal.ErrCodeNoShowTooEarly))
		})

		It("should sweep confirmed bookings past the grace period", func() {
			overdue := createConfirmed(now.Add(-3*time.Hour), 1)
			upcoming := createConfirmed(now.AddDate(0, 0, 2), 1)

			marked, err := service.SweepNoShows(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(marked).To(Equal(1))
			found, _ := service.Get(ctx, overdue.ID)
			Expect(found.Status).To(Equal(booking.StatusNoShow))
			found, _ = service.Get(ctx, upcoming.ID)
			Expect(found.Status).To(Equal(booking.StatusConfirmed))
		})
	})

	Describe("HandlePaymentStatusChanged", func() {
		It("should flag money landing on a cancelled booking without touching it", func() {
			var buf bytes.Buffer
			audit := booking.NewService(booking.Dependencies{
				Repo: bookingpg.NewBookingRepository(db),
			}, booking.Config{}, slog.New(slog.NewJSONHandler(&buf, nil)))

			b, err := service.Create(ctx, request(start(), 3))
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Cancel(ctx, b.ID, booking.CancelBookingRequest{})
			Expect(err).ToNot(HaveOccurred())

			late := events.NewPaymentStatusChangedEvent(b.ID, booking.PaymentStatusPending, booking.PaymentStatusPaid, b.TotalAmount)
			Expect(audit.HandlePaymentStatusChanged(ctx, late)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(`"level":"WARN"`))
			Expect(buf.String()).To(ContainSubstring("payment settled on a closed booking"))

			buf.Reset()
			refund := events.NewPaymentStatusChangedEvent(b.ID, booking.PaymentStatusPaid, booking.PaymentStatusPartial, b.TotalAmount/2)
			Expect(audit.HandlePaymentStatusChanged(ctx, refund)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(`"level":"INFO"`))
			Expect(buf.String()).ToNot(ContainSubstring("closed booking"))

			found, err := service.Get(ctx, b.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(found.Status).To(Equal(booking.StatusCancelled))
			Expect(found.PaymentStatus).To(Equal(booking.PaymentStatusPending))
		})
	})

	Describe("List and Quote", func() {
		It("should filter by status", func() {
			createConfirmed(start(), 1)
			_, err := service.Create(ctx, request(start().AddDate(0, 0, 5), 1))
			Expect(err).ToNot(HaveOccurred())

			result, err := service.List(ctx, booking.ListFilter{Status: booking.StatusConfirmed})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(int64(1)))
			Expect(result.Limit).To(Equal(20))
		})

		It("should quote without persisting", func() {
			quote, err := service.Quote(ctx, booking.QuoteRequest{
				VehicleID: vehicleID,
				StartDate: start(),
				EndDate:   start().AddDate(0, 0, 3),
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(quote.Total).To(Equal(int64(16500)))
			Expect(quote.Currency).To(Equal("USD"))

			result, err := service.List(ctx, booking.ListFilter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(BeZero())
		})
	})
})
