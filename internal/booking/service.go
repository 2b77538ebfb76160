package booking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/availability"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
	"github.com/frahmantamala/vehicle-rental/internal/payment"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
	"github.com/frahmantamala/vehicle-rental/pkg/logger"
)

const (
	maxNumberAttempts = 10
	sweepBatchSize    = 100
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	GetByNumber(ctx context.Context, number string) (*Booking, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	// GetForUpdate loads the booking under a row lock held for the rest
	// of the transaction bound to ctx.
	GetForUpdate(ctx context.Context, id int64) (*Booking, error)
	// Update writes every column except payment_status, which only the
	// payment ledger owns. It fails with ErrBookingStatusChanged when the
	// stored status is no longer expectedStatus.
	Update(ctx context.Context, b *Booking, expectedStatus string) error
	List(ctx context.Context, filter ListFilter) ([]*Booking, int64, error)
	ListStartedBefore(ctx context.Context, status string, before time.Time, limit int) ([]*Booking, error)
	ReservationsForVehicle(ctx context.Context, vehicleID int64, window availability.Interval) ([]availability.Reservation, error)
	CountNearby(ctx context.Context, vehicleID, excludeID int64, window availability.Interval) (int64, error)
	// LockVehicle takes a row lock on the vehicle for the rest of the
	// transaction bound to ctx.
	LockVehicle(ctx context.Context, vehicleID int64) error
}

type VehicleDirectory interface {
	Get(ctx context.Context, id int64) (*vehicle.Vehicle, error)
}

type DriverDirectory interface {
	Get(ctx context.Context, id int64) (*driver.Driver, error)
}

// RefundIssuer is the part of the payment ledger cancellation uses.
type RefundIssuer interface {
	RefundBooking(ctx context.Context, bookingID, amount int64, reason string) ([]*payment.Payment, error)
	BookingRefundable(ctx context.Context, bookingID int64) (int64, error)
}

type Config struct {
	Currency           string
	NumberPrefix       string
	CancellationCutoff time.Duration
	NoShowGrace        time.Duration
}

type Dependencies struct {
	Repo       Repository
	Vehicles   VehicleDirectory
	Drivers    DriverDirectory
	Refunds    RefundIssuer
	Calculator *pricing.Calculator
	Locker     lock.Locker
	Tx         database.Transactor
	Publisher  events.Publisher
}

type Service struct {
	repo       Repository
	vehicles   VehicleDirectory
	drivers    DriverDirectory
	refunds    RefundIssuer
	calculator *pricing.Calculator
	checker    *availability.Checker
	locker     lock.Locker
	tx         database.Transactor
	publisher  events.Publisher
	cfg        Config
	logger     *slog.Logger

	now          func() time.Time
	randomSuffix func() int
}

func NewService(deps Dependencies, cfg Config, logger *slog.Logger) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "BK"
	}
	return &Service{
		repo:         deps.Repo,
		vehicles:     deps.Vehicles,
		drivers:      deps.Drivers,
		refunds:      deps.Refunds,
		calculator:   deps.Calculator,
		checker:      availability.NewChecker(deps.Repo),
		locker:       deps.Locker,
		tx:           deps.Tx,
		publisher:    deps.Publisher,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		randomSuffix: func() int { return rand.IntN(1_000_000) },
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func wrapStorage(message string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	return internal.NewStorageError(message, err)
}

// rejectTransition is an INVALID_STATE_TRANSITION with a more specific code.
func rejectTransition(from, to string, code internal.ErrorCode, message string) *internal.AppError {
	appErr := internal.NewInvalidStateTransitionError("booking", from, to)
	appErr.Code = code
	appErr.Message = message
	return appErr
}

func (s *Service) within(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, release, err := lock.Hold(ctx, s.locker, key)
	if err != nil {
		return internal.NewInternalError("failed to acquire lock "+key, err)
	}
	defer release()

	return s.tx.InTx(ctx, fn)
}

func (s *Service) Get(ctx context.Context, id int64) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStorage("failed to load booking", err)
	}
	return b, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Booking, error) {
	b, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, wrapStorage("failed to load booking", err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, wrapStorage("failed to list bookings", err)
	}
	return &ListResult{Bookings: bookings, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// HasConflict reports whether the vehicle is held by an active booking
// overlapping [start, end).
func (s *Service) HasConflict(ctx context.Context, vehicleID int64, start, end time.Time, excludeBookingID int64) (bool, error) {
	conflict, err := s.checker.HasConflict(ctx, vehicleID, start, end, excludeBookingID)
	if err != nil {
		return false, wrapStorage("failed to check availability", err)
	}
	return conflict, nil
}

func (s *Service) Create(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		s.logger.Warn("booking validation failed", "error", err, "vehicle_id", req.VehicleID)
		return nil, err
	}
	if req.DriverID != nil {
		if _, err := s.availableDriver(ctx, *req.DriverID); err != nil {
			return nil, err
		}
	}

	var created *Booking
	err := s.within(ctx, lock.VehicleKey(req.VehicleID), func(ctx context.Context) error {
		v, err := s.lockOperationalVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}

		conflict, err := s.HasConflict(ctx, req.VehicleID, req.StartDate, req.EndDate, 0)
		if err != nil {
			return err
		}
		if conflict {
			return internal.ErrBookingConflict
		}

		breakdown, err := s.price(v, req.StartDate, req.EndDate, req.unit(), req.DiscountAmount)
		if err != nil {
			return err
		}
		suggested, err := s.suggest(ctx, v, 0, req.StartDate, breakdown.Base)
		if err != nil {
			return err
		}

		number, err := s.uniqueNumber(ctx)
		if err != nil {
			return err
		}

		currency := v.Currency
		if currency == "" {
			currency = s.cfg.Currency
		}

		b := &Booking{
			BookingNumber:    number,
			VehicleID:        req.VehicleID,
			RenterID:         req.RenterID,
			DriverID:         req.DriverID,
			StartDate:        req.StartDate,
			EndDate:          req.EndDate,
			DurationUnit:     string(breakdown.Unit),
			DurationUnits:    breakdown.Units,
			BasePrice:        breakdown.Base,
			DiscountAmount:   breakdown.Discount,
			TaxAmount:        breakdown.Tax,
			CommissionAmount: breakdown.Commission,
			TotalAmount:      breakdown.Total,
			SuggestedPrice:   &suggested,
			Currency:         currency,
			Status:           StatusPending,
			PaymentStatus:    PaymentStatusPending,
		}
		if err := s.repo.Create(ctx, b); err != nil {
			return wrapStorage("failed to create booking", err)
		}
		created = b
		return nil
	})
	log := logger.Enrich(ctx, s.logger)
	if err != nil {
		log.Error("failed to create booking", "error", err, "vehicle_id", req.VehicleID, "renter_id", req.RenterID)
		return nil, err
	}

	log.Info("booking created",
		"booking_id", created.ID,
		"booking_number", created.BookingNumber,
		"vehicle_id", created.VehicleID,
		"total_amount", created.TotalAmount)

	return created, nil
}

// Confirm re-checks availability under the vehicle lock, so of two
// overlapping pending bookings only the first to confirm wins.
func (s *Service) Confirm(ctx context.Context, id int64) (*Booking, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var confirmed *Booking
	err = s.within(ctx, lock.VehicleKey(current.VehicleID), func(ctx context.Context) error {
		var err error
		confirmed, err = s.transition(ctx, id, StatusConfirmed, func(ctx context.Context, b *Booking) error {
			if _, err := s.lockOperationalVehicle(ctx, b.VehicleID); err != nil {
				return err
			}
			conflict, err := s.HasConflict(ctx, b.VehicleID, b.StartDate, b.EndDate, b.ID)
			if err != nil {
				return err
			}
			if conflict {
				return internal.ErrBookingConflict
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func (s *Service) StartTrip(ctx context.Context, id int64, req StartTripRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusInProgress, func(_ context.Context, b *Booking) error {
		pickup := s.now()
		if req.PickupTime != nil {
			pickup = *req.PickupTime
		}
		b.PickupTime = &pickup
		b.OdometerStart = req.OdometerStart
		b.FuelLevelStart = req.FuelLevelStart
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, id int64, req CompleteTripRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusCompleted, func(_ context.Context, b *Booking) error {
		if req.OdometerEnd != nil && b.OdometerStart != nil {
			if *req.OdometerEnd < *b.OdometerStart {
				return internal.NewValidationFieldError("odometer_end", "odometer_end must not be below odometer_start", internal.ErrCodeValidationFailed)
			}
			distance := *req.OdometerEnd - *b.OdometerStart
			b.DistanceKm = &distance
		}

		dropoff := s.now()
		if req.DropoffTime != nil {
			dropoff = *req.DropoffTime
		}
		b.DropoffTime = &dropoff
		b.OdometerEnd = req.OdometerEnd
		b.FuelLevelEnd = req.FuelLevelEnd
		b.DamageReport = req.DamageReport
		b.RenterRating = req.RenterRating
		return nil
	})
}

// Cancel closes a pending or confirmed booking. With WantRefund the
// renter gets the tiered share of the total, capped by what is refundable.
func (s *Service) Cancel(ctx context.Context, id int64, req CancelBookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	cancelled, err := s.transition(ctx, id, StatusCancelled, func(ctx context.Context, b *Booking) error {
		if !b.CanBeCancelled(now, s.cfg.CancellationCutoff) {
			return rejectTransition(b.Status, StatusCancelled, internal.ErrCodeCancellationClosed, "cancellation window has closed")
		}

		var refund int64
		if req.WantRefund && s.refunds != nil {
			owed := b.CancellationRefund(now)
			if owed > 0 {
				available, err := s.refunds.BookingRefundable(ctx, b.ID)
				if err != nil {
					return err
				}
				refund = min(owed, available)
			}
			if refund > 0 {
				reason := req.Reason
				if reason == "" {
					reason = "booking cancelled"
				}
				if _, err := s.refunds.RefundBooking(ctx, b.ID, refund, reason); err != nil {
					return err
				}
			}
		}

		b.CancelledAt = &now
		b.RefundAmount = refund
		if req.Reason != "" {
			b.CancellationReason = &req.Reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		"booking_id", cancelled.ID,
		"refund_amount", cancelled.RefundAmount,
		"payment_status", cancelled.PaymentStatus)

	return cancelled, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id int64) (*Booking, error) {
	now := s.now()
	return s.transition(ctx, id, StatusNoShow, func(_ context.Context, b *Booking) error {
		if !now.After(b.StartDate) {
			return rejectTransition(b.Status, StatusNoShow, internal.ErrCodeNoShowTooEarly, "booking has not started yet")
		}
		return nil
	})
}

// SweepNoShows marks confirmed bookings whose start passed more than the
// configured grace period ago. It returns how many were marked.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.NoShowGrace)
	overdue, err := s.repo.ListStartedBefore(ctx, StatusConfirmed, cutoff, sweepBatchSize)
	if err != nil {
		return 0, wrapStorage("failed to list overdue bookings", err)
	}

	marked := 0
	for _, b := range overdue {
		if _, err := s.MarkNoShow(ctx, b.ID); err != nil {
			// a trip started or a cancellation landed since the listing
			s.logger.Warn("skipping no-show", "booking_id", b.ID, "error", err)
			continue
		}
		marked++
	}

	if marked > 0 {
		s.logger.Info("no-show sweep finished", "marked", marked, "candidates", len(overdue))
	}
	return marked, nil
}

func (s *Service) AssignDriver(ctx context.Context, id, driverID int64) (*Booking, error) {
	if driverID <= 0 {
		return nil, internal.NewValidationFieldError("driver_id", "driver_id is required", internal.ErrCodeValidationFailed)
	}

	var assigned *Booking
	err := s.within(ctx, lock.BookingKey(id), func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return wrapStorage("failed to load booking", err)
		}
		if b.Status != StatusPending && b.Status != StatusConfirmed {
			return rejectTransition(b.Status, b.Status, internal.ErrCodeInvalidTransition,
				fmt.Sprintf("cannot assign a driver to a %s booking", b.Status))
		}
		if _, err := s.availableDriver(ctx, driverID); err != nil {
			return err
		}

		b.DriverID = &driverID
		if err := s.repo.Update(ctx, b, b.Status); err != nil {
			return wrapStorage("failed to assign driver", err)
		}
		assigned = b
		return nil
	})
	if err != nil {
		s.logger.Warn("driver assignment rejected", "error", err, "booking_id", id, "driver_id", driverID)
		return nil, err
	}

	s.logger.Info("driver assigned", "booking_id", id, "driver_id", driverID)
	return assigned, nil
}

// Quote prices a rental without holding or persisting anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v, err := s.vehicles.Get(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}

	unit := pricing.UnitDay
	if req.DurationUnit != "" {
		unit = pricing.DurationUnit(req.DurationUnit)
	}
	breakdown, err := s.price(v, req.StartDate, req.EndDate, unit, req.DiscountAmount)
	if err != nil {
		return nil, err
	}
	suggested, err := s.suggest(ctx, v, 0, req.StartDate, breakdown.Base)
	if err != nil {
		return nil, err
	}

	currency := v.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	return &Quote{
		Breakdown:      breakdown,
		VehicleID:      v.ID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Currency:       currency,
		SuggestedPrice: suggested,
	}, nil
}

// HandlePaymentStatusChanged is the booking side's audit trail for payment
// status changes; it never mutates the booking. Money that lands on a
// cancelled or no-show booking, such as a bank transfer confirmed after
// cancellation, is flagged at warn level for an operator to refund.
func (s *Service) HandlePaymentStatusChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentStatusChangedEvent)
	if !ok {
		return nil
	}
	b, err := s.Get(ctx, e.BookingID)
	if err != nil {
		return err
	}

	log := logger.Enrich(ctx, s.logger).With(
		"booking_id", b.ID,
		"booking_status", b.Status,
		"from", e.FromStatus,
		"to", e.ToStatus,
		"net_paid", e.NetPaid)

	closed := b.Status == StatusCancelled || b.Status == StatusNoShow
	if closed && paymentRank(e.ToStatus) > paymentRank(e.FromStatus) {
		log.Warn("payment settled on a closed booking")
		return nil
	}
	log.Info("booking payment status changed")
	return nil
}

// paymentRank orders payment statuses by how much money the booking holds.
func paymentRank(status string) int {
	switch status {
	case PaymentStatusPartial:
		return 1
	case PaymentStatusPaid:
		return 2
	case PaymentStatusRefunded:
		return -1
	}
	return 0
}

func (s *Service) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentStatusChanged, s.HandlePaymentStatusChanged)
}

// transition moves a booking to `to` under the booking lock. mutate runs
// after the lifecycle check and may reject the change; nothing is written
// when it does.
func (s *Service) transition(ctx context.Context, id int64, to string, mutate func(ctx context.Context, b *Booking) error) (*Booking, error) {
	var (
		from    string
		updated *Booking
	)
	err := s.within(ctx, lock.BookingKey(id), func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return wrapStorage("failed to load booking", err)
		}
		from = b.Status
		if !CanTransition(b.Status, to) {
			return internal.NewInvalidStateTransitionError("booking", b.Status, to)
		}
		if err := mutate(ctx, b); err != nil {
			return err
		}

		b.Status = to
		if err := s.repo.Update(ctx, b, from); err != nil {
			return wrapStorage("failed to update booking", err)
		}
		if updated, err = s.repo.GetByID(ctx, id); err != nil {
			return wrapStorage("failed to reload booking", err)
		}

		if s.publisher != nil {
			event := events.NewBookingStatusChangedEvent(b.ID, b.VehicleID, b.DriverID, from, to)
			// delivered before the booking lock is released, so subscribers
			// see one booking's changes in commit order
			database.AfterCommit(ctx, func(ctx context.Context) {
				if err := s.publisher.PublishSync(ctx, event); err != nil {
					s.logger.Error("failed to publish booking status change", "error", err, "booking_id", b.ID)
				}
			})
		}
		return nil
	})
	log := logger.Enrich(ctx, s.logger).With("booking_id", id, "from", from, "to", to)
	if err != nil {
		log.Warn("booking status change rejected", "error", err)
		return nil, err
	}

	log.Info("booking status changed")
	return updated, nil
}

func (s *Service) lockOperationalVehicle(ctx context.Context, vehicleID int64) (*vehicle.Vehicle, error) {
	if err := s.repo.LockVehicle(ctx, vehicleID); err != nil {
		return nil, wrapStorage("failed to lock vehicle", err)
	}
	v, err := s.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Operational() {
		return nil, internal.ErrVehicleNotAvailable
	}
	return v, nil
}

func (s *Service) availableDriver(ctx context.Context, driverID int64) (*driver.Driver, error) {
	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !d.Available() {
		return nil, internal.NewDriverUnavailableError(d.ID, d.Status)
	}
	return d, nil
}

func (s *Service) price(v *vehicle.Vehicle, start, end time.Time, unit pricing.DurationUnit, discount int64) (pricing.Breakdown, error) {
	breakdown, err := s.calculator.Calculate(pricing.Input{
		Rates:    v.Rates(),
		Start:    start,
		End:      end,
		Unit:     unit,
		Discount: discount,
	})
	if err != nil {
		return pricing.Breakdown{}, internal.NewValidationFieldError("duration_unit", err.Error(), internal.ErrCodeInvalidDuration)
	}
	return breakdown, nil
}

func (s *Service) suggest(ctx context.Context, v *vehicle.Vehicle, excludeID int64, start time.Time, base int64) (int64, error) {
	window := availability.Interval{Start: start.Add(-pricing.NearbyWindow), End: start.Add(pricing.NearbyWindow)}
	nearby, err := s.repo.CountNearby(ctx, v.ID, excludeID, window)
	if err != nil {
		return 0, wrapStorage("failed to count nearby bookings", err)
	}
	return pricing.SuggestedPrice(base, pricing.SuggestionInput{
		Start:          start,
		NearbyBookings: int(nearby),
		AverageRating:  v.AverageRating,
		TotalBookings:  v.TotalBookings,
	}), nil
}

func (s *Service) uniqueNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	for i := 0; i < maxNumberAttempts; i++ {
		number := fmt.Sprintf("%s%d%06d", s.cfg.NumberPrefix, year, s.randomSuffix())
		exists, err := s.repo.NumberExists(ctx, number)
		if err != nil {
			return "", wrapStorage("failed to check booking number", err)
		}
		if !exists {
			return number, nil
		}
		s.logger.Warn("booking number collision, regenerating", "booking_number", number)
	}
	appErr := internal.NewStorageError("could not allocate a unique booking number", nil)
	appErr.Code = internal.ErrCodeIdentifierExhausted
	return "", appErr
}
