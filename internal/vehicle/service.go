package vehicle

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/vehicle-rental/internal"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
)

type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	GetByID(ctx context.Context, id int64) (*Vehicle, error)
	List(ctx context.Context) ([]*Vehicle, error)
	CompletedStats(ctx context.Context, vehicleID int64) (Stats, error)
	UpdateStats(ctx context.Context, vehicleID int64, stats Stats) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func wrapStorage(message string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	return internal.NewStorageError(message, err)
}

func (s *Service) Get(ctx context.Context, id int64) (*Vehicle, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStorage("failed to load vehicle", err)
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]*Vehicle, error) {
	vehicles, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrapStorage("failed to list vehicles", err)
	}
	return vehicles, nil
}

func (s *Service) Create(ctx context.Context, req CreateVehicleRequest) (*Vehicle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v := &Vehicle{
		Name:        req.Name,
		PlateNumber: req.PlateNumber,
		DailyRate:   req.DailyRate,
		HourlyRate:  req.HourlyRate,
		WeeklyRate:  req.WeeklyRate,
		MonthlyRate: req.MonthlyRate,
		Currency:    req.Currency,
		IsAvailable: true,
		Status:      StatusActive,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		s.logger.Error("failed to create vehicle", "error", err, "plate_number", req.PlateNumber)
		return nil, wrapStorage("failed to create vehicle", err)
	}

	s.logger.Info("vehicle created", "vehicle_id", v.ID, "plate_number", v.PlateNumber)
	return v, nil
}

// RefreshStats recomputes total bookings and average rating from the
// vehicle's completed bookings.
func (s *Service) RefreshStats(ctx context.Context, vehicleID int64) (Stats, error) {
	stats, err := s.repo.CompletedStats(ctx, vehicleID)
	if err != nil {
		return Stats{}, wrapStorage("failed to aggregate vehicle stats", err)
	}
	if err := s.repo.UpdateStats(ctx, vehicleID, stats); err != nil {
		return Stats{}, wrapStorage("failed to update vehicle stats", err)
	}

	s.logger.Info("vehicle stats refreshed",
		"vehicle_id", vehicleID,
		"total_bookings", stats.TotalBookings,
		"average_rating", stats.AverageRating)

	return stats, nil
}

// HandleBookingStatusChanged refreshes stats when a trip completes.
func (s *Service) HandleBookingStatusChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.BookingStatusChangedEvent)
	if !ok || e.ToStatus != bookingmodel.StatusCompleted {
		return nil
	}
	_, err := s.RefreshStats(ctx, e.VehicleID)
	return err
}

// Register subscribes the stats refresher to booking status changes.
func (s *Service) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeBookingStatusChanged, s.HandleBookingStatusChanged)
}
