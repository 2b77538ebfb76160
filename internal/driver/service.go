package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/vehicle-rental/internal"
)

type Repository interface {
	Create(ctx context.Context, d *Driver) error
	GetByID(ctx context.Context, id int64) (*Driver, error)
	List(ctx context.Context) ([]*Driver, error)
	SetStatus(ctx context.Context, id int64, status string) error
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

func (s *Service) Get(ctx context.Context, id int64) (*Driver, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStorage("failed to load driver", err)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]*Driver, error) {
	drivers, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrapStorage("failed to list drivers", err)
	}
	return drivers, nil
}

func (s *Service) Create(ctx context.Context, name, phone string) (*Driver, error) {
	if name == "" {
		return nil, internal.NewValidationFieldError("name", "name is required", internal.ErrCodeValidationFailed)
	}
	d := &Driver{Name: name, Phone: phone, Status: StatusAvailable}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, wrapStorage("failed to create driver", err)
	}
	s.logger.Info("driver created", "driver_id", d.ID)
	return d, nil
}

func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	if !ValidStatus(status) {
		return internal.NewValidationFieldError("status", fmt.Sprintf("unknown driver status %q", status), internal.ErrCodeValidationFailed)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return wrapStorage("failed to update driver status", err)
	}
	s.logger.Info("driver status changed", "driver_id", id, "status", status)
	return nil
}
