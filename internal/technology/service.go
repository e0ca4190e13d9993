package technology

import (
	"context"
	"errors"
	"log/slog"

	"github.com/digicoders/feeledger/internal"
	technologyDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/technology"
)

type RepositoryAPI interface {
	ListActive(ctx context.Context) ([]*technologyDatamodel.Technology, error)
	GetByID(ctx context.Context, id int64) (*technologyDatamodel.Technology, error)
	Create(ctx context.Context, tech *technologyDatamodel.Technology) error
	Deactivate(ctx context.Context, id int64) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) ListTechnologies(ctx context.Context) ([]*Technology, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list technologies", "error", err)
		return nil, internal.NewInternalError("failed to list technologies", err)
	}

	out := make([]*Technology, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) GetTechnology(ctx context.Context, id int64) (*Technology, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrTechnologyNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load technology", "error", err, "technology_id", id)
		return nil, internal.NewInternalError("failed to load technology", err)
	}
	return FromDataModel(row), nil
}

func (s *Service) CreateTechnology(ctx context.Context, dto CreateTechnologyDTO) (*Technology, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row := ToDataModel(NewTechnology(dto.Name, dto.Price))
	if err := s.repo.Create(ctx, row); err != nil {
		if errors.Is(err, internal.ErrDuplicateKey) {
			return nil, internal.ErrDuplicateTechnology
		}
		s.logger.Error("failed to create technology", "error", err, "name", dto.Name)
		return nil, internal.NewInternalError("failed to create technology", err)
	}

	s.logger.Info("technology created", "technology_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

// DeactivateTechnology hides a course from new enrolments. Existing
// registrations keep their fee.
func (s *Service) DeactivateTechnology(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, internal.ErrTechnologyNotFound) {
			return err
		}
		s.logger.Error("failed to deactivate technology", "error", err, "technology_id", id)
		return internal.NewInternalError("failed to deactivate technology", err)
	}
	s.logger.Info("technology deactivated", "technology_id", id)
	return nil
}
