package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassOfferingDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassOfferingDetail, error)
}

// ClassService exposes read accessors for class offerings. Classes are written only by sync.
type ClassService struct {
	repo   classRepository
	logger *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassOfferingDetail, *models.Pagination, error) {
	if filter.Day != "" && !filter.Day.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "day must be monday, tuesday, wednesday, thursday or unknown")
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list classes")
	}
	return classes, paginate(filter.Page, filter.PageSize, 20, total), nil
}

// Get returns a class with its enrollment count.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassOfferingDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}
