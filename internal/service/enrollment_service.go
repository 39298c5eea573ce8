package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateManual(ctx context.Context, enrollment *models.Enrollment) error
	MarkRemoved(ctx context.Context, id, reason, actor string, at time.Time) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassOfferingDetail, error)
}

// EnrollmentService handles staff edits to enrollments. Every mutation writes one audit entry
// and drops cached rosters.
type EnrollmentService struct {
	repo      enrollmentRepository
	classes   classReader
	audit     auditRecorder
	rosters   rosterInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, classes classReader, audit auditRecorder, rosters rosterInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, classes: classes, audit: audit, rosters: rosters, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, paginate(filter.Page, filter.PageSize, 50, total), nil
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// Create adds a manual enrollment. Manual rows may coexist with a feed row for the same student.
func (s *EnrollmentService) Create(ctx context.Context, req models.CreateEnrollmentRequest, actor string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	if !class.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class is no longer offered")
	}

	enrollment := &models.Enrollment{
		ClassID:           req.ClassID,
		StudentExternalID: req.StudentExternalID,
		Status:            models.EnrollmentStatusActive,
		Provenance:        models.ProvenanceManual,
		Category:          categoryOrNil(req.Category),
		FeePaid:           req.FeePaid,
		StartDate:         start,
		EndDate:           end,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedBy:         actor,
		UpdatedBy:         actor,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}

	s.audit.Record(ctx, models.AuditTableEnrollments, enrollment.ID, models.AuditActionInsert, actor, nil, enrollment)
	s.rosters.InvalidateRosters(ctx)
	s.logger.Info("manual enrollment created", zap.String("enrollment_id", enrollment.ID), zap.String("class_id", enrollment.ClassID), zap.String("actor", actor))
	return enrollment, nil
}

// Update edits an active manual enrollment. Feed-owned rows are rejected because the next sync
// would overwrite the change.
func (s *EnrollmentService) Update(ctx context.Context, id string, req models.UpdateEnrollmentRequest, actor string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Provenance != models.ProvenanceManual {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is managed by the external feed")
	}
	if current.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
	}

	before := *current
	updated := *current
	if req.Category != nil {
		updated.Category = categoryOrNil(req.Category)
	}
	if req.FeePaid != nil {
		updated.FeePaid = *req.FeePaid
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.StartDate != nil || req.EndDate != nil {
		start, end, err := parseDateRange(req.StartDate, req.EndDate)
		if err != nil {
			return nil, err
		}
		if req.StartDate != nil {
			updated.StartDate = start
		}
		if req.EndDate != nil {
			updated.EndDate = end
		}
		if updated.StartDate != nil && updated.EndDate != nil && updated.EndDate.Before(*updated.StartDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
		}
	}
	updated.UpdatedBy = actor

	if err := s.repo.UpdateManual(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed while editing")
		}
		return nil, appErrors.Internal(err, "failed to update enrollment")
	}

	s.audit.Record(ctx, models.AuditTableEnrollments, id, models.AuditActionUpdate, actor, before, updated)
	s.rosters.InvalidateRosters(ctx)
	return &updated, nil
}

// Remove soft-deletes an enrollment of either provenance. A removed feed row stays removed
// until the feed drops and re-adds the student.
func (s *EnrollmentService) Remove(ctx context.Context, id string, req models.RemoveEnrollmentRequest, actor string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid removal payload")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already inactive")
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = models.RemovalReasonStaff
	}
	at := time.Now().UTC()
	if err := s.repo.MarkRemoved(ctx, id, reason, actor, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed while editing")
		}
		return nil, appErrors.Internal(err, "failed to remove enrollment")
	}

	removed := *current
	removed.Status = models.EnrollmentStatusRemoved
	removed.RemovalReason = &reason
	removed.UpdatedBy = actor
	removed.UpdatedAt = at

	s.audit.Record(ctx, models.AuditTableEnrollments, id, models.AuditActionDelete, actor, current, removed)
	s.rosters.InvalidateRosters(ctx)
	s.logger.Info("enrollment removed", zap.String("enrollment_id", id), zap.String("provenance", string(current.Provenance)), zap.String("actor", actor))
	return &removed, nil
}

func categoryOrNil(raw *string) *models.EnrollmentCategory {
	if raw == nil || *raw == "" {
		return nil
	}
	category := models.EnrollmentCategory(*raw)
	return &category
}

func parseDateRange(startRaw, endRaw *string) (*time.Time, *time.Time, error) {
	start, err := parseOptionalDate(startRaw)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as YYYY-MM-DD")
	}
	end, err := parseOptionalDate(endRaw)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as YYYY-MM-DD")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	return start, end, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}
