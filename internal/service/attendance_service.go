package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type manualAbsenceRepository interface {
	FindManualAbsence(ctx context.Context, classID string, studentID int64, date time.Time) (*models.ManualAbsence, error)
	CreateManualAbsence(ctx context.Context, absence *models.ManualAbsence) (bool, error)
	DeleteManualAbsence(ctx context.Context, id string) error
}

// dateResolver reads request dates in the organisation time zone.
type dateResolver interface {
	ParseDate(raw string) (time.Time, error)
}

// AttendanceService toggles staff-marked absences.
type AttendanceService struct {
	repo      manualAbsenceRepository
	classes   classReader
	dates     dateResolver
	audit     auditRecorder
	rosters   rosterInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo manualAbsenceRepository, classes classReader, dates dateResolver, audit auditRecorder, rosters rosterInvalidator, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, classes: classes, dates: dates, audit: audit, rosters: rosters, validator: validate, logger: logger}
}

// MarkAbsent records a manual absence. Marking an already absent student returns the existing
// mark with created=false.
func (s *AttendanceService) MarkAbsent(ctx context.Context, classID string, req models.MarkAbsenceRequest, actor string) (*models.ManualAbsence, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Validation(err, "invalid absence payload")
	}
	date, err := s.dates.ParseDate(req.Date)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, false, appErrors.Internal(err, "failed to load class")
	}

	absence := &models.ManualAbsence{ClassID: classID, StudentExternalID: req.StudentExternalID, Date: date, CreatedBy: actor}
	created, err := s.repo.CreateManualAbsence(ctx, absence)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to mark absence")
	}
	if !created {
		existing, err := s.repo.FindManualAbsence(ctx, classID, req.StudentExternalID, date)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to load absence")
		}
		return existing, false, nil
	}

	s.audit.Record(ctx, models.AuditTableManualAbsences, absence.ID, models.AuditActionInsert, actor, nil, absence)
	s.rosters.InvalidateRosters(ctx)
	return absence, true, nil
}

// ClearAbsence deletes a manual absence. External absences cannot be cleared here.
func (s *AttendanceService) ClearAbsence(ctx context.Context, classID string, studentID int64, rawDate, actor string) error {
	date, err := s.dates.ParseDate(rawDate)
	if err != nil {
		return err
	}
	absence, err := s.repo.FindManualAbsence(ctx, classID, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "manual absence not found")
		}
		return appErrors.Internal(err, "failed to load absence")
	}
	if err := s.repo.DeleteManualAbsence(ctx, absence.ID); err != nil {
		return appErrors.Internal(err, "failed to clear absence")
	}

	s.audit.Record(ctx, models.AuditTableManualAbsences, absence.ID, models.AuditActionDelete, actor, absence, nil)
	s.rosters.InvalidateRosters(ctx)
	return nil
}
