package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type feedSource interface {
	ListClasses(ctx context.Context) ([]models.FeedClassRow, error)
	ListEnrollments(ctx context.Context) ([]models.FeedEnrollmentRow, error)
}

type syncClassStore interface {
	ListAll(ctx context.Context) ([]models.ClassOffering, error)
	Insert(ctx context.Context, class *models.ClassOffering) error
	UpdateFromFeed(ctx context.Context, class *models.ClassOffering) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}

type syncEnrollmentStore interface {
	UpsertExternal(ctx context.Context, in models.ExternalEnrollment, at time.Time) (string, models.UpsertOutcome, error)
	ListActiveExternal(ctx context.Context) ([]models.Enrollment, error)
	MarkRemoved(ctx context.Context, id, reason, actor string, at time.Time) error
}

type rosterInvalidator interface {
	InvalidateRosters(ctx context.Context)
}

// SyncServiceConfig tunes reconciliation passes.
type SyncServiceConfig struct {
	AllowEmptyFeed bool
	SemesterLabel  string
}

// SyncService reconciles the warehouse feed into the class and enrollment tables. Manual
// enrollments are never read or written by a pass.
type SyncService struct {
	feed        feedSource
	classes     syncClassStore
	enrollments syncEnrollmentStore
	audit       auditRecorder
	rosters     rosterInvalidator
	metrics     *MetricsService
	cfg         SyncServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewSyncService constructs SyncService.
func NewSyncService(feed feedSource, classes syncClassStore, enrollments syncEnrollmentStore, audit auditRecorder, rosters rosterInvalidator, metrics *MetricsService, cfg SyncServiceConfig, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		feed:        feed,
		classes:     classes,
		enrollments: enrollments,
		audit:       audit,
		rosters:     rosters,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// syncPass carries the state of one run.
type syncPass struct {
	summary *models.SyncSummary
	at      time.Time
	logger  *zap.Logger
}

func (p *syncPass) rowError(step, key, message string) {
	p.summary.Errors = append(p.summary.Errors, models.RowError{Step: step, Key: key, Message: message})
	p.logger.Warn("sync row skipped", zap.String("step", step), zap.String("key", key), zap.String("reason", message))
}

// Run executes one reconciliation pass. Row faults are collected in the summary and the pass
// continues; a connectivity fault aborts the pass and is returned as ErrSyncFailed together
// with the partial summary. Nothing is rolled back: a later pass converges.
func (s *SyncService) Run(ctx context.Context, actor string) (*models.SyncSummary, error) {
	if actor == "" {
		actor = models.SystemActor
	}
	started := s.now()
	pass := &syncPass{
		summary: &models.SyncSummary{
			PassID:    uuid.NewString(),
			Actor:     actor,
			StartedAt: started.UTC(),
			Errors:    []models.RowError{},
		},
		at: started.UTC(),
	}
	pass.logger = s.logger.With(zap.String("pass_id", pass.summary.PassID), zap.String("actor", actor))
	pass.logger.Info("sync pass started")

	err := s.reconcile(ctx, pass)

	summary := pass.summary
	summary.ElapsedMS = s.now().Sub(started).Milliseconds()
	summary.ErrorCount = len(summary.Errors)

	// Partial writes may have landed either way.
	if s.rosters != nil {
		s.rosters.InvalidateRosters(context.WithoutCancel(ctx))
	}

	if err != nil {
		summary.Fatal = err.Error()
		// Rows written before the fault still need their audit entry.
		s.recordAudit(context.WithoutCancel(ctx), summary)
		s.metrics.RecordSyncPass(*summary)
		pass.logger.Error("sync pass aborted", zap.Error(err), zap.Int("row_errors", summary.ErrorCount))
		return summary, appErrors.Wrap(err, appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, "roster sync aborted")
	}

	s.recordAudit(ctx, summary)
	s.metrics.RecordSyncPass(*summary)
	fields := []zap.Field{
		zap.Int("classes_inserted", summary.Classes.Inserted),
		zap.Int("classes_updated", summary.Classes.Updated),
		zap.Int("classes_deactivated", summary.Classes.Deactivated),
		zap.Int("enrollments_inserted", summary.Enrollments.Inserted),
		zap.Int("enrollments_updated", summary.Enrollments.Updated),
		zap.Int("enrollments_unchanged", summary.Enrollments.Unchanged),
		zap.Int("enrollments_deactivated", summary.Enrollments.Deactivated),
		zap.Int64("elapsed_ms", summary.ElapsedMS),
	}
	if summary.ErrorCount > 0 {
		fields = append(fields, zap.Int("row_errors", summary.ErrorCount), zap.NamedError("row_error_detail", summary.Err()))
	}
	pass.logger.Info("sync pass finished", fields...)
	return summary, nil
}

func (s *SyncService) reconcile(ctx context.Context, pass *syncPass) error {
	feedClasses, err := s.feed.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("load class feed: %w", err)
	}
	feedEnrollments, err := s.feed.ListEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("load enrollment feed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.cfg.AllowEmptyFeed {
		if len(feedClasses) == 0 {
			return errors.New("class feed is empty; refusing to deactivate every class")
		}
		if len(feedEnrollments) == 0 {
			return errors.New("enrollment feed is empty; refusing to remove every external enrollment")
		}
	}

	existing, err := s.classes.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load class offerings: %w", err)
	}

	seen, err := s.syncClasses(ctx, pass, feedClasses, existing)
	if err != nil {
		return err
	}
	if err := s.deactivateClasses(ctx, pass, existing, seen); err != nil {
		return err
	}

	keys, err := s.syncEnrollments(ctx, pass, feedEnrollments, seen)
	if err != nil {
		return err
	}
	return s.deactivateEnrollments(ctx, pass, keys)
}

// syncClasses applies each feed class row and returns the external ids seen, mapped to the
// internal id of the stored row ("" when the row could not be written).
func (s *SyncService) syncClasses(ctx context.Context, pass *syncPass, rows []models.FeedClassRow, existing []models.ClassOffering) (map[string]string, error) {
	byExternal := make(map[string]models.ClassOffering, len(existing))
	for _, class := range existing {
		byExternal[class.ExternalID] = class
	}

	seen := make(map[string]string, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		externalID := strings.TrimSpace(row.ExternalClassID)
		if externalID == "" {
			pass.rowError(models.SyncStepClasses, "", "class row has no external id")
			continue
		}
		if _, dup := seen[externalID]; dup {
			pass.rowError(models.SyncStepClasses, externalID, "duplicate external class id in feed")
			continue
		}
		seen[externalID] = ""

		schedule, ok := ParseMeetingTimes(row.MeetingTimes)
		if !ok {
			pass.rowError(models.SyncStepClasses, externalID, fmt.Sprintf("unparseable meeting times %q; stored with unknown day", row.MeetingTimes))
		}

		lastSync := pass.at
		class := models.ClassOffering{
			ExternalID:   externalID,
			Name:         strings.TrimSpace(row.ProgramName),
			Instructor:   trimmedOrNil(row.Teacher),
			MeetingDay:   schedule.Day,
			StartTime:    schedule.StartTime,
			EndTime:      schedule.EndTime,
			Semester:     s.cfg.SemesterLabel,
			SchoolYear:   strings.TrimSpace(row.SchoolYear),
			MinGrade:     row.MinGrade,
			MaxGrade:     row.MaxGrade,
			Active:       true,
			LastSyncedAt: &lastSync,
		}

		if current, found := byExternal[externalID]; found {
			class.ID = current.ID
			class.CreatedAt = current.CreatedAt
			if err := s.classes.UpdateFromFeed(ctx, &class); err != nil {
				if isConnectivityError(err) {
					return nil, fmt.Errorf("update class %s: %w", externalID, err)
				}
				// The row still exists, so enrollments can resolve to it.
				seen[externalID] = current.ID
				pass.rowError(models.SyncStepClasses, externalID, err.Error())
				continue
			}
			pass.summary.Classes.Updated++
		} else {
			class.CreatedAt = pass.at
			if err := s.classes.Insert(ctx, &class); err != nil {
				if isConnectivityError(err) {
					return nil, fmt.Errorf("insert class %s: %w", externalID, err)
				}
				pass.rowError(models.SyncStepClasses, externalID, err.Error())
				continue
			}
			pass.summary.Classes.Inserted++
		}
		seen[externalID] = class.ID
	}
	return seen, nil
}

func (s *SyncService) deactivateClasses(ctx context.Context, pass *syncPass, existing []models.ClassOffering, seen map[string]string) error {
	for _, class := range existing {
		if !class.Active {
			continue
		}
		if _, ok := seen[class.ExternalID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.classes.Deactivate(ctx, class.ID, pass.at); err != nil {
			if isConnectivityError(err) {
				return fmt.Errorf("deactivate class %s: %w", class.ExternalID, err)
			}
			pass.rowError(models.SyncStepDeactivate, class.ExternalID, err.Error())
			continue
		}
		pass.summary.Classes.Deactivated++
	}
	return nil
}

// syncEnrollments upserts each feed enrollment and returns the natural keys present in the feed.
func (s *SyncService) syncEnrollments(ctx context.Context, pass *syncPass, rows []models.FeedEnrollmentRow, classIDs map[string]string) (map[models.EnrollmentKey]bool, error) {
	keys := make(map[models.EnrollmentKey]bool, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		externalClassID := strings.TrimSpace(row.ExternalClassID)
		rowKey := externalClassID + "/" + strconv.FormatInt(row.StudentExternalID, 10)

		classID := classIDs[externalClassID]
		if classID == "" {
			pass.rowError(models.SyncStepEnrollments, rowKey, fmt.Sprintf("unknown class %s", externalClassID))
			continue
		}
		if row.StudentExternalID <= 0 {
			pass.rowError(models.SyncStepEnrollments, rowKey, "invalid student id")
			continue
		}
		key := models.EnrollmentKey{ClassID: classID, StudentExternalID: row.StudentExternalID}
		if keys[key] {
			pass.rowError(models.SyncStepEnrollments, rowKey, "duplicate enrollment in feed")
			continue
		}
		keys[key] = true

		notes := ""
		if row.Notes != nil {
			notes = strings.TrimSpace(*row.Notes)
		}
		_, outcome, err := s.enrollments.UpsertExternal(ctx, models.ExternalEnrollment{
			ClassID:           classID,
			StudentExternalID: row.StudentExternalID,
			Category:          MapCategory(row.EnrollmentStatus),
			FeePaid:           row.FeePaid,
			Notes:             notes,
			Actor:             pass.summary.Actor,
		}, pass.at)
		if err != nil {
			if isConnectivityError(err) {
				return nil, fmt.Errorf("upsert enrollment %s: %w", rowKey, err)
			}
			pass.rowError(models.SyncStepEnrollments, rowKey, err.Error())
			continue
		}
		switch outcome {
		case models.UpsertInserted:
			pass.summary.Enrollments.Inserted++
		case models.UpsertUpdated:
			pass.summary.Enrollments.Updated++
		default:
			pass.summary.Enrollments.Unchanged++
		}
	}
	return keys, nil
}

func (s *SyncService) deactivateEnrollments(ctx context.Context, pass *syncPass, keys map[models.EnrollmentKey]bool) error {
	active, err := s.enrollments.ListActiveExternal(ctx)
	if err != nil {
		return fmt.Errorf("load active external enrollments: %w", err)
	}
	for _, enrollment := range active {
		if enrollment.Provenance != models.ProvenanceExternal || keys[enrollment.Key()] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.enrollments.MarkRemoved(ctx, enrollment.ID, models.RemovalReasonSourceMissing, pass.summary.Actor, pass.at)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if isConnectivityError(err) {
				return fmt.Errorf("remove enrollment %s: %w", enrollment.ID, err)
			}
			pass.rowError(models.SyncStepDeactivate, enrollment.ID, err.Error())
			continue
		}
		pass.summary.Enrollments.Deactivated++
	}
	return nil
}

func (s *SyncService) recordAudit(ctx context.Context, summary *models.SyncSummary) {
	if s.audit == nil {
		return
	}
	snapshot := map[string]interface{}{
		"classes":     summary.Classes,
		"enrollments": summary.Enrollments,
		"elapsed_ms":  summary.ElapsedMS,
		"error_count": summary.ErrorCount,
	}
	if summary.Fatal != "" {
		snapshot["fatal"] = summary.Fatal
	}
	s.audit.Record(ctx, models.AuditTableSync, summary.PassID, models.AuditActionSync, summary.Actor, nil, snapshot)
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
