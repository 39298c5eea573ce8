package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type rosterClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassOfferingDetail, error)
	ListActiveByDay(ctx context.Context, day models.MeetingDay) ([]models.ClassOffering, error)
}

type rosterEnrollmentReader interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
}

type studentDirectory interface {
	FindByExternalIDs(ctx context.Context, ids []int64) ([]models.StudentIdentity, error)
}

type attendanceReader interface {
	AbsentStudents(ctx context.Context, date time.Time, codes []int, studentIDs []int64) ([]int64, error)
	ListManualAbsences(ctx context.Context, classID string, date time.Time) ([]models.ManualAbsence, error)
}

type rosterCache interface {
	Load(ctx context.Context, classID string, date time.Time, build func() (*models.ClassRoster, error)) (*models.ClassRoster, error)
	InvalidateRosters(ctx context.Context) error
}

// RosterServiceConfig tunes roster assembly.
type RosterServiceConfig struct {
	// AbsentCodes are the external attendance codes that count as absent.
	AbsentCodes []int
	Location    *time.Location
}

// RosterService assembles display-ready rosters. It is a pure read path apart from caching.
type RosterService struct {
	classes     rosterClassReader
	enrollments rosterEnrollmentReader
	students    studentDirectory
	attendance  attendanceReader
	cache       rosterCache
	cfg         RosterServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewRosterService constructs RosterService.
func NewRosterService(classes rosterClassReader, enrollments rosterEnrollmentReader, students studentDirectory, attendance attendanceReader, cache rosterCache, cfg RosterServiceConfig, logger *zap.Logger) *RosterService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.AbsentCodes) == 0 {
		cfg.AbsentCodes = []int{2, 3, 4}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		classes:     classes,
		enrollments: enrollments,
		students:    students,
		attendance:  attendance,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Today returns midnight of the current date in the organisation time zone.
func (s *RosterService) Today() time.Time {
	return s.startOfDay(s.now())
}

// ParseDate reads a YYYY-MM-DD date in the organisation time zone. Empty input means today.
func (s *RosterService) ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.Today(), nil
	}
	date, err := time.ParseInLocation(dateLayout, raw, s.cfg.Location)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

// ClassRoster returns the roster of one class for the date (today when zero).
func (s *RosterService) ClassRoster(ctx context.Context, classID string, date time.Time) (*models.ClassRoster, error) {
	date = s.normalizeDate(date)
	return s.load(ctx, classID, date, func() (*models.ClassRoster, error) {
		class, err := s.classes.FindByID(ctx, classID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Internal(err, "failed to load class")
		}
		roster, err := s.build(ctx, class.ClassOffering, date)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load roster")
		}
		return roster, nil
	})
}

// TodayRosters returns one roster per active class meeting on the date. Fridays and weekends
// have no classes and yield an empty result.
func (s *RosterService) TodayRosters(ctx context.Context, date time.Time) ([]models.ClassRoster, error) {
	date = s.normalizeDate(date)
	day, ok := models.MeetingDayFor(date)
	if !ok {
		return []models.ClassRoster{}, nil
	}

	classes, err := s.classes.ListActiveByDay(ctx, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list classes")
	}

	rosters := make([]models.ClassRoster, 0, len(classes))
	for _, class := range classes {
		class := class
		roster, err := s.load(ctx, class.ID, date, func() (*models.ClassRoster, error) {
			return s.build(ctx, class, date)
		})
		if err != nil {
			return nil, appErrors.Internal(err, fmt.Sprintf("failed to load roster for %s", class.Name))
		}
		rosters = append(rosters, *roster)
	}
	return rosters, nil
}

// InvalidateRosters drops every cached roster.
func (s *RosterService) InvalidateRosters(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRosters(ctx); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.Error(err))
	}
}

func (s *RosterService) build(ctx context.Context, class models.ClassOffering, date time.Time) (*models.ClassRoster, error) {
	enrollments, err := s.enrollments.ListActiveByClass(ctx, class.ID)
	if err != nil {
		return nil, err
	}

	ids := studentIDs(enrollments)
	var (
		students []models.StudentIdentity
		absent   []int64
	)
	if len(ids) > 0 {
		if students, err = s.students.FindByExternalIDs(ctx, ids); err != nil {
			return nil, err
		}
		if absent, err = s.attendance.AbsentStudents(ctx, date, s.cfg.AbsentCodes, ids); err != nil {
			return nil, err
		}
	}
	manual, err := s.attendance.ListManualAbsences(ctx, class.ID, date)
	if err != nil {
		return nil, err
	}

	roster := assembleRoster(class, date, enrollments, students, absent, manual)
	return &roster, nil
}

func (s *RosterService) load(ctx context.Context, classID string, date time.Time, build func() (*models.ClassRoster, error)) (*models.ClassRoster, error) {
	if s.cache == nil {
		return build()
	}
	return s.cache.Load(ctx, classID, date, build)
}

func (s *RosterService) normalizeDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.Today()
	}
	return s.startOfDay(date)
}

func (s *RosterService) startOfDay(t time.Time) time.Time {
	local := t.In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
}

// assembleRoster joins enrollments with identities and both absence sources. Unresolved
// students become placeholders; an absence from either source marks the student absent.
func assembleRoster(class models.ClassOffering, date time.Time, enrollments []models.Enrollment, students []models.StudentIdentity, externalAbsent []int64, manual []models.ManualAbsence) models.ClassRoster {
	directory := make(map[int64]models.StudentIdentity, len(students))
	for _, student := range students {
		directory[student.ExternalID] = student
	}
	external := make(map[int64]bool, len(externalAbsent))
	for _, id := range externalAbsent {
		external[id] = true
	}
	manualAbsent := make(map[int64]bool, len(manual))
	for _, absence := range manual {
		manualAbsent[absence.StudentExternalID] = true
	}

	roster := models.ClassRoster{Class: class, Date: date, Entries: make([]models.RosterEntry, 0, len(enrollments))}
	for _, enrollment := range enrollments {
		student, ok := directory[enrollment.StudentExternalID]
		if !ok {
			student = models.PlaceholderStudent(enrollment.StudentExternalID)
		}
		entry := models.RosterEntry{
			EnrollmentID:      enrollment.ID,
			Provenance:        enrollment.Provenance,
			StudentExternalID: enrollment.StudentExternalID,
			StudentName:       student.DisplayName(),
			FirstName:         student.FirstName,
			LastName:          student.LastName,
			Grade:             student.Grade,
			Category:          enrollment.Category,
			Notes:             enrollment.Notes,
			FeePaid:           enrollment.FeePaid,
		}
		switch {
		case external[enrollment.StudentExternalID]:
			source := models.AbsenceSourceExternal
			entry.IsAbsent, entry.AbsenceSource = true, &source
		case manualAbsent[enrollment.StudentExternalID]:
			source := models.AbsenceSourceManual
			entry.IsAbsent, entry.AbsenceSource = true, &source
		}
		if entry.IsAbsent {
			roster.Absent++
		}
		roster.Entries = append(roster.Entries, entry)
	}
	sortRosterEntries(roster.Entries)
	return roster
}

// sortRosterEntries orders by surname then given name, case-insensitively.
func sortRosterEntries(entries []models.RosterEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		if a.StudentExternalID != b.StudentExternalID {
			return a.StudentExternalID < b.StudentExternalID
		}
		return a.Provenance < b.Provenance
	})
}

func studentIDs(enrollments []models.Enrollment) []int64 {
	seen := make(map[int64]struct{}, len(enrollments))
	ids := make([]int64, 0, len(enrollments))
	for _, enrollment := range enrollments {
		if _, ok := seen[enrollment.StudentExternalID]; ok {
			continue
		}
		seen[enrollment.StudentExternalID] = struct{}{}
		ids = append(ids, enrollment.StudentExternalID)
	}
	return ids
}

