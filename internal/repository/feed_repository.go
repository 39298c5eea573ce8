package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// FeedRepository reads the class and enrollment snapshots from the warehouse.
type FeedRepository struct {
	db              *sqlx.DB
	classTable      string
	enrollmentTable string
}

// NewFeedRepository validates the configured table names and quotes them for use in queries.
func NewFeedRepository(db *sqlx.DB, classTable, enrollmentTable string) (*FeedRepository, error) {
	classIdent, err := quoteTable(classTable)
	if err != nil {
		return nil, err
	}
	enrollmentIdent, err := quoteTable(enrollmentTable)
	if err != nil {
		return nil, err
	}
	return &FeedRepository{db: db, classTable: classIdent, enrollmentTable: enrollmentIdent}, nil
}

// ListClasses returns the class snapshot.
func (r *FeedRepository) ListClasses(ctx context.Context) ([]models.FeedClassRow, error) {
	query := `SELECT external_class_id, COALESCE(program_name, '') AS program_name, COALESCE(meeting_times, '') AS meeting_times, teacher, COALESCE(school_year, '') AS school_year, min_grade, max_grade FROM ` + r.classTable + ` ORDER BY external_class_id`
	var rows []models.FeedClassRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load feed classes: %w", err)
	}
	return rows, nil
}

// ListEnrollments returns the enrollment snapshot.
func (r *FeedRepository) ListEnrollments(ctx context.Context) ([]models.FeedEnrollmentRow, error) {
	query := `SELECT external_class_id, student_external_id, enrollment_status, COALESCE(fee_paid, FALSE) AS fee_paid, notes FROM ` + r.enrollmentTable + ` ORDER BY external_class_id, student_external_id`
	var rows []models.FeedEnrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load feed enrollments: %w", err)
	}
	return rows, nil
}

func quoteTable(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid warehouse table name %q", name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
