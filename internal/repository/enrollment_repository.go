package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

const enrollmentColumns = "id, class_id, student_external_id, status, provenance, category, fee_paid, start_date, end_date, notes, removal_reason, created_by, updated_by, created_at, updated_at"

// EnrollmentRepository manages persistence for enrollments of both provenances.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// UpsertExternal merges a feed enrollment on the active external (class, student) key. The
// update branch only fires when a merged field differs, so an unchanged row keeps its
// updated_at and no row is returned.
func (r *EnrollmentRepository) UpsertExternal(ctx context.Context, in models.ExternalEnrollment, at time.Time) (string, models.UpsertOutcome, error) {
	const query = `INSERT INTO enrollments (id, class_id, student_external_id, status, provenance, category, fee_paid, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $10)
		ON CONFLICT (class_id, student_external_id) WHERE provenance = 'external' AND status = 'active'
		DO UPDATE SET category = EXCLUDED.category, fee_paid = EXCLUDED.fee_paid, notes = EXCLUDED.notes,
			updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
		WHERE (enrollments.category, enrollments.fee_paid, enrollments.notes)
			IS DISTINCT FROM (EXCLUDED.category, EXCLUDED.fee_paid, EXCLUDED.notes)
		RETURNING id, (xmax = 0) AS inserted`

	var row struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}
	err := r.db.GetContext(ctx, &row, query,
		uuid.NewString(), in.ClassID, in.StudentExternalID,
		models.EnrollmentStatusActive, models.ProvenanceExternal,
		in.Category, in.FeePaid, in.Notes, in.Actor, at,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", models.UpsertUnchanged, nil
		}
		return "", "", fmt.Errorf("upsert external enrollment: %w", err)
	}
	if row.Inserted {
		return row.ID, models.UpsertInserted, nil
	}
	return row.ID, models.UpsertUpdated, nil
}

// ListActiveExternal returns every active feed-owned enrollment.
func (r *EnrollmentRepository) ListActiveExternal(ctx context.Context) ([]models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE provenance = $1 AND status = $2"
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, models.ProvenanceExternal, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active external enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveByClass returns active enrollments of both provenances for a class.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE class_id = $1 AND status = $2"
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// MarkRemoved soft-deletes an active enrollment. It returns sql.ErrNoRows when the row is
// missing or no longer active.
func (r *EnrollmentRepository) MarkRemoved(ctx context.Context, id, reason, actor string, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, removal_reason = $3, updated_by = $4, updated_at = $5 WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusRemoved, reason, actor, at, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("remove enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Create persists a manual enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	if enrollment.UpdatedBy == "" {
		enrollment.UpdatedBy = enrollment.CreatedBy
	}

	const query = `INSERT INTO enrollments (id, class_id, student_external_id, status, provenance, category, fee_paid, start_date, end_date, notes, removal_reason, created_by, updated_by, created_at, updated_at) VALUES (:id, :class_id, :student_external_id, :status, :provenance, :category, :fee_paid, :start_date, :end_date, :notes, :removal_reason, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateManual writes the editable fields of an active manual enrollment.
func (r *EnrollmentRepository) UpdateManual(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET category = :category, fee_paid = :fee_paid, start_date = :start_date, end_date = :end_date, notes = :notes, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id AND provenance = 'manual' AND status = 'active'`
	res, err := r.db.NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns an enrollment by identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if missingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// List returns enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentExternalID != nil {
		conditions = append(conditions, fmt.Sprintf("student_external_id = $%d", len(args)+1))
		args = append(args, *filter.StudentExternalID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Provenance != "" {
		conditions = append(conditions, fmt.Sprintf("provenance = $%d", len(args)+1))
		args = append(args, filter.Provenance)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", enrollmentColumns, base, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}
