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

const classOfferingColumns = "id, external_id, name, instructor, meeting_day, start_time, end_time, semester, school_year, min_grade, max_grade, active, last_synced_at, created_at, updated_at"

// ClassOfferingRepository manages persistence for class offerings.
type ClassOfferingRepository struct {
	db *sqlx.DB
}

// NewClassOfferingRepository constructs a new class offering repository.
func NewClassOfferingRepository(db *sqlx.DB) *ClassOfferingRepository {
	return &ClassOfferingRepository{db: db}
}

// ListAll loads every class offering, active or not.
func (r *ClassOfferingRepository) ListAll(ctx context.Context) ([]models.ClassOffering, error) {
	query := "SELECT " + classOfferingColumns + " FROM class_offerings"
	var classes []models.ClassOffering
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list all class offerings: %w", err)
	}
	return classes, nil
}

// Insert persists a new class offering.
func (r *ClassOfferingRepository) Insert(ctx context.Context, class *models.ClassOffering) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = class.CreatedAt

	const query = `INSERT INTO class_offerings (id, external_id, name, instructor, meeting_day, start_time, end_time, semester, school_year, min_grade, max_grade, active, last_synced_at, created_at, updated_at) VALUES (:id, :external_id, :name, :instructor, :meeting_day, :start_time, :end_time, :semester, :school_year, :min_grade, :max_grade, :active, :last_synced_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("insert class offering: %w", err)
	}
	return nil
}

// UpdateFromFeed rewrites the feed-owned fields in place and reactivates the row. updated_at
// only moves when one of those fields actually changed; last_synced_at always moves.
func (r *ClassOfferingRepository) UpdateFromFeed(ctx context.Context, class *models.ClassOffering) error {
	const query = `UPDATE class_offerings SET
		name = $2, instructor = $3, meeting_day = $4, start_time = $5, end_time = $6,
		semester = $7, school_year = $8, min_grade = $9, max_grade = $10,
		active = TRUE, last_synced_at = $11,
		updated_at = CASE WHEN name IS DISTINCT FROM $2 OR instructor IS DISTINCT FROM $3
			OR meeting_day IS DISTINCT FROM $4 OR start_time IS DISTINCT FROM $5 OR end_time IS DISTINCT FROM $6
			OR semester IS DISTINCT FROM $7 OR school_year IS DISTINCT FROM $8
			OR min_grade IS DISTINCT FROM $9 OR max_grade IS DISTINCT FROM $10 OR NOT active
			THEN $11 ELSE updated_at END
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		class.ID, class.Name, class.Instructor, class.MeetingDay, class.StartTime, class.EndTime,
		class.Semester, class.SchoolYear, class.MinGrade, class.MaxGrade, class.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("update class offering: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update class offering rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	class.Active = true
	return nil
}

// Deactivate flips an active class offering to inactive. Inactive rows are left untouched.
func (r *ClassOfferingRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE class_offerings SET active = FALSE, updated_at = $2 WHERE id = $1 AND active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("deactivate class offering: %w", err)
	}
	return nil
}

// List returns class offerings with their active enrollment counts.
func (r *ClassOfferingRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassOfferingDetail, int, error) {
	base := "FROM class_offerings c WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Day != "" {
		conditions = append(conditions, fmt.Sprintf("c.meeting_day = $%d", len(args)+1))
		args = append(args, filter.Day)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(COALESCE(c.instructor, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":        "c.name",
		"meeting_day": "c.meeting_day",
		"start_time":  "c.start_time",
		"created_at":  "c.created_at",
		"updated_at":  "c.updated_at",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s, %s AS enrollment_count %s ORDER BY %s %s LIMIT %d OFFSET %d",
		prefixColumns("c", classOfferingColumns), enrollmentCountExpr, base, sortBy, order, size, offset)
	var classes []models.ClassOfferingDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class offerings: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count class offerings: %w", err)
	}
	return classes, total, nil
}

// FindByID returns one class offering with its active enrollment count.
func (r *ClassOfferingRepository) FindByID(ctx context.Context, id string) (*models.ClassOfferingDetail, error) {
	query := fmt.Sprintf("SELECT %s, %s AS enrollment_count FROM class_offerings c WHERE c.id = $1",
		prefixColumns("c", classOfferingColumns), enrollmentCountExpr)
	var class models.ClassOfferingDetail
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if missingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find class offering: %w", err)
	}
	return &class, nil
}

// ListActiveByDay returns active classes that meet on the given day, ordered by start time.
func (r *ClassOfferingRepository) ListActiveByDay(ctx context.Context, day models.MeetingDay) ([]models.ClassOffering, error) {
	query := "SELECT " + classOfferingColumns + " FROM class_offerings WHERE active = TRUE AND meeting_day = $1 ORDER BY start_time NULLS LAST, name"
	var classes []models.ClassOffering
	if err := r.db.SelectContext(ctx, &classes, query, day); err != nil {
		return nil, fmt.Errorf("list classes by day: %w", err)
	}
	return classes, nil
}

const enrollmentCountExpr = "(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'active')"

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
