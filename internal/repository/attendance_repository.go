package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

// AttendanceRepository reads external attendance and manages manual absences.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// AbsentStudents returns the subset of studentIDs with an absent status code on date.
func (r *AttendanceRepository) AbsentStudents(ctx context.Context, date time.Time, codes []int, studentIDs []int64) ([]int64, error) {
	if len(codes) == 0 || len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT student_external_id FROM attendance WHERE date = $1 AND status_code = ANY($2) AND student_external_id = ANY($3)`
	codes64 := make([]int64, len(codes))
	for i, c := range codes {
		codes64[i] = int64(c)
	}
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, dateOnly(date), pq.Array(codes64), pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list absent students: %w", err)
	}
	return ids, nil
}

// ListManualAbsences returns staff-marked absences for a class on date.
func (r *AttendanceRepository) ListManualAbsences(ctx context.Context, classID string, date time.Time) ([]models.ManualAbsence, error) {
	const query = `SELECT id, class_id, student_external_id, date, created_by, created_at FROM manual_absences WHERE class_id = $1 AND date = $2`
	var absences []models.ManualAbsence
	if err := r.db.SelectContext(ctx, &absences, query, classID, dateOnly(date)); err != nil {
		return nil, fmt.Errorf("list manual absences: %w", err)
	}
	return absences, nil
}

// FindManualAbsence returns one manual absence or sql.ErrNoRows.
func (r *AttendanceRepository) FindManualAbsence(ctx context.Context, classID string, studentID int64, date time.Time) (*models.ManualAbsence, error) {
	const query = `SELECT id, class_id, student_external_id, date, created_by, created_at FROM manual_absences WHERE class_id = $1 AND student_external_id = $2 AND date = $3`
	var absence models.ManualAbsence
	if err := r.db.GetContext(ctx, &absence, query, classID, studentID, dateOnly(date)); err != nil {
		if missingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find manual absence: %w", err)
	}
	return &absence, nil
}

// CreateManualAbsence records a manual absence. Marking the same student twice is a no-op
// and reports created=false.
func (r *AttendanceRepository) CreateManualAbsence(ctx context.Context, absence *models.ManualAbsence) (bool, error) {
	if absence.ID == "" {
		absence.ID = uuid.NewString()
	}
	if absence.CreatedAt.IsZero() {
		absence.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO manual_absences (id, class_id, student_external_id, date, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (class_id, student_external_id, date) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, absence.ID, absence.ClassID, absence.StudentExternalID, dateOnly(absence.Date), absence.CreatedBy, absence.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create manual absence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create manual absence rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteManualAbsence removes a manual absence by id.
func (r *AttendanceRepository) DeleteManualAbsence(ctx context.Context, id string) error {
	const query = `DELETE FROM manual_absences WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete manual absence: %w", err)
	}
	return nil
}

func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
