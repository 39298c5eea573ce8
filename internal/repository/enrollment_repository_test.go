package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

var enrollmentCols = []string{"id", "class_id", "student_external_id", "status", "provenance", "category", "fee_paid", "start_date", "end_date", "notes", "removal_reason", "created_by", "updated_by", "created_at", "updated_at"}

func TestEnrollmentRepositoryUpsertExternalOutcomes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2024, 9, 9, 5, 0, 0, 0, time.UTC)
	cat := models.CategoryRegistered
	in := models.ExternalEnrollment{ClassID: "cls-1", StudentExternalID: 1001, Category: &cat, FeePaid: true, Notes: "", Actor: models.SystemActor}

	upsert := regexp.QuoteMeta("ON CONFLICT (class_id, student_external_id) WHERE provenance = 'external' AND status = 'active'")

	mock.ExpectQuery(upsert).
		WithArgs(sqlmock.AnyArg(), "cls-1", int64(1001), models.EnrollmentStatusActive, models.ProvenanceExternal, sqlmock.AnyArg(), true, "", models.SystemActor, at).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("enr-1", true))
	mock.ExpectQuery(upsert).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("enr-1", false))
	mock.ExpectQuery(upsert).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}))

	id, outcome, err := repo.UpsertExternal(context.Background(), in, at)
	require.NoError(t, err)
	assert.Equal(t, "enr-1", id)
	assert.Equal(t, models.UpsertInserted, outcome)

	_, outcome, err = repo.UpsertExternal(context.Background(), in, at)
	require.NoError(t, err)
	assert.Equal(t, models.UpsertUpdated, outcome)

	_, outcome, err = repo.UpsertExternal(context.Background(), in, at)
	require.NoError(t, err)
	assert.Equal(t, models.UpsertUnchanged, outcome)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveExternal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("enr-1", "cls-1", int64(1001), "active", "external", "registered", true, nil, nil, "", nil, "system", "system", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE provenance = $1 AND status = $2")).
		WithArgs(models.ProvenanceExternal, models.EnrollmentStatusActive).
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveExternal(context.Background())
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.NotNil(t, enrollments[0].Category)
	assert.Equal(t, models.CategoryRegistered, *enrollments[0].Category)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkRemoved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Now().UTC()
	query := regexp.QuoteMeta("UPDATE enrollments SET status = $2, removal_reason = $3, updated_by = $4, updated_at = $5 WHERE id = $1 AND status = $6")
	mock.ExpectExec(query).
		WithArgs("enr-1", models.EnrollmentStatusRemoved, models.RemovalReasonSourceMissing, models.SystemActor, at, models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("enr-2", models.EnrollmentStatusRemoved, models.RemovalReasonStaff, "staff@example.org", at, models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRemoved(context.Background(), "enr-1", models.RemovalReasonSourceMissing, models.SystemActor, at))
	err := repo.MarkRemoved(context.Background(), "enr-2", models.RemovalReasonStaff, "staff@example.org", at)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateManual(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{
		ClassID:           "cls-1",
		StudentExternalID: 1001,
		Status:            models.EnrollmentStatusActive,
		Provenance:        models.ProvenanceManual,
		CreatedBy:         "staff@example.org",
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, "staff@example.org", enrollment.UpdatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateManualRejectsOtherRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND provenance = 'manual' AND status = 'active'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateManual(context.Background(), &models.Enrollment{ID: "enr-ext"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	student := int64(1001)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+enrollmentColumns+" FROM enrollments WHERE 1=1 AND class_id = $1 AND student_external_id = $2 AND provenance = $3 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("cls-1", student, models.ProvenanceManual).
		WillReturnRows(sqlmock.NewRows(enrollmentCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE 1=1 AND class_id = $1 AND student_external_id = $2 AND provenance = $3")).
		WithArgs("cls-1", student, models.ProvenanceManual).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), models.EnrollmentFilter{ClassID: "cls-1", StudentExternalID: &student, Provenance: models.ProvenanceManual})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByIDMalformedID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.Equal(t, sql.ErrNoRows, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
