package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	created     *models.Enrollment
	updated     *models.Enrollment
	removed     map[string]string
	createErr   error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateManual(ctx context.Context, enrollment *models.Enrollment) error {
	current, ok := m.enrollments[enrollment.ID]
	if !ok || current.Provenance != models.ProvenanceManual || current.Status != models.EnrollmentStatusActive {
		return sql.ErrNoRows
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.updated = enrollment
	return nil
}

func (m *mockEnrollmentRepo) MarkRemoved(ctx context.Context, id, reason, actor string, at time.Time) error {
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusRemoved
	e.RemovalReason = &reason
	m.enrollments[id] = e
	if m.removed == nil {
		m.removed = map[string]string{}
	}
	m.removed[id] = reason
	return nil
}

const testClassID = "4b0c3f7e-8a55-4e1c-9d0f-0b6b8f6f2a11"

func newEnrollmentServiceFixture() (*EnrollmentService, *mockEnrollmentRepo, *auditSpy, *invalidatorSpy) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"manual-1":   {ID: "manual-1", ClassID: testClassID, StudentExternalID: 10, Status: models.EnrollmentStatusActive, Provenance: models.ProvenanceManual, Notes: "trial week"},
		"external-1": {ID: "external-1", ClassID: testClassID, StudentExternalID: 10, Status: models.EnrollmentStatusActive, Provenance: models.ProvenanceExternal},
		"removed-1":  {ID: "removed-1", ClassID: testClassID, StudentExternalID: 11, Status: models.EnrollmentStatusRemoved, Provenance: models.ProvenanceManual},
	}}
	classes := &rosterClassRepoStub{classes: map[string]models.ClassOffering{
		testClassID: {ID: testClassID, Name: "Chess", Active: true},
		"inactive":  {ID: "inactive", Name: "Pottery"},
	}}
	audit := &auditSpy{}
	rosters := &invalidatorSpy{}
	svc := NewEnrollmentService(repo, classes, audit, rosters, validator.New(), zap.NewNop())
	return svc, repo, audit, rosters
}

func assertAppError(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, want.Code, appErr.Code)
}

func TestEnrollmentServiceCreateManual(t *testing.T) {
	svc, repo, audit, rosters := newEnrollmentServiceFixture()
	category := "trial"
	start := "2024-09-09"

	enrollment, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{
		ClassID:           testClassID,
		StudentExternalID: 10,
		Category:          &category,
		StartDate:         &start,
		Notes:             "  second session  ",
	}, "staff@example.org")
	require.NoError(t, err)

	require.NotNil(t, repo.created)
	assert.Equal(t, models.ProvenanceManual, enrollment.Provenance)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, models.CategoryTrial, *enrollment.Category)
	assert.Equal(t, "second session", enrollment.Notes)
	assert.Equal(t, "staff@example.org", enrollment.CreatedBy)
	require.NotNil(t, enrollment.StartDate)
	assert.Equal(t, time.September, enrollment.StartDate.Month())

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionInsert, audit.entries[0].Action)
	assert.Equal(t, models.AuditTableEnrollments, audit.entries[0].TableName)
	assert.Equal(t, 1, rosters.calls)
	assert.Len(t, repo.enrollments, 4, "the existing feed row is untouched")
}

func TestEnrollmentServiceCreateValidation(t *testing.T) {
	svc, _, audit, _ := newEnrollmentServiceFixture()
	bad := "weekly"

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{ClassID: testClassID, StudentExternalID: 10, Category: &bad}, "staff")
	assertAppError(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "category must be one of")

	_, err = svc.Create(context.Background(), models.CreateEnrollmentRequest{ClassID: "not-a-uuid", StudentExternalID: 10}, "staff")
	assertAppError(t, err, appErrors.ErrValidation)

	start, end := "2024-09-10", "2024-09-01"
	_, err = svc.Create(context.Background(), models.CreateEnrollmentRequest{ClassID: testClassID, StudentExternalID: 10, StartDate: &start, EndDate: &end}, "staff")
	assertAppError(t, err, appErrors.ErrValidation)
	assert.Empty(t, audit.entries)
}

func TestEnrollmentServiceCreateRequiresActiveClass(t *testing.T) {
	svc, _, _, _ := newEnrollmentServiceFixture()

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{ClassID: "9c3a8a70-0d57-4f65-a1a6-6c0f4a3f5d00", StudentExternalID: 10}, "staff")
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentServiceCreateStoreFailure(t *testing.T) {
	svc, repo, audit, rosters := newEnrollmentServiceFixture()
	repo.createErr = errors.New("insert failed")

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{ClassID: testClassID, StudentExternalID: 10}, "staff")
	assertAppError(t, err, appErrors.ErrInternal)
	assert.Empty(t, audit.entries)
	assert.Zero(t, rosters.calls)
}

func TestEnrollmentServiceUpdateManual(t *testing.T) {
	svc, repo, audit, rosters := newEnrollmentServiceFixture()
	paid := true
	notes := "paid at front desk"

	enrollment, err := svc.Update(context.Background(), "manual-1", models.UpdateEnrollmentRequest{FeePaid: &paid, Notes: &notes}, "staff@example.org")
	require.NoError(t, err)
	assert.True(t, enrollment.FeePaid)
	assert.Equal(t, notes, enrollment.Notes)
	assert.Equal(t, "staff@example.org", repo.updated.UpdatedBy)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUpdate, audit.entries[0].Action)
	assert.Equal(t, "manual-1", audit.entries[0].RecordID)
	assert.Equal(t, 1, rosters.calls)
}

func TestEnrollmentServiceUpdateRejectsFeedRows(t *testing.T) {
	svc, _, audit, _ := newEnrollmentServiceFixture()
	paid := true

	_, err := svc.Update(context.Background(), "external-1", models.UpdateEnrollmentRequest{FeePaid: &paid}, "staff")
	assertAppError(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Update(context.Background(), "removed-1", models.UpdateEnrollmentRequest{FeePaid: &paid}, "staff")
	assertAppError(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Update(context.Background(), "missing", models.UpdateEnrollmentRequest{FeePaid: &paid}, "staff")
	assertAppError(t, err, appErrors.ErrNotFound)
	assert.Empty(t, audit.entries)
}

func TestEnrollmentServiceRemoveEitherProvenance(t *testing.T) {
	svc, repo, audit, rosters := newEnrollmentServiceFixture()

	removed, err := svc.Remove(context.Background(), "external-1", models.RemoveEnrollmentRequest{}, "staff")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRemoved, removed.Status)
	assert.Equal(t, models.RemovalReasonStaff, repo.removed["external-1"])
	assert.Equal(t, models.ProvenanceExternal, removed.Provenance)

	_, err = svc.Remove(context.Background(), "manual-1", models.RemoveEnrollmentRequest{Reason: "moved away"}, "staff")
	require.NoError(t, err)
	assert.Equal(t, "moved away", repo.removed["manual-1"])

	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditActionDelete, audit.entries[0].Action)
	assert.Equal(t, 2, rosters.calls)
	assert.Len(t, repo.enrollments, 3, "removal keeps the row")
}

func TestEnrollmentServiceRemoveInactive(t *testing.T) {
	svc, _, _, _ := newEnrollmentServiceFixture()

	_, err := svc.Remove(context.Background(), "removed-1", models.RemoveEnrollmentRequest{}, "staff")
	assertAppError(t, err, appErrors.ErrPreconditionFailed)
}

func TestEnrollmentServiceList(t *testing.T) {
	svc, _, _, _ := newEnrollmentServiceFixture()

	enrollments, pagination, err := svc.List(context.Background(), models.EnrollmentFilter{ClassID: testClassID})
	require.NoError(t, err)
	assert.Len(t, enrollments, 3)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
	assert.Equal(t, 3, pagination.TotalCount)
}
