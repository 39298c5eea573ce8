package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/afterschool-roster-api/internal/middleware"
	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type enrollmentServiceMock struct {
	enrollment *models.Enrollment
	err        error
	lastFilter models.EnrollmentFilter
	lastCreate models.CreateEnrollmentRequest
	lastUpdate models.UpdateEnrollmentRequest
	lastRemove models.RemoveEnrollmentRequest
	lastActor  string
	lastID     string
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Enrollment{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, m.err
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	m.lastID = id
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) Create(ctx context.Context, req models.CreateEnrollmentRequest, actor string) (*models.Enrollment, error) {
	m.lastCreate, m.lastActor = req, actor
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) Update(ctx context.Context, id string, req models.UpdateEnrollmentRequest, actor string) (*models.Enrollment, error) {
	m.lastID, m.lastUpdate, m.lastActor = id, req, actor
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) Remove(ctx context.Context, id string, req models.RemoveEnrollmentRequest, actor string) (*models.Enrollment, error) {
	m.lastID, m.lastRemove, m.lastActor = id, req, actor
	return m.enrollment, m.err
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{Email: "staff@example.org", Role: models.RoleStaff}
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{enrollment: &models.Enrollment{ID: "enr-1", Provenance: models.ProvenanceManual}}
	handler := NewEnrollmentHandler(svc)

	payload, _ := json.Marshal(models.CreateEnrollmentRequest{ClassID: "class-1", StudentExternalID: 42, Notes: "trial"})
	c, w := newGinContext(http.MethodPost, "/enrollments", payload)
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(42), svc.lastCreate.StudentExternalID)
	assert.Equal(t, "staff@example.org", svc.lastActor)
}

func TestEnrollmentHandlerCreateInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/enrollments", []byte("{"))
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastActor)
}

func TestEnrollmentHandlerUpdateFeedRow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is managed by the external feed")}
	handler := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPatch, "/enrollments/enr-1", []byte(`{"fee_paid":true}`))
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Update(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	require.NotNil(t, svc.lastUpdate.FeePaid)
	assert.True(t, *svc.lastUpdate.FeePaid)
}

func TestEnrollmentHandlerRemoveWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{enrollment: &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusRemoved}}
	handler := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodDelete, "/enrollments/enr-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Remove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enr-1", svc.lastID)
	assert.Empty(t, svc.lastRemove.Reason)
}

func TestEnrollmentHandlerRemoveWithReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{enrollment: &models.Enrollment{ID: "enr-1"}}
	handler := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodDelete, "/enrollments/enr-1", []byte(`{"reason":"moved away"}`))
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Remove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "moved away", svc.lastRemove.Reason)
}

func TestEnrollmentHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/enrollments?class_id=class-1&student_id=42&provenance=MANUAL&page=2&limit=10", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "class-1", svc.lastFilter.ClassID)
	require.NotNil(t, svc.lastFilter.StudentExternalID)
	assert.Equal(t, int64(42), *svc.lastFilter.StudentExternalID)
	assert.Equal(t, models.ProvenanceManual, svc.lastFilter.Provenance)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 10, svc.lastFilter.PageSize)

	c, w = newGinContext(http.MethodGet, "/enrollments?student_id=abc", nil)
	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
