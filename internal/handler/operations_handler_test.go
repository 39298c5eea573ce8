package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/afterschool-roster-api/internal/middleware"
	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type absenceServiceMock struct {
	created     bool
	err         error
	lastStudent int64
	lastDate    string
}

func (m *absenceServiceMock) MarkAbsent(ctx context.Context, classID string, req models.MarkAbsenceRequest, actor string) (*models.ManualAbsence, bool, error) {
	m.lastStudent, m.lastDate = req.StudentExternalID, req.Date
	if m.err != nil {
		return nil, false, m.err
	}
	return &models.ManualAbsence{ID: "abs-1", ClassID: classID, StudentExternalID: req.StudentExternalID, CreatedBy: actor}, m.created, nil
}

func (m *absenceServiceMock) ClearAbsence(ctx context.Context, classID string, studentID int64, rawDate, actor string) error {
	m.lastStudent, m.lastDate = studentID, rawDate
	return m.err
}

func TestAttendanceHandlerMarkAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &absenceServiceMock{created: true}
	handler := NewAttendanceHandler(svc)

	c, w := newGinContext(http.MethodPut, "/classes/class-1/absences", []byte(`{"student_external_id":7,"date":"2024-09-09"}`))
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.MarkAbsent(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(7), svc.lastStudent)

	svc.created = false
	c, w = newGinContext(http.MethodPut, "/classes/class-1/absences", []byte(`{"student_external_id":7,"date":"2024-09-09"}`))
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	handler.MarkAbsent(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAttendanceHandlerClearAbsence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &absenceServiceMock{}
	handler := NewAttendanceHandler(svc)

	c, w := newGinContext(http.MethodDelete, "/classes/class-1/absences/7?date=2024-09-09", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}, {Key: "studentId", Value: "7"}}
	handler.ClearAbsence(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2024-09-09", svc.lastDate)

	c, w = newGinContext(http.MethodDelete, "/classes/class-1/absences/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}, {Key: "studentId", Value: "x"}}
	handler.ClearAbsence(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type syncRunnerStub struct {
	summary *models.SyncSummary
	err     error
	actor   string
}

func (s *syncRunnerStub) Run(ctx context.Context, actor string) (*models.SyncSummary, error) {
	s.actor = actor
	return s.summary, s.err
}

func TestSyncHandlerTrigger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &syncRunnerStub{summary: &models.SyncSummary{PassID: "pass-1", Classes: models.ClassCounts{Inserted: 3}}}
	handler := NewSyncHandler(runner)

	c, w := newGinContext(http.MethodPost, "/sync", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Email: "admin@example.org", Role: models.RoleAdmin})
	handler.Trigger(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@example.org", runner.actor)
	var summary models.SyncSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &summary))
	assert.Equal(t, 3, summary.Classes.Inserted)
}

func TestSyncHandlerReportsAbortedPassWithSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &syncRunnerStub{
		summary: &models.SyncSummary{PassID: "pass-2", Fatal: "load feed classes: connection refused"},
		err:     appErrors.Wrap(errors.New("connection refused"), appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, "roster sync aborted"),
	}
	handler := NewSyncHandler(runner)

	c, w := newGinContext(http.MethodPost, "/sync", nil)
	handler.Trigger(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrSyncFailed.Code, env.Error.Code)
	assert.Contains(t, string(env.Data), "pass-2")
}

type digestSenderStub struct {
	result *models.DigestResult
	err    error
	date   time.Time
}

func (d *digestSenderStub) Send(ctx context.Context, date time.Time) (*models.DigestResult, error) {
	d.date = date
	return d.result, d.err
}

func TestDigestHandlerSend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	digest := &digestSenderStub{result: &models.DigestResult{Date: "2024-09-10", Sent: true}}
	handler := NewDigestHandler(digest, &rosterServiceMock{})

	c, w := newGinContext(http.MethodPost, "/digest/send?date=2024-09-10", nil)
	handler.Send(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, digest.date.Day())

	digest.err = appErrors.Clone(appErrors.ErrMailFailed, "digest delivery failed")
	c, w = newGinContext(http.MethodPost, "/digest/send", nil)
	handler.Send(c)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

type auditListerStub struct {
	filter models.AuditFilter
}

func (a *auditListerStub) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	a.filter = filter
	return []models.AuditEntry{{TableName: models.AuditTableEnrollments, Action: models.AuditActionDelete}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func TestAuditHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lister := &auditListerStub{}
	handler := NewAuditHandler(lister)

	c, w := newGinContext(http.MethodGet, "/audit?table=enrollments&action=DELETE", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AuditTableEnrollments, lister.filter.TableName)
	assert.Equal(t, models.AuditActionDelete, lister.filter.Action)
	assert.Equal(t, 50, lister.filter.PageSize)
}

type classServiceMock struct {
	filter models.ClassFilter
	err    error
}

func (m *classServiceMock) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassOfferingDetail, *models.Pagination, error) {
	m.filter = filter
	return []models.ClassOfferingDetail{}, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *classServiceMock) Get(ctx context.Context, id string) (*models.ClassOfferingDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.ClassOfferingDetail{ClassOffering: models.ClassOffering{ID: id}, EnrollmentCount: 12}, nil
}

func TestClassHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &classServiceMock{}
	handler := NewClassHandler(svc)

	c, w := newGinContext(http.MethodGet, "/classes?active=true&day=Monday&search=chess", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.Active)
	assert.True(t, *svc.filter.Active)
	assert.Equal(t, models.MeetingDay("monday"), svc.filter.Day)
	assert.Equal(t, "chess", svc.filter.Search)

	c, w = newGinContext(http.MethodGet, "/classes?active=maybe", nil)
	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClassHandler(&classServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "class not found")})

	c, w := newGinContext(http.MethodGet, "/classes/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	healthy := NewMetricsHandler(metrics, map[string]Pinger{
		"store": PingFunc(func(context.Context) error { return nil }),
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	healthy.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	degraded := NewMetricsHandler(metrics, map[string]Pinger{
		"store":     PingFunc(func(context.Context) error { return nil }),
		"warehouse": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	degraded.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refused")
}

func TestMetricsHandlerSummaryIncludesLastSync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordSyncPass(models.SyncSummary{PassID: "pass-9"})
	handler := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics/summary", nil)
	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pass-9")
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler()

	c, w := newGinContext(http.MethodGet, "/me", nil)
	handler.Me(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/me", nil)
	c.Set(middleware.ContextUserKey, staffClaims())
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "staff@example.org")
}
