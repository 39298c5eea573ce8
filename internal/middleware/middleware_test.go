package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type stubAuthenticator struct {
	claims map[string]*models.JWTClaims
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrNotAllowListed
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := stubAuthenticator{claims: map[string]*models.JWTClaims{
		"admin-token": {Email: "admin@example.org", Role: models.RoleAdmin},
		"staff-token": {Email: "staff@example.org", Role: models.RoleStaff},
	}}
	router := gin.New()
	group := router.Group("/", JWT(auth, nil))
	if len(roles) > 0 {
		group.Use(RequireRoles(roles...))
	}
	group.GET("/", func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		c.String(http.StatusOK, value.(*models.JWTClaims).Email)
	})
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTMiddleware(t *testing.T) {
	router := newProtectedRouter()

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"not allow-listed", "Bearer stranger-token", http.StatusForbidden},
		{"valid", "Bearer staff-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := serve(router, tc.header)
			if recorder.Code != tc.status {
				t.Fatalf("unexpected status: %d", recorder.Code)
			}
		})
	}

	if got := serve(router, "bearer staff-token").Body.String(); got != "staff@example.org" {
		t.Fatalf("unexpected caller: %s", got)
	}
}

func TestRequireRoles(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin)

	if code := serve(router, "Bearer staff-token").Code; code != http.StatusForbidden {
		t.Fatalf("staff should be forbidden, got %d", code)
	}
	if code := serve(router, "Bearer admin-token").Code; code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", code)
	}
}

func TestMetricsMiddlewareRecordsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/classes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/classes/abc", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if snapshot := metrics.Snapshot(); snapshot.RequestsTotal != 1 {
		t.Fatalf("expected one recorded request, got %d", snapshot.RequestsTotal)
	}
}

func TestMetricsMiddlewareSkipsProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	if snapshot := metrics.Snapshot(); snapshot.RequestsTotal != 1 {
		t.Fatalf("expected only the unmatched request to be recorded, got %d", snapshot.RequestsTotal)
	}
}
