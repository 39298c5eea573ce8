package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/afterschool-roster-api/api/swagger"
	"github.com/noah-isme/afterschool-roster-api/internal/handler"
	"github.com/noah-isme/afterschool-roster-api/internal/middleware"
	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	"github.com/noah-isme/afterschool-roster-api/pkg/config"
	"github.com/noah-isme/afterschool-roster-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/afterschool-roster-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/afterschool-roster-api/pkg/middleware/requestid"
)

type handlers struct {
	auth        *handler.AuthHandler
	classes     *handler.ClassHandler
	rosters     *handler.RosterHandler
	enrollments *handler.EnrollmentHandler
	attendance  *handler.AttendanceHandler
	sync        *handler.SyncHandler
	digest      *handler.DigestHandler
	audit       *handler.AuditHandler
	metrics     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth *service.AuthService, h handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth, logr))

	staff := api.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	{
		staff.GET("/me", h.auth.Me)
		staff.GET("/classes", h.classes.List)
		staff.GET("/classes/:id", h.classes.Get)
		staff.GET("/classes/:id/roster", h.rosters.ClassRoster)
		staff.GET("/classes/:id/roster/print", h.rosters.Print)
		staff.PUT("/classes/:id/absences", h.attendance.MarkAbsent)
		staff.DELETE("/classes/:id/absences/:studentId", h.attendance.ClearAbsence)
		staff.GET("/rosters/today", h.rosters.Today)

		staff.GET("/enrollments", h.enrollments.List)
		staff.GET("/enrollments/:id", h.enrollments.Get)
		staff.POST("/enrollments", h.enrollments.Create)
		staff.PATCH("/enrollments/:id", h.enrollments.Update)
		staff.DELETE("/enrollments/:id", h.enrollments.Remove)
	}

	admin := api.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/sync", h.sync.Trigger)
		admin.POST("/digest/send", h.digest.Send)
		admin.GET("/audit", h.audit.List)
		admin.GET("/metrics/summary", h.metrics.Summary)
	}

	return r
}
