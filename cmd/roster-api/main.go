package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/handler"
	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/repository"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	"github.com/noah-isme/afterschool-roster-api/pkg/cache"
	"github.com/noah-isme/afterschool-roster-api/pkg/config"
	"github.com/noah-isme/afterschool-roster-api/pkg/database"
	"github.com/noah-isme/afterschool-roster-api/pkg/jobs"
	"github.com/noah-isme/afterschool-roster-api/pkg/logger"
	"github.com/noah-isme/afterschool-roster-api/pkg/mail"
	"github.com/noah-isme/afterschool-roster-api/pkg/scheduler"
)

// @title Afterschool Roster API
// @version 1.0.0
// @description Synchronises after-school enrollments from the student information warehouse and serves daily rosters.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect entity store", zap.Error(err))
	}
	defer store.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(store.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	warehouse, err := database.NewPostgres(cfg.Warehouse.DatabaseConfig)
	if err != nil {
		logr.Fatal("failed to connect warehouse", zap.Error(err))
	}
	defer warehouse.Close()

	redisClient := connectRedis(cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	app, err := buildApp(cfg, logr, store, warehouse, redisClient)
	if err != nil {
		logr.Fatal("failed to wire services", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.queue.Start(ctx)
	if err := app.registerSchedules(); err != nil {
		logr.Fatal("failed to register schedules", zap.Error(err))
	}
	app.scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	app.queue.Stop()
}

// connectRedis returns nil when caching is off or Redis is unreachable; rosters are then read
// straight from the store.
func connectRedis(cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Roster.CacheEnabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("roster cache disabled: redis unavailable", zap.Error(err))
		return nil
	}
	return client
}

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	router    *gin.Engine
	queue     *jobs.Queue
	scheduler *scheduler.Scheduler
	sync      *service.SyncService
	digest    *service.DigestService
	rosters   *service.RosterService
}

func buildApp(cfg *config.Config, logr *zap.Logger, store, warehouse *sqlx.DB, redisClient *redis.Client) (*app, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	classRepo := repository.NewClassOfferingRepository(store)
	enrollmentRepo := repository.NewEnrollmentRepository(store)
	studentRepo := repository.NewStudentRepository(store)
	attendanceRepo := repository.NewAttendanceRepository(store)
	auditRepo := repository.NewAuditRepository(store)
	portalUsers := repository.NewPortalUserRepository(store)
	feed, err := repository.NewFeedRepository(warehouse, cfg.Warehouse.ClassTable, cfg.Warehouse.EnrollmentTable)
	if err != nil {
		return nil, err
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	rosterCache := service.NewRosterCache(cacheRepo, metrics, cfg.Roster.CacheTTL, logr, cfg.Roster.CacheEnabled)

	auditSvc := service.NewAuditService(auditRepo, logr)
	rosterSvc := service.NewRosterService(classRepo, enrollmentRepo, studentRepo, attendanceRepo, rosterCache, service.RosterServiceConfig{
		AbsentCodes: cfg.Attendance.AbsentCodes,
		Location:    cfg.Location(),
	}, logr)
	syncSvc := service.NewSyncService(feed, classRepo, enrollmentRepo, auditSvc, rosterSvc, metrics, service.SyncServiceConfig{
		AllowEmptyFeed: cfg.Sync.AllowEmptyFeed,
		SemesterLabel:  cfg.Sync.SemesterLabel,
	}, logr)
	classSvc := service.NewClassService(classRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, auditSvc, rosterSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classRepo, rosterSvc, auditSvc, rosterSvc, validate, logr)
	exportSvc := service.NewExportService(rosterSvc, logr)
	authSvc := service.NewAuthService(portalUsers, logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	sender, err := mail.NewSender(cfg.Mail, logr)
	if err != nil {
		return nil, err
	}
	digestSvc := service.NewDigestService(rosterSvc, portalUsers, sender, metrics, service.DigestServiceConfig{
		Recipients: cfg.Digest.Recipients,
		Subject:    cfg.Digest.Subject,
	}, logr)

	deps := map[string]handler.Pinger{"store": store, "warehouse": warehouse}
	if redisClient != nil {
		deps["cache"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	a := &app{
		cfg:       cfg,
		logger:    logr,
		scheduler: scheduler.New(cfg.Location(), logr),
		sync:      syncSvc,
		digest:    digestSvc,
		rosters:   rosterSvc,
	}
	a.queue = jobs.NewQueue("roster", a.handleJob, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Sync.Retries,
		RetryDelay: 30 * time.Second,
		NoRetry:    []string{jobs.TypeRosterDigest},
		Coalesce:   []string{jobs.TypeRosterSync, jobs.TypeRosterDigest},
		Logger:     logr,
	})
	a.router = newRouter(cfg, logr, metrics, authSvc, handlers{
		auth:        handler.NewAuthHandler(),
		classes:     handler.NewClassHandler(classSvc),
		rosters:     handler.NewRosterHandler(rosterSvc, exportSvc),
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		attendance:  handler.NewAttendanceHandler(attendanceSvc),
		sync:        handler.NewSyncHandler(syncSvc),
		digest:      handler.NewDigestHandler(digestSvc, rosterSvc),
		audit:       handler.NewAuditHandler(auditSvc),
		metrics:     handler.NewMetricsHandler(metrics, deps),
	})
	return a, nil
}

func (a *app) registerSchedules() error {
	if a.cfg.Sync.Enabled {
		if err := a.scheduler.Register(jobs.TypeRosterSync, a.cfg.Sync.Cron, a.enqueue(jobs.TypeRosterSync)); err != nil {
			return err
		}
	}
	if a.cfg.Digest.Enabled {
		if err := a.scheduler.Register(jobs.TypeRosterDigest, a.cfg.Digest.Cron, a.enqueue(jobs.TypeRosterDigest)); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) enqueue(jobType string) func() {
	return func() {
		job := jobs.Job{ID: uuid.NewString(), Type: jobType, Enqueued: time.Now()}
		if jobType == jobs.TypeRosterDigest {
			job.Payload = a.rosters.Today()
		}
		if err := a.queue.Enqueue(job); err != nil {
			if errors.Is(err, jobs.ErrPending) {
				a.logger.Info("scheduled job skipped, previous run still pending", zap.String("job_type", jobType))
				return
			}
			a.logger.Warn("scheduled job dropped", zap.String("job_type", jobType), zap.Error(err))
		}
	}
}

func (a *app) handleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobs.TypeRosterSync:
		if a.cfg.Sync.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
			defer cancel()
		}
		_, err := a.sync.Run(ctx, models.SystemActor)
		return err
	case jobs.TypeRosterDigest:
		date, ok := job.Payload.(time.Time)
		if !ok {
			date = a.rosters.Today()
		}
		_, err := a.digest.Send(ctx, date)
		return err
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}
