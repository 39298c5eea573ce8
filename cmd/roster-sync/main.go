package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/repository"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	"github.com/noah-isme/afterschool-roster-api/pkg/cache"
	"github.com/noah-isme/afterschool-roster-api/pkg/config"
	"github.com/noah-isme/afterschool-roster-api/pkg/database"
	"github.com/noah-isme/afterschool-roster-api/pkg/logger"
)

const (
	exitOK        = 0
	exitAborted   = 1
	exitRowErrors = 2
)

// roster-sync runs one reconciliation pass and exits. Exit status is 1 when the pass aborted
// and, with -strict, 2 when any row failed.
func main() {
	os.Exit(run())
}

// run returns the exit status so deferred log flushes and pool closes happen before exit.
func run() int {
	var (
		timeout time.Duration
		strict  bool
		asJSON  bool
		actor   string
	)
	flag.DurationVar(&timeout, "timeout", 0, "Pass timeout (defaults to SYNC_TIMEOUT)")
	flag.BoolVar(&strict, "strict", false, "Exit non-zero when any row failed")
	flag.BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	flag.StringVar(&actor, "actor", models.SystemActor, "Actor recorded on the audit entry")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return exitAborted
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return exitAborted
	}
	defer logr.Sync() //nolint:errcheck

	if timeout <= 0 {
		timeout = cfg.Sync.Timeout
	}

	store, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Error("failed to connect entity store", zap.Error(err))
		return exitAborted
	}
	defer store.Close()
	warehouse, err := database.NewPostgres(cfg.Warehouse.DatabaseConfig)
	if err != nil {
		logr.Error("failed to connect warehouse", zap.Error(err))
		return exitAborted
	}
	defer warehouse.Close()

	feed, err := repository.NewFeedRepository(warehouse, cfg.Warehouse.ClassTable, cfg.Warehouse.EnrollmentTable)
	if err != nil {
		logr.Error("invalid warehouse tables", zap.Error(err))
		return exitAborted
	}

	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if cfg.Roster.CacheEnabled {
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedis(pingCtx, cfg.Redis)
		cancelPing()
		if err == nil {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		} else {
			logr.Warn("cached rosters will expire on their own: redis unavailable", zap.Error(err))
		}
	}
	classRepo := repository.NewClassOfferingRepository(store)
	enrollmentRepo := repository.NewEnrollmentRepository(store)
	rosters := service.NewRosterService(classRepo, enrollmentRepo, repository.NewStudentRepository(store), repository.NewAttendanceRepository(store),
		service.NewRosterCache(cacheRepo, metrics, cfg.Roster.CacheTTL, logr, cfg.Roster.CacheEnabled),
		service.RosterServiceConfig{AbsentCodes: cfg.Attendance.AbsentCodes, Location: cfg.Location()}, logr)
	syncSvc := service.NewSyncService(feed, classRepo, enrollmentRepo, service.NewAuditService(repository.NewAuditRepository(store), logr), rosters, metrics,
		service.SyncServiceConfig{AllowEmptyFeed: cfg.Sync.AllowEmptyFeed, SemesterLabel: cfg.Sync.SemesterLabel}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	summary, runErr := syncSvc.Run(ctx, actor)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	} else {
		printReport(summary)
	}

	return exitCode(summary, runErr, strict)
}

func exitCode(summary *models.SyncSummary, runErr error, strict bool) int {
	switch {
	case runErr != nil:
		return exitAborted
	case strict && summary != nil && summary.ErrorCount > 0:
		return exitRowErrors
	default:
		return exitOK
	}
}

func printReport(s *models.SyncSummary) {
	fmt.Println("Roster Sync Report")
	fmt.Println("==================")
	fmt.Printf("Pass: %s by %s (%dms)\n", s.PassID, s.Actor, s.ElapsedMS)
	fmt.Printf("Classes: +%d ~%d -%d\n", s.Classes.Inserted, s.Classes.Updated, s.Classes.Deactivated)
	fmt.Printf("Enrollments: +%d ~%d =%d -%d\n", s.Enrollments.Inserted, s.Enrollments.Updated, s.Enrollments.Unchanged, s.Enrollments.Deactivated)
	for _, rowErr := range s.Errors {
		fmt.Printf("  [ROW] %s\n", rowErr.Error())
	}
	if s.Failed() {
		fmt.Printf("ABORTED: %s\n", s.Fatal)
		return
	}
	fmt.Printf("Row errors: %d\n", s.ErrorCount)
}
