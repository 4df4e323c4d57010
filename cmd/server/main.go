package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/config"
	"github.com/mamadbah2/mouldtrack/internal/repository/mongodb"
	"github.com/mamadbah2/mouldtrack/internal/repository/sheets"
	"github.com/mamadbah2/mouldtrack/internal/scheduler"
	"github.com/mamadbah2/mouldtrack/internal/server/handlers"
	"github.com/mamadbah2/mouldtrack/internal/server/router"
	autosavesvc "github.com/mamadbah2/mouldtrack/internal/service/autosave"
	detailsvc "github.com/mamadbah2/mouldtrack/internal/service/detail"
	listingsvc "github.com/mamadbah2/mouldtrack/internal/service/listing"
	reportingsvc "github.com/mamadbah2/mouldtrack/internal/service/reporting"
	"github.com/mamadbah2/mouldtrack/internal/store"
	"github.com/mamadbah2/mouldtrack/pkg/clients/production"
	"github.com/mamadbah2/mouldtrack/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	location, err := time.LoadLocation(cfg.AutoSave.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	backend := production.NewClient(cfg.Backend)
	records := store.New()

	listingSvc := listingsvc.NewService(backend, records, logger.Named(baseLogger, "svc.listing"))
	detailSvc := detailsvc.NewService(listingSvc, records)
	coordinator := autosavesvc.NewCoordinator(backend, records, listingSvc,
		autosavesvc.NewLogNotifier(logger.Named(baseLogger, "notify")),
		logger.Named(baseLogger, "svc.autosave"),
		autosavesvc.Options{
			Timeout:        cfg.AutoSave.Timeout,
			RevertStrategy: cfg.AutoSave.RevertStrategy,
			Location:       location,
		})

	var history handlers.History
	if cfg.AuditEnabled() {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB)
		cancel()
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		coordinator.SetArchiver(mongoRepo)
		history = mongoRepo
		baseLogger.Info("batch snapshot archive enabled", zap.String("collection", cfg.MongoDB.Collection))
	} else {
		baseLogger.Warn("mongodb uri missing, batch snapshot archive disabled")
	}

	var sheetsRepo sheets.Repository
	if cfg.SheetsEnabled() {
		sheetsRepo, err = sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
	} else {
		baseLogger.Warn("google sheets credentials missing, shift report export disabled")
	}

	reportingSvc := reportingsvc.NewService(detailSvc, sheetsRepo, cfg.Sheets.ReportRange, location, logger.Named(baseLogger, "svc.reporting"))

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	if err := listingSvc.Refresh(loadCtx); err != nil {
		baseLogger.Warn("initial listing load incomplete", zap.Error(err))
	}
	cancelLoad()

	batchHandler := handlers.NewBatchHandler(listingSvc, detailSvc, coordinator, reportingSvc, history, logger.Named(baseLogger, "handlers.batches"))
	engine := router.New(batchHandler, logger.Named(baseLogger, "router"))

	// Initialize Scheduler
	var exporter scheduler.Exporter
	if sheetsRepo != nil {
		exporter = reportingSvc
	}
	sched, err := scheduler.NewScheduler(cfg.Scheduler, listingSvc, exporter, logger.Named(baseLogger, "scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
