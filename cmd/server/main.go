// Package main is the entry point for the conformer analysis service.
// It wires the amplitude pipeline, persistence, the background scheduler
// and the HTTP API, then runs until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/conformer/internal/config"
	"github.com/aristath/conformer/internal/database"
	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
	analysishandlers "github.com/aristath/conformer/internal/modules/analysis/handlers"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/reliability"
	"github.com/aristath/conformer/internal/scheduler"
	"github.com/aristath/conformer/internal/server"
	"github.com/aristath/conformer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting conformer")

	// Databases: durable run history and the ephemeral result cache.
	resultsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "results.db"),
		Profile: database.ProfileResults,
		Name:    "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer resultsDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	repo, err := analysis.NewRepository(resultsDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run repository")
	}

	cache, err := analysis.NewCache(cacheDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize result cache")
	}

	queue, err := analysis.NewQueueRepository(resultsDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analysis queue")
	}

	eventBus := events.NewBus()
	service := analysis.NewService(basis.NewModel(), log)

	// Backups are optional: enabled only when a bucket is configured.
	var backupService *reliability.BackupService
	if cfg.Backup.Enabled() {
		store, err := reliability.NewObjectStore(
			cfg.Backup.Endpoint,
			cfg.Backup.AccessKeyID,
			cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		backupService = reliability.NewBackupService(
			[]*database.DB{resultsDB, cacheDB},
			store,
			cfg.DataDir,
			eventBus,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backups enabled")
	} else {
		log.Info().Msg("Backups disabled (no bucket configured)")
	}

	// Background jobs.
	sched := scheduler.New(log)

	drainJob := scheduler.NewDrainQueueJob(service, queue, repo, cache, eventBus, cfg.QueueBatchSize, log)
	if err := sched.AddJob(cfg.QueueDrainSchedule, drainJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule queue drain")
	}

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	cleanupJob := scheduler.NewCleanupJob(repo, cache, retention, log)
	if err := sched.AddJob(cfg.CleanupSchedule, cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule cleanup")
	}

	maintenanceJob := reliability.NewMaintenanceJob([]*database.DB{resultsDB, cacheDB}, cfg.DataDir, log)
	if err := sched.AddJob(cfg.MaintenanceSchedule, maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}

	var backupJob *scheduler.BackupJob
	if backupService != nil {
		backupJob = scheduler.NewBackupJob(backupService, cfg.BackupRetentionDays, log)
		if err := sched.AddJob(cfg.BackupSchedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backup")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP surface.
	analysisHandler := analysishandlers.NewHandler(service, repo, cache, queue, eventBus, log)

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		ResultsDB: resultsDB,
		CacheDB:   cacheDB,
		EventBus:  eventBus,
		Queue:     queue,
		Analysis:  analysisHandler,
		Backup:    backupService,
		Scheduler: sched,
	})

	srv.RegisterJob(drainJob)
	srv.RegisterJob(cleanupJob)
	srv.RegisterJob(maintenanceJob)
	if backupJob != nil {
		srv.RegisterJob(backupJob)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
