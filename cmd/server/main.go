package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/database"
	"github.com/stemsi/autoexam/internal/handler"
	"github.com/stemsi/autoexam/internal/i18n"
	"github.com/stemsi/autoexam/internal/logger"
	"github.com/stemsi/autoexam/internal/metrics"
	"github.com/stemsi/autoexam/internal/repository"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/router"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/session"
	"github.com/stemsi/autoexam/internal/validator"
	"github.com/stemsi/autoexam/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("teachers_dir", cfg.TeachersDir).
		Msg("Starting AutoExam")

	// ─── Initialize Validator, Translations and Metrics ────────────────
	validator.Setup()
	if err := i18n.Init("en"); err != nil {
		log.Fatal().Err(err).Msg("Failed to load translations")
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	teacherRepo := repository.NewTeacherRepository(pool)
	runRepo := repository.NewExamRunRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	proctor, err := service.NewProctoringService(cfg.LogsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.LogsDir).Msg("Failed to open proctoring logs")
	}
	defer proctor.Close()

	authService := service.NewAuthService(cfg, teacherRepo, service.NewRedisTokenStore(rdb))
	monitorService := service.NewMonitorService(rdb)
	examFiles := service.NewExamFileService(cfg, log)
	sessionService := service.NewExamSessionService(
		session.NewManager(log),
		examFiles,
		results.NewWriter(cfg.TeachersDir, log),
		proctor,
		monitorService,
		service.NewArchiveService(rdb),
		runRepo,
		cfg,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, proctor),
		ExamFiles:     handler.NewExamFileHandler(examFiles),
		Sessions:      handler.NewSessionHandler(sessionService, proctor),
		StudentPortal: handler.NewStudentPortalHandler(sessionService),
		Monitor:       handler.NewMonitorHandler(sessionService, monitorService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(pool, rdb, cfg, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	submissionWorker := worker.NewSubmissionWorker(pool, rdb, log)
	cheatWorker := worker.NewCheatWorker(pool, rdb, log)

	workers.Go(func() { submissionWorker.Start(workerCtx) })
	workers.Go(func() { cheatWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
