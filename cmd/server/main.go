package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/config"
	"github.com/lumistudy/lumi-backend/internal/database"
	"github.com/lumistudy/lumi-backend/internal/handler"
	"github.com/lumistudy/lumi-backend/internal/itemwriter"
	"github.com/lumistudy/lumi-backend/internal/judge"
	"github.com/lumistudy/lumi-backend/internal/llm"
	"github.com/lumistudy/lumi-backend/internal/logger"
	"github.com/lumistudy/lumi-backend/internal/repository"
	"github.com/lumistudy/lumi-backend/internal/router"
	"github.com/lumistudy/lumi-backend/internal/service"
	"github.com/lumistudy/lumi-backend/internal/validator"
	"github.com/lumistudy/lumi-backend/internal/worker"
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
		Msg("Starting Lumi Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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
	assessmentRepo := repository.NewAssessmentRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)

	// ─── Initialize LLM Clients ────────────────────────────────────────
	writerClient := llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.ItemWriterModel, cfg.LLMTimeout, log)
	judgeClient := llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.JudgeModel, cfg.LLMTimeout, log)
	summaryClient := llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.SummaryModel, cfg.LLMTimeout, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	generator := itemwriter.New(writerClient, log)
	grader := judge.New(judgeClient, log)
	progressionService := service.NewProgressionService(courseRepo, log)
	assessmentService := service.NewAssessmentService(
		assessmentRepo, courseRepo, generator, grader, summaryClient, progressionService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment: handler.NewAssessmentHandler(assessmentService),
		Course:     handler.NewCourseHandler(courseRepo),
		WS:         handler.NewWSHandler(rdb, assessmentService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(assessmentRepo, rdb, log)
	go autosaveWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 2. Stop the background worker and wait for the queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
