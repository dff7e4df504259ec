package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/artifacts"
	"ai-web-studio/internal/config"
	"ai-web-studio/internal/llm"
	"ai-web-studio/internal/orchestrator"
	"ai-web-studio/internal/pipeline"
	"ai-web-studio/internal/queue"
	"ai-web-studio/internal/store"
	"ai-web-studio/internal/telemetry"
	"ai-web-studio/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := telemetry.NewLogger(cfg.Env, "worker")
	if cfg.ExecutionMode != config.ModeLocal {
		log.Fatal().Str("execution_mode", cfg.ExecutionMode).Msg("worker only runs in local execution mode")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	rdb := queue.NewRedisClient(cfg)
	defer rdb.Close()
	q := queue.NewRedisQueue(rdb, cfg)

	client, err := llm.NewClient(llm.Options{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: float32(cfg.LLMTemperature),
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init llm client")
	}
	exporter, err := artifacts.NewExporter(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init artifact exporter")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:     st,
		Executor:  orchestrator.NewLocalPipelineExecutor(q),
		Runner:    pipeline.New(client, log, pipeline.Options{Palette: pipeline.FixedPalette{}, Retry: cfg.RetryPolicy()}),
		Publisher: exporter,
		Logger:    log,
	})

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}
	processor := worker.NewProcessor(cfg, q, orch, log, workerID)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().
		Dur("visibility", cfg.VisibilityTimeout).
		Str("model", client.Model()).
		Int("retry_attempts", cfg.RetryMaxAttempts).
		Msg("worker starting")
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped")
	}
}
