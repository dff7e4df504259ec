package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/api"
	"ai-web-studio/internal/artifacts"
	"ai-web-studio/internal/config"
	"ai-web-studio/internal/dispatch"
	"ai-web-studio/internal/orchestrator"
	"ai-web-studio/internal/queue"
	"ai-web-studio/internal/ratelimit"
	"ai-web-studio/internal/store"
	"ai-web-studio/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := telemetry.NewLogger(cfg.Env, "api")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	limiter := ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	var exec orchestrator.Executor
	switch cfg.ExecutionMode {
	case config.ModeRemote:
		d, err := dispatch.New(dispatch.Options{URL: cfg.N8NWebhookURL, Secret: cfg.N8NSecret, Timeout: cfg.DispatchTimeout, Logger: log})
		if err != nil {
			log.Fatal().Err(err).Msg("init dispatcher")
		}
		exec = orchestrator.NewRemoteDispatchExecutor(d, cfg.RetryPolicy())
	default:
		exec = orchestrator.NewLocalPipelineExecutor(q)
	}

	exporter, err := artifacts.NewExporter(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init artifact exporter")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:     st,
		Executor:  exec,
		Publisher: exporter,
		Logger:    log,
	})
	server := api.New(api.Options{
		Service:        orch,
		Limiter:        limiter,
		DeadLetters:    q,
		Health:         st,
		CallbackSecret: cfg.N8NSecret,
		Logger:         log,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", cfg.HTTPPort).Str("execution_mode", cfg.ExecutionMode).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("api stopped")
}
