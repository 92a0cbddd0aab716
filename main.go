package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lmsilo/transcribe-backend/adapters"
	"github.com/lmsilo/transcribe-backend/config"
	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/pipeline"
	"github.com/lmsilo/transcribe-backend/router"
	"github.com/lmsilo/transcribe-backend/scheduler"
	"github.com/lmsilo/transcribe-backend/store/postgres"
	"github.com/lmsilo/transcribe-backend/timingsync"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	port := env("BACKEND_PORT", "8080")

	dbDSN := os.Getenv("DB_DSN")
	if dbDSN == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	fmt.Printf("transcribe-backend %s\n", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, dbDSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cfg, err := config.Load(ctx, db)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	data := cfg.Get()

	bus := eventbus.New(data.EventBufferPerSubscriber)

	downloader := models.NewHTTPDownloader(data.ModelDir, env("MODEL_REGISTRY_BASE_URL", ""))
	registry := models.New(db, bus, downloader)

	idleTimeout := 15 * time.Minute
	if data.ModelIdleTimeout != "" {
		if d, err := time.ParseDuration(data.ModelIdleTimeout); err == nil {
			idleTimeout = d
		} else {
			log.Printf("invalid model_idle_timeout %q, using default %s", data.ModelIdleTimeout, idleTimeout)
		}
	}
	cache := engine.NewCache(8, idleTimeout)
	resolver := adapters.New(cache, data.ComputeDevice, data.ComputeType, remoteEndpointsFromEnv())

	concurrency := data.MaxConcurrentJobs
	if concurrency < 1 {
		concurrency = 1
	}
	sched := scheduler.New(concurrency)

	exec := &pipeline.Executor{
		Store:     db,
		Bus:       bus,
		Registry:  registry,
		Adapters:  resolver,
		Stretcher: timingsync.RubberbandStretcher{},
		OutputDir: data.OutputDir,
	}
	runner := pipeline.NewRunner(sched, db, exec)
	runner.Start(ctx)

	srv := &http.Server{
		Addr: ":" + port,
		Handler: router.New(router.Deps{
			Store:     db,
			Bus:       bus,
			Registry:  registry,
			Runner:    runner,
			Resolver:  resolver,
			Config:    cfg,
			StartedAt: startedAtClock(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	<-sigCh
	log.Println("shutting down…")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// remoteEndpointsFromEnv reads REMOTE_ENGINE_<TAG>=<ws-url> pairs so sibling
// inference workers can be wired in without a code change.
func remoteEndpointsFromEnv() adapters.RemoteEndpoints {
	out := adapters.RemoteEndpoints{}
	const prefix = "REMOTE_ENGINE_"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) || v == "" {
			continue
		}
		tag := strings.ToLower(strings.TrimPrefix(k, prefix))
		out[tag] = v
	}
	return out
}

func startedAtClock() func() string {
	start := time.Now()
	return func() string { return start.Format(time.RFC3339) }
}
