package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"image_batch/internal/blob"
	"image_batch/internal/logger"
	"image_batch/internal/metrics"
	"image_batch/internal/models"
	"image_batch/internal/notifier"
	"image_batch/internal/pipeline"
	"image_batch/internal/queue"
	"image_batch/internal/server"
	"image_batch/internal/storage"
	"image_batch/internal/transcoder"
)

type recordStore interface {
	server.RecordStore
	Close()
}

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v", err)
	}

	cfg, err := models.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logg.Fatal("failed to init storage", zap.Error(err))
	}
	defer store.Close()

	blobs, err := blob.New(ctx, cfg.Blob, logg)
	if err != nil {
		logg.Fatal("failed to init blob store", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	proc := pipeline.NewProcessor(
		store,
		blobs,
		transcoder.New(cfg.Processing, logg),
		notifier.NewWebhookNotifier(cfg.Webhook.Timeout, logg),
		pipeline.Config{Quality: *cfg.Processing.Quality, ImageWorkers: cfg.Processing.ImageWorkers},
		m,
		logg,
	)

	dispatcher, err := queue.New(cfg.Queue, logg)
	if err != nil {
		logg.Fatal("failed to init queue", zap.Error(err))
	}
	dispatcher.Start(ctx, proc.Handle)

	srv := server.NewServer(cfg, store, dispatcher, reg, logg)
	go func() {
		if err := srv.Start(); err != nil {
			logg.Fatal("failed to start server", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logg.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("HTTP shutdown failed", zap.Error(err))
	}

	// The memory queue drains queued batches on Close; kafka consumers
	// stop on cancel and leave uncommitted jobs for the next start.
	if cfg.Queue.Driver != "memory" {
		cancel()
	}
	if err := dispatcher.Close(); err != nil {
		logg.Error("queue close failed", zap.Error(err))
	}
	cancel()
}

func openStore(ctx context.Context, cfg *models.Config) (recordStore, error) {
	if cfg.StoreDriver == "memory" {
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewStorage(ctx, cfg.DatabaseURL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
