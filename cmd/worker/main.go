package main

import (
	"context"
	"log"
	"time"

	"dossier/internal/activities"
	"dossier/internal/config"
	"dossier/internal/logger"
	"dossier/internal/storage"
	"dossier/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		lg.Fatal("dial temporal", "error", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		lg.Fatal("connect postgres", "error", err)
	}
	defer db.Close()

	a, err := activities.New(cfg, db, lg)
	if err != nil {
		lg.Fatal("build activities", "error", err)
	}
	activities.Register(w, a)

	lg.Info("dossier worker listening",
		"temporal", cfg.TemporalAddress,
		"queue", cfg.TemporalTaskQueue,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		lg.Fatal("worker exited", "error", err)
	}
}
