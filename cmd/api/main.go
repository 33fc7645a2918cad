package main

import (
	"log"
	"net/http"

	"dossier/internal/api"
	"dossier/internal/config"
	"dossier/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	h := api.NewServer(cfg, lg)
	lg.Info("dossier api listening",
		"addr", cfg.APIAddr,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		lg.Fatal("api server exited", "error", err)
	}
}
