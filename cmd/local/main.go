package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/app"
	"github.com/Devendrasinghadiya/dekhomovie/internal/config"
	"github.com/Devendrasinghadiya/dekhomovie/internal/logging"
)

// Local runner: reads .env, logs to the console and always long-polls, so a
// webhook set for production is dropped while it runs.
func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf(".env not loaded: %v", err)
	}
	if os.Getenv("ENV") == "" {
		_ = os.Setenv("ENV", config.EnvDev)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.WebhookURL != "" {
		log.Printf("ignoring WEBHOOK_URL=%s, polling instead", cfg.WebhookURL)
		cfg.WebhookURL = ""
	}
	if os.Getenv("PORT") == "" {
		cfg.Port = "7955"
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil {
		logger.Fatal("bot failed", zap.Error(err))
	}
}
