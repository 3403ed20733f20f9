package main

import (
	"context"
	"flag"
	"log"
	"os"

	"CoinFlow/internal/di"
	"CoinFlow/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s cache=%s notifications=%s", cfg.Environment, cfg.Cache.Backend, cfg.Notifications.Backend)

	ctx := context.Background()
	app, cleanup, err := di.InitializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	runErr := app.Run(ctx)
	cleanup()
	if runErr != nil {
		log.Printf("app error: %v", runErr)
		os.Exit(1)
	}
}
