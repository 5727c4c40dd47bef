package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"LiqPool/internal/di"
	"LiqPool/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	if err := run(*configPath, *checkOnly); err != nil {
		log.Printf("liqpool: %v", err)
		os.Exit(1)
	}
}

// run keeps the deferred cleanup on the error path too; os.Exit in main
// would skip it.
func run(configPath string, checkOnly bool) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if checkOnly {
		fmt.Printf("config ok: symbol=%s resolutions=%v feed=%s sinks=%s\n",
			cfg.Pipeline.Symbol, cfg.Pipeline.Resolutions, cfg.Feed.Type, cfg.Sinks.Type)
		return nil
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer cleanup()

	return app.Run(context.Background())
}
