package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"basket_swap/internal/bootstrap"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_FILE", "configs/basketd.yaml"), "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("basketd version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start basketd: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting basketd", "version", version, "config", *configPath)

	if err := app.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
