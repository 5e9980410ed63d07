package main

import (
	"context"
	"flag"
	"log"
	"os"

	"SignalSim/internal/di"
	"SignalSim/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s source=%s runs=%d", cfg.Environment, cfg.Simulation.Source, countRuns(cfg))

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	if cfg.Kafka.Enabled {
		log.Printf("kafka: brokers=%v signals=%s events=%s", cfg.Kafka.Brokers, cfg.Kafka.SignalsTopic, cfg.Kafka.EventsTopic)
	}

	// Run application (blocks until signal)
	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func countRuns(cfg *config.Config) int {
	n := 0
	for _, m := range cfg.Simulation.Models {
		n += len(m.Horizons)
	}
	return n
}
