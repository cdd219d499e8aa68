package main

import (
	"flag"
	"log"
	"os"

	"OracleFeed/internal/di"
	"OracleFeed/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s feeds=%d exchanges=%d", cfg.Environment, len(cfg.Feeds), len(cfg.Exchanges))
	if cfg.Kafka.Enabled {
		log.Printf("kafka: brokers=%v consensus_topic=%s", cfg.Kafka.Brokers, cfg.Kafka.ConsensusTopic)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
