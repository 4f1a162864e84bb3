package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scenesequencer/internal/api"
	"scenesequencer/internal/clock"
	"scenesequencer/internal/config"
	"scenesequencer/internal/ha"
	"scenesequencer/internal/sequencer"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}

	if haURL == "" || haToken == "" {
		logger.Fatal("HA_URL and HA_TOKEN environment variables must be set")
	}

	logger.Info("Starting Scene Sequencer",
		zap.String("url", haURL),
		zap.String("config_dir", configDir))

	// Load service configuration
	loader := config.NewLoader(configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg := loader.GetConfig()

	// Create HA client and connect
	client := ha.NewClient(haURL, haToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	// Wire the sequencer: HA-backed store and matcher, real clock
	store := sequencer.NewEntityStore(client, cfg.StoreEntity, logger)
	matcher := sequencer.NewStateMatcher(client, cfg.Scenes, logger)
	seq := sequencer.New(store, client, matcher, clock.NewRealClock(), logger)

	// Start the HTTP invocation surface
	server := api.NewServer(seq, logger, cfg.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Scene Sequencer running. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
}
