package testutil

import (
	"fmt"
	"time"

	"scenesequencer/internal/clock"
	"scenesequencer/internal/ha"
	"scenesequencer/internal/sequencer"

	"go.uber.org/zap"
)

// TestEnv provides a complete test environment: mock HA server, connected
// websocket client, entity-backed store, matcher and sequencer.
type TestEnv struct {
	Server    *MockHAServer
	Client    *ha.Client
	Store     *sequencer.EntityStore
	Clock     *clock.MockClock
	Sequencer *sequencer.Sequencer
	Logger    *zap.Logger
}

// TestEnvConfig controls TestEnv wiring
type TestEnvConfig struct {
	// StoreEntity is the input_text entity backing the store
	StoreEntity string

	// Scenes maps scene IDs to the entity states they set, for the matcher
	Scenes map[string]map[string]string
}

// NewTestEnv creates a fully configured test environment with mock HA
// server, connected client, and a sequencer running on a mock clock.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv("localhost:18123", "test_token", testutil.TestEnvConfig{
//	    StoreEntity: "input_text.scene_sequencer_store",
//	})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
func NewTestEnv(addr, token string, cfg TestEnvConfig) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	if cfg.StoreEntity == "" {
		cfg.StoreEntity = "input_text.scene_sequencer_store"
	}

	// Start mock HA server with an empty store entity
	server := NewMockHAServer(addr, token)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}
	server.SetState(cfg.StoreEntity, "", nil)

	// Create and connect client
	client := ha.NewClient(fmt.Sprintf("ws://%s/api/websocket", addr), token, logger)
	if err := client.Connect(); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	store := sequencer.NewEntityStore(client, cfg.StoreEntity, logger)
	matcher := sequencer.NewStateMatcher(client, cfg.Scenes, logger)
	clk := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	seq := sequencer.New(store, client, matcher, clk, logger)

	return &TestEnv{
		Server:    server,
		Client:    client,
		Store:     store,
		Clock:     clk,
		Sequencer: seq,
		Logger:    logger,
	}, nil
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	if e.Client != nil {
		e.Client.Disconnect()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
}

// ActivatedScenes returns the scenes activated on the mock server so far
func (e *TestEnv) ActivatedScenes() []string {
	return ActivatedScenes(e.Server.GetServiceCalls())
}
