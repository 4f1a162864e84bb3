package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultStoreEntity is the input_text entity the sequence mapping is
// persisted to when the config file does not name one
const DefaultStoreEntity = "input_text.scene_sequencer_store"

// DefaultAPIPort is the HTTP port used when none is configured
const DefaultAPIPort = 8082

// ServiceConfig represents the sequencer_config.yaml structure
type ServiceConfig struct {
	// StoreEntity is the input_text entity holding the persisted sequence mapping
	StoreEntity string `yaml:"store_entity"`

	// APIPort is the port the HTTP invocation surface listens on
	APIPort int `yaml:"api_port"`

	// Scenes maps a scene entity ID to the entity states it sets, used to
	// decide whether a scene is already applied
	Scenes map[string]map[string]string `yaml:"scenes"`
}

// Loader manages configuration file loading
type Loader struct {
	configDir string
	logger    *zap.Logger
	config    *ServiceConfig
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads and validates sequencer_config.yaml
func (l *Loader) Load() error {
	path := filepath.Join(l.configDir, "sequencer_config.yaml")
	l.logger.Debug("Loading sequencer config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sequencer config: %w", err)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse sequencer config: %w", err)
	}

	if config.StoreEntity == "" {
		config.StoreEntity = DefaultStoreEntity
	}
	if config.APIPort == 0 {
		config.APIPort = DefaultAPIPort
	}

	if err := validate(&config); err != nil {
		return err
	}

	l.config = &config
	l.logger.Info("Sequencer config loaded successfully",
		zap.String("store_entity", config.StoreEntity),
		zap.Int("api_port", config.APIPort),
		zap.Int("scene_definitions", len(config.Scenes)))
	return nil
}

// GetConfig returns the loaded configuration
func (l *Loader) GetConfig() *ServiceConfig {
	return l.config
}

func validate(config *ServiceConfig) error {
	if !strings.HasPrefix(config.StoreEntity, "input_text.") {
		return fmt.Errorf("store_entity must be an input_text entity, got %q", config.StoreEntity)
	}
	if config.APIPort < 1 || config.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", config.APIPort)
	}
	for sceneID, targets := range config.Scenes {
		if !strings.HasPrefix(sceneID, "scene.") {
			return fmt.Errorf("scene definition key must be a scene entity, got %q", sceneID)
		}
		for entityID := range targets {
			if !strings.Contains(entityID, ".") {
				return fmt.Errorf("scene %s target %q is not an entity ID", sceneID, entityID)
			}
		}
	}
	return nil
}
