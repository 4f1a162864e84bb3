package sequencer

import (
	"encoding/json"
	"fmt"
	"sync"

	"scenesequencer/internal/ha"

	"go.uber.org/zap"
)

// Entry is the persisted state of one scene sequence
type Entry struct {
	// Position is the index into the scene list that was last activated
	Position int `json:"position"`

	// LastCalledAt is the epoch second of the most recent call, 0 if never called
	LastCalledAt int64 `json:"last_called_at"`
}

// Store persists the key-to-entry mapping for all known sequences
type Store interface {
	Load() (map[string]Entry, error)
	Save(mapping map[string]Entry) error
}

// MemoryStore keeps the mapping in process memory
type MemoryStore struct {
	mu      sync.Mutex
	mapping map[string]Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mapping: make(map[string]Entry)}
}

// Load returns a copy of the stored mapping
func (s *MemoryStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping := make(map[string]Entry, len(s.mapping))
	for k, v := range s.mapping {
		mapping[k] = v
	}
	return mapping, nil
}

// Save replaces the stored mapping
func (s *MemoryStore) Save(mapping map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapping = make(map[string]Entry, len(mapping))
	for k, v := range mapping {
		s.mapping[k] = v
	}
	return nil
}

// StateClient is the slice of the HA client the EntityStore needs
type StateClient interface {
	GetState(entityID string) (*ha.State, error)
	SetInputText(name string, value string) error
}

// EntityStore persists the mapping as a JSON blob in the value of a Home
// Assistant input_text entity. A missing entity or an unparseable value
// degrades to an empty mapping so a cleared store never breaks cycling.
type EntityStore struct {
	client   StateClient
	entityID string
	logger   *zap.Logger
}

// NewEntityStore creates a store backed by the given input_text entity
func NewEntityStore(client StateClient, entityID string, logger *zap.Logger) *EntityStore {
	return &EntityStore{
		client:   client,
		entityID: entityID,
		logger:   logger.Named("store"),
	}
}

// Load reads and decodes the mapping from the store entity
func (s *EntityStore) Load() (map[string]Entry, error) {
	state, err := s.client.GetState(s.entityID)
	if err != nil {
		s.logger.Warn("Store entity unavailable, using empty mapping",
			zap.String("entity_id", s.entityID),
			zap.Error(err))
		return make(map[string]Entry), nil
	}

	raw := state.State
	if raw == "" || raw == "unknown" || raw == "unavailable" {
		return make(map[string]Entry), nil
	}

	var mapping map[string]Entry
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		s.logger.Warn("Store entity holds invalid JSON, using empty mapping",
			zap.String("entity_id", s.entityID),
			zap.Error(err))
		return make(map[string]Entry), nil
	}

	if mapping == nil {
		mapping = make(map[string]Entry)
	}
	return mapping, nil
}

// Save encodes the mapping and writes it back to the store entity
func (s *EntityStore) Save(mapping map[string]Entry) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to encode sequence mapping: %w", err)
	}

	if err := s.client.SetInputText(entityName(s.entityID), string(data)); err != nil {
		return fmt.Errorf("failed to write store entity %s: %w", s.entityID, err)
	}
	return nil
}

// entityName extracts the entity name from a full entity ID,
// e.g. "input_text.scene_sequencer_store" -> "scene_sequencer_store"
func entityName(entityID string) string {
	for i := len(entityID) - 1; i >= 0; i-- {
		if entityID[i] == '.' {
			return entityID[i+1:]
		}
	}
	return entityID
}
