package sequencer

import (
	"fmt"

	"scenesequencer/internal/ha"

	"go.uber.org/zap"
)

// StateReader fetches live entity states from Home Assistant
type StateReader interface {
	GetState(entityID string) (*ha.State, error)
}

// StateMatcher checks whether the devices a scene controls are already in
// the states the scene would put them in. Target states come from the
// service configuration; a scene with no declared targets never matches.
type StateMatcher struct {
	client StateReader
	scenes map[string]map[string]string
	logger *zap.Logger
}

// NewStateMatcher creates a matcher over the configured scene definitions
func NewStateMatcher(client StateReader, scenes map[string]map[string]string, logger *zap.Logger) *StateMatcher {
	return &StateMatcher{
		client: client,
		scenes: scenes,
		logger: logger.Named("matcher"),
	}
}

// Matches reports whether every entity declared for the scene currently
// holds its target state
func (m *StateMatcher) Matches(sceneID string) (bool, error) {
	targets, ok := m.scenes[sceneID]
	if !ok || len(targets) == 0 {
		m.logger.Debug("No target states defined for scene",
			zap.String("scene", sceneID))
		return false, nil
	}

	for entityID, want := range targets {
		state, err := m.client.GetState(entityID)
		if err != nil {
			return false, fmt.Errorf("failed to get state of %s: %w", entityID, err)
		}
		if state.State != want {
			m.logger.Debug("Entity state differs from scene target",
				zap.String("scene", sceneID),
				zap.String("entity_id", entityID),
				zap.String("want", want),
				zap.String("got", state.State))
			return false, nil
		}
	}

	return true, nil
}
