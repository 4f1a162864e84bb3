// Package sequencer implements cycling through ordered lists of Home Assistant
// scenes. Each call to Cycle advances one step through a scene list, with an
// optional jump to the final scene after a period of inactivity. Position is
// tracked per distinct scene list, keyed by a content hash of the list.
package sequencer

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"scenesequencer/internal/clock"

	"go.uber.org/zap"
)

// MaxGoToLastTimeout is the upper bound of the go_to_last_timeout parameter, in seconds.
const MaxGoToLastTimeout = 60

var (
	// ErrNoScenes indicates a cycle request with an empty scene list
	ErrNoScenes = errors.New("scenes list must not be empty")

	// ErrTimeoutOutOfRange indicates a go_to_last_timeout outside 0-60 seconds
	ErrTimeoutOutOfRange = fmt.Errorf("go_to_last_timeout must be between 0 and %d seconds", MaxGoToLastTimeout)
)

// SceneActivator asks the platform to apply a named scene
type SceneActivator interface {
	ActivateScene(sceneID string) error
}

// Matcher reports whether observed device states already equal a scene's
// defined target states
type Matcher interface {
	Matches(sceneID string) (bool, error)
}

// CycleRequest carries the parameters of a single cycle invocation
type CycleRequest struct {
	// Scenes is the ordered list of scene entity IDs to cycle through
	Scenes []string `json:"scenes"`

	// GoToLastTimeout, when set, jumps to the final scene if at least this
	// many seconds have passed since the previous call for the same list
	GoToLastTimeout *int `json:"go_to_last_timeout,omitempty"`
}

// Validate rejects requests before any state is touched
func (r CycleRequest) Validate() error {
	if len(r.Scenes) == 0 {
		return ErrNoScenes
	}
	if r.GoToLastTimeout != nil && (*r.GoToLastTimeout < 0 || *r.GoToLastTimeout > MaxGoToLastTimeout) {
		return ErrTimeoutOutOfRange
	}
	return nil
}

// Key derives the stable identifier for an ordered scene list. Same list in
// the same order gives the same key; reordering gives a different key. The
// 10-character md5 prefix matches the format the persisted store has always
// used, so existing store contents stay valid.
func Key(scenes []string) string {
	sum := md5.Sum([]byte(strings.Join(scenes, ",")))
	return hex.EncodeToString(sum[:])[:10]
}

// Sequencer advances scene sequences and persists their positions.
// It holds no global state; the store, activator and matcher are injected.
type Sequencer struct {
	store     Store
	activator SceneActivator
	matcher   Matcher
	clock     clock.Clock
	logger    *zap.Logger
}

// New creates a Sequencer
func New(store Store, activator SceneActivator, matcher Matcher, clk clock.Clock, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		store:     store,
		activator: activator,
		matcher:   matcher,
		clock:     clk,
		logger:    logger.Named("sequencer"),
	}
}

// Cycle activates the next scene in the requested list.
//
// The stored position is the index that was last activated; a fresh list
// starts at position 0 meaning "nothing activated yet", so the first call
// activates index 1 and the visit order is 1, 2, ..., n-1, 0, 1, ...
//
// When a timeout is configured and at least that long has passed since the
// previous call, the target becomes the final scene instead - unless the
// matcher reports the final scene is already applied, in which case the
// target wraps to the first scene.
//
// State is persisted before activation is requested, so a failed activation
// does not desynchronize the position on retry.
func (s *Sequencer) Cycle(req CycleRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	key := Key(req.Scenes)
	n := len(req.Scenes)

	mapping, err := s.store.Load()
	if err != nil {
		// A missing or corrupt store means fresh state, not a fatal error
		s.logger.Warn("Failed to load sequence store, starting fresh", zap.Error(err))
		mapping = make(map[string]Entry)
	}

	entry := mapping[key]
	now := s.clock.Now()

	target := (entry.Position + 1) % n

	if req.GoToLastTimeout != nil && entry.LastCalledAt > 0 &&
		now.Unix()-entry.LastCalledAt >= int64(*req.GoToLastTimeout) {
		target = n - 1

		matched, merr := s.matcher.Matches(req.Scenes[n-1])
		if merr != nil {
			// Treat an unanswerable match query as "does not match"; the
			// jump to the final scene is still the right fallback.
			s.logger.Warn("State match query failed",
				zap.String("scene", req.Scenes[n-1]),
				zap.Error(merr))
			matched = false
		}
		if matched {
			// Already showing the final scene, wrap to the first
			target = 0
		}
	}

	mapping[key] = Entry{
		Position:     target,
		LastCalledAt: now.Unix(),
	}

	if err := s.store.Save(mapping); err != nil {
		return fmt.Errorf("failed to save sequence state: %w", err)
	}

	s.logger.Debug("Cycling scene sequence",
		zap.String("key", key),
		zap.Int("position", target),
		zap.String("scene", req.Scenes[target]))

	if err := s.activator.ActivateScene(req.Scenes[target]); err != nil {
		return fmt.Errorf("failed to activate scene %s: %w", req.Scenes[target], err)
	}

	return nil
}

// Sequences returns the current contents of the store
func (s *Sequencer) Sequences() (map[string]Entry, error) {
	return s.store.Load()
}
