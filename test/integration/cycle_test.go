package integration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scenesequencer/internal/api"
	"scenesequencer/internal/sequencer"
	"scenesequencer/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test_token"

func intPtr(n int) *int { return &n }

// TestCycle_RoundRobin drives the full stack - websocket client, entity
// store, sequencer - through a round-robin cycle with no timeout.
func TestCycle_RoundRobin(t *testing.T) {
	env, err := testutil.NewTestEnv("localhost:18125", testToken, testutil.TestEnvConfig{})
	require.NoError(t, err)
	defer env.Cleanup()

	req := sequencer.CycleRequest{Scenes: []string{"scene.a", "scene.b", "scene.c"}}

	for i := 0; i < 4; i++ {
		require.NoError(t, env.Sequencer.Cycle(req))
	}

	assert.Equal(t, []string{"scene.b", "scene.c", "scene.a", "scene.b"}, env.ActivatedScenes())
}

// TestCycle_PositionSurvivesRestart verifies the mapping persisted on the
// store entity is picked up by a fresh sequencer, as it would be after a
// process restart.
func TestCycle_PositionSurvivesRestart(t *testing.T) {
	env, err := testutil.NewTestEnv("localhost:18126", testToken, testutil.TestEnvConfig{})
	require.NoError(t, err)
	defer env.Cleanup()

	scenes := []string{"scene.a", "scene.b", "scene.c"}
	require.NoError(t, env.Sequencer.Cycle(sequencer.CycleRequest{Scenes: scenes}))

	// A new sequencer over the same store entity continues where the old one left off
	fresh := sequencer.New(env.Store, env.Client,
		sequencer.NewStateMatcher(env.Client, nil, env.Logger), env.Clock, env.Logger)
	require.NoError(t, fresh.Cycle(sequencer.CycleRequest{Scenes: scenes}))

	assert.Equal(t, []string{"scene.b", "scene.c"}, env.ActivatedScenes())
}

// TestCycle_TimeoutScenario replays the lights scenario end to end:
// scenes [A, B, off] with a 5 second timeout.
func TestCycle_TimeoutScenario(t *testing.T) {
	env, err := testutil.NewTestEnv("localhost:18127", testToken, testutil.TestEnvConfig{
		Scenes: map[string]map[string]string{
			"scene.off": {
				"light.living_room": "off",
				"light.kitchen":     "off",
			},
		},
	})
	require.NoError(t, err)
	defer env.Cleanup()

	// Lights are on, so scene.off is not currently applied
	env.Server.SetState("light.living_room", "on", nil)
	env.Server.SetState("light.kitchen", "on", nil)

	req := sequencer.CycleRequest{
		Scenes:          []string{"scene.a", "scene.b", "scene.off"},
		GoToLastTimeout: intPtr(5),
	}

	require.NoError(t, env.Sequencer.Cycle(req)) // fresh -> scene.b

	env.Clock.Advance(10 * time.Second)
	require.NoError(t, env.Sequencer.Cycle(req)) // timeout, lights on -> scene.off

	// Lights now match scene.off, so the next timed-out call wraps to the first scene
	env.Server.SetState("light.living_room", "off", nil)
	env.Server.SetState("light.kitchen", "off", nil)

	env.Clock.Advance(6 * time.Second)
	require.NoError(t, env.Sequencer.Cycle(req)) // -> scene.a

	assert.Equal(t, []string{"scene.b", "scene.off", "scene.a"}, env.ActivatedScenes())
}

// TestCycle_ActivationFailure verifies a failed activation surfaces an
// error while the persisted position stays advanced.
func TestCycle_ActivationFailure(t *testing.T) {
	env, err := testutil.NewTestEnv("localhost:18128", testToken, testutil.TestEnvConfig{})
	require.NoError(t, err)
	defer env.Cleanup()

	scenes := []string{"scene.a", "scene.missing", "scene.c"}
	env.Server.FailScene("scene.missing", true)

	err = env.Sequencer.Cycle(sequencer.CycleRequest{Scenes: scenes})
	assert.Error(t, err)

	// Position was persisted before the activation attempt
	mapping, loadErr := env.Store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, 1, mapping[sequencer.Key(scenes)].Position)

	// The next call moves on to scene.c
	require.NoError(t, env.Sequencer.Cycle(sequencer.CycleRequest{Scenes: scenes}))
	assert.Equal(t, []string{"scene.c"}, env.ActivatedScenes())
}

// TestCycle_HTTPSurface exercises the HTTP invocation surface against
// the full stack.
func TestCycle_HTTPSurface(t *testing.T) {
	env, err := testutil.NewTestEnv("localhost:18129", testToken, testutil.TestEnvConfig{})
	require.NoError(t, err)
	defer env.Cleanup()

	server := api.NewServer(env.Sequencer, env.Logger, 18130)

	body := `{"scenes": ["scene.a", "scene.b"], "go_to_last_timeout": 10}`
	httpReq := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httpReq)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"scene.b"}, env.ActivatedScenes())

	// The persisted mapping is visible over the API
	httpReq = httptest.NewRequest(http.MethodGet, "/api/sequences", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httpReq)

	assert.Equal(t, http.StatusOK, rec.Code)
	key := sequencer.Key([]string{"scene.a", "scene.b"})
	assert.Contains(t, rec.Body.String(), key)
}
