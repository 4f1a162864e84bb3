package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scenesequencer/internal/clock"
	"scenesequencer/internal/ha"
	"scenesequencer/internal/sequencer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type neverMatches struct{}

func (neverMatches) Matches(sceneID string) (bool, error) { return false, nil }

func newTestServer(t *testing.T) (*Server, *ha.MockClient) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mock := ha.NewMockClient()
	store := sequencer.NewMemoryStore()
	clk := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	seq := sequencer.New(store, mock, neverMatches{}, clk, logger)
	return NewServer(seq, logger, 8082), mock
}

func TestServer_HandleCycle(t *testing.T) {
	server, mock := newTestServer(t)

	body := `{"scenes": ["scene.a", "scene.b", "scene.c"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "scene", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, "scene.b", calls[0].Data["entity_id"])
}

func TestServer_HandleCycle_WithTimeout(t *testing.T) {
	server, mock := newTestServer(t)

	body := `{"scenes": ["scene.a", "scene.b"], "go_to_last_timeout": 30}`
	req := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, mock.GetServiceCalls(), 1)
}

func TestServer_HandleCycle_ValidationErrors(t *testing.T) {
	server, mock := newTestServer(t)

	testCases := []struct {
		name string
		body string
	}{
		{"empty scenes", `{"scenes": []}`},
		{"missing scenes", `{}`},
		{"timeout out of range", `{"scenes": ["scene.a"], "go_to_last_timeout": 120}`},
		{"malformed json", `{"scenes": [`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}

	assert.Empty(t, mock.GetServiceCalls(), "No activations on rejected requests")
}

func TestServer_HandleCycle_ActivationFailure(t *testing.T) {
	server, mock := newTestServer(t)
	mock.SetServiceError("scene", "turn_on", errors.New("scene not found"))

	body := `{"scenes": ["scene.a", "scene.b"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_HandleCycle_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cycle", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_HandleSequences(t *testing.T) {
	server, _ := newTestServer(t)

	// Seed one sequence
	body := `{"scenes": ["scene.a", "scene.b"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/cycle", strings.NewReader(body))
	server.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/sequences", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var mapping map[string]sequencer.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mapping))
	require.Len(t, mapping, 1)

	key := sequencer.Key([]string{"scene.a", "scene.b"})
	assert.Equal(t, 1, mapping[key].Position)
	assert.NotZero(t, mapping[key].LastCalledAt)
}

func TestServer_HandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
