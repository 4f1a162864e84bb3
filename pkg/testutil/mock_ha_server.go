// Package testutil provides testing utilities for the scene sequencer.
// It contains a mock Home Assistant WebSocket server and a TestEnv harness
// for writing integration tests against the full stack.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MockHAServer simulates a Home Assistant WebSocket server
type MockHAServer struct {
	server       *http.Server
	addr         string
	states       map[string]*EntityState
	statesMu     sync.RWMutex
	connections  []*connWrapper
	connsMu      sync.Mutex
	token        string
	serviceCalls []ServiceCall
	callsMu      sync.Mutex
	failScenes   map[string]bool
	failMu       sync.Mutex
}

// EntityState represents a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Message represents a WebSocket message
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MessageError   `json:"error,omitempty"`
}

// MessageError represents an error payload in a response
type MessageError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// CallServiceRequest represents a service call
type CallServiceRequest struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

// GetStatesRequest represents a get_states request
type GetStatesRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// NewMockHAServer creates a new mock HA server
func NewMockHAServer(addr, token string) *MockHAServer {
	return &MockHAServer{
		addr:         addr,
		states:       make(map[string]*EntityState),
		connections:  make([]*connWrapper, 0),
		token:        token,
		serviceCalls: make([]ServiceCall, 0),
		failScenes:   make(map[string]bool),
	}
}

// Start starts the mock server
func (s *MockHAServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("Mock HA server error: %v", err)
		}
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop stops the mock server
func (s *MockHAServer) Stop() error {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// SetState sets an entity state
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	now := time.Now()
	s.states[entityID] = &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// GetState retrieves an entity state
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// FailScene makes activations of the given scene return an error
func (s *MockHAServer) FailScene(sceneID string, fail bool) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if fail {
		s.failScenes[sceneID] = true
	} else {
		delete(s.failScenes, sceneID)
	}
}

// handleWebSocket handles WebSocket connections
func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w.conn == conn {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	// Send auth_required
	wrapper.writeMu.Lock()
	conn.WriteJSON(Message{Type: "auth_required"})
	wrapper.writeMu.Unlock()

	// Receive auth
	var authMsg AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		log.Printf("Failed to read auth: %v", err)
		return
	}

	// Validate token
	if authMsg.AccessToken != s.token {
		wrapper.writeMu.Lock()
		conn.WriteJSON(Message{Type: "auth_invalid"})
		wrapper.writeMu.Unlock()
		return
	}

	// Send auth_ok
	wrapper.writeMu.Lock()
	conn.WriteJSON(Message{Type: "auth_ok"})
	wrapper.writeMu.Unlock()

	// Handle messages
	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var baseMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			continue
		}

		switch baseMsg.Type {
		case "get_states":
			s.handleGetStates(wrapper, msg)
		case "call_service":
			s.handleCallService(wrapper, msg)
		}
	}
}

// handleGetStates handles get_states requests
func (s *MockHAServer) handleGetStates(wrapper *connWrapper, msg json.RawMessage) {
	var req GetStatesRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	s.statesMu.RLock()
	states := make([]*EntityState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	s.statesMu.RUnlock()

	statesJSON, _ := json.Marshal(states)
	success := true
	wrapper.writeMu.Lock()
	wrapper.conn.WriteJSON(Message{
		ID:      req.ID,
		Type:    "result",
		Success: &success,
		Result:  statesJSON,
	})
	wrapper.writeMu.Unlock()
}

// handleCallService handles service calls
func (s *MockHAServer) handleCallService(wrapper *connWrapper, msg json.RawMessage) {
	var req CallServiceRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	entityID, _ := req.ServiceData["entity_id"].(string)

	// Configured scene failures respond with an error result
	if req.Domain == "scene" {
		s.failMu.Lock()
		shouldFail := s.failScenes[entityID]
		s.failMu.Unlock()

		if shouldFail {
			success := false
			wrapper.writeMu.Lock()
			wrapper.conn.WriteJSON(Message{
				ID:      req.ID,
				Type:    "result",
				Success: &success,
				Error: &MessageError{
					Code:    "not_found",
					Message: fmt.Sprintf("Entity %s not found", entityID),
				},
			})
			wrapper.writeMu.Unlock()
			return
		}
	}

	// Track the service call for test verification
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	s.callsMu.Unlock()

	switch req.Domain {
	case "input_text":
		if value, ok := req.ServiceData["value"].(string); ok {
			s.statesMu.RLock()
			oldState := s.states[entityID]
			s.statesMu.RUnlock()

			var attributes map[string]interface{}
			if oldState != nil {
				attributes = oldState.Attributes
			}
			s.SetState(entityID, value, attributes)
		}

	case "scene":
		// Scene activations are fire-and-forget, just acknowledge

	default:
		// Unknown service domain - still acknowledge to prevent timeouts
	}

	success := true
	wrapper.writeMu.Lock()
	wrapper.conn.WriteJSON(Message{
		ID:      req.ID,
		Type:    "result",
		Success: &success,
	})
	wrapper.writeMu.Unlock()
}

// GetServiceCalls returns all service calls since last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]ServiceCall, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}
