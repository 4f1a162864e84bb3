package ha

import (
	"fmt"
	"sync"
	"time"
)

// MockClient implements HAClient interface for testing
type MockClient struct {
	states        map[string]*State
	statesMu      sync.RWMutex
	connected     bool
	connMu        sync.RWMutex
	serviceCalls  []ServiceCall
	callsMu       sync.Mutex
	serviceErrors map[string]error
	errorsMu      sync.Mutex
}

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:        make(map[string]*State),
		serviceCalls:  make([]ServiceCall, 0),
		serviceErrors: make(map[string]error),
		connected:     false,
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.connected = false
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetState retrieves a mock state
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}

	return state, nil
}

// GetAllStates retrieves all mock states
func (m *MockClient) GetAllStates() ([]*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}

	return states, nil
}

// CallService records a service call
func (m *MockClient) CallService(domain, service string, data map[string]interface{}) error {
	m.errorsMu.Lock()
	err := m.serviceErrors[domain+"."+service]
	m.errorsMu.Unlock()
	if err != nil {
		return err
	}

	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	// Update mock state based on service call
	if entityID, ok := data["entity_id"].(string); ok {
		m.updateStateFromServiceCall(entityID, domain, service, data)
	}

	return nil
}

// ActivateScene records a scene activation
func (m *MockClient) ActivateScene(sceneID string) error {
	return m.CallService("scene", "turn_on", map[string]interface{}{
		"entity_id": sceneID,
	})
}

// SetInputText sets a mock input_text
func (m *MockClient) SetInputText(name string, value string) error {
	return m.CallService("input_text", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}

// SetState sets a mock state (for testing)
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	now := time.Now()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// SetServiceError makes subsequent calls to domain.service fail with err.
// Pass nil to clear a previously configured failure.
func (m *MockClient) SetServiceError(domain, service string, err error) {
	m.errorsMu.Lock()
	defer m.errorsMu.Unlock()

	if err == nil {
		delete(m.serviceErrors, domain+"."+service)
		return
	}
	m.serviceErrors[domain+"."+service] = err
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = make([]ServiceCall, 0)
}

// updateStateFromServiceCall updates state based on a service call
func (m *MockClient) updateStateFromServiceCall(entityID, domain, service string, data map[string]interface{}) {
	if domain != "input_text" || service != "set_value" {
		return
	}

	value, ok := data["value"].(string)
	if !ok {
		return
	}

	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	now := time.Now()
	var attributes map[string]interface{}
	if oldState := m.states[entityID]; oldState != nil {
		attributes = oldState.Attributes
	}

	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       value,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}
