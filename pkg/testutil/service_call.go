package testutil

import "time"

// ServiceCall records a service call for testing/verification
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// FilterServiceCalls filters service calls by domain and service
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	var filtered []ServiceCall
	for _, call := range calls {
		if call.Domain == domain && call.Service == service {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// ActivatedScenes returns the entity IDs of all scene.turn_on calls in order
func ActivatedScenes(calls []ServiceCall) []string {
	var scenes []string
	for _, call := range FilterServiceCalls(calls, "scene", "turn_on") {
		if entityID, ok := call.ServiceData["entity_id"].(string); ok {
			scenes = append(scenes, entityID)
		}
	}
	return scenes
}
