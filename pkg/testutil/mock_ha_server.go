// Package testutil provides testing utilities for programs built on the
// Home Assistant REST client. It contains a fake Home Assistant REST server
// and helpers for writing integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hassrest/internal/clock"
	"hassrest/internal/ha"

	"github.com/google/uuid"
)

// Event records an event fired through POST /api/events
type Event struct {
	EventType string
	Data      map[string]interface{}
	TimeFired time.Time
}

// MockHAServer simulates the Home Assistant REST API
type MockHAServer struct {
	server       *httptest.Server
	token        string
	states       map[string]*ha.EntityState
	statesMu     sync.RWMutex
	events       []Event
	eventsMu     sync.Mutex
	serviceCalls []ServiceCall // Track all service calls for verification
	callsMu      sync.Mutex    // Protects serviceCalls
	configCheck  ha.ConfigCheckResult
	configMu     sync.RWMutex
	clock        clock.Clock
}

var templateStatesPattern = regexp.MustCompile(`\{\{\s*states\(\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)

// NewMockHAServer creates a new mock HA server accepting the given token
func NewMockHAServer(token string) *MockHAServer {
	return &MockHAServer{
		token:        token,
		states:       make(map[string]*ha.EntityState),
		serviceCalls: make([]ServiceCall, 0),
		configCheck:  ha.ConfigCheckResult{Result: ha.ConfigValid},
		clock:        clock.NewRealClock(),
	}
}

// SetClock sets the clock used for state timestamps and call logs.
// Call it before Start.
func (s *MockHAServer) SetClock(c clock.Clock) {
	s.clock = c
}

// Start starts the mock server on a random local port
func (s *MockHAServer) Start() error {
	if s.server != nil {
		return fmt.Errorf("mock server already started")
	}
	s.server = httptest.NewServer(s.Handler())
	return nil
}

// Stop stops the mock server
func (s *MockHAServer) Stop() error {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	return nil
}

// URL returns the base URL of the running server
func (s *MockHAServer) URL() string {
	if s.server == nil {
		return ""
	}
	return s.server.URL
}

// Client returns an HTTP client configured for the running server
func (s *MockHAServer) Client() *http.Client {
	if s.server == nil {
		return http.DefaultClient
	}
	return s.server.Client()
}

// Handler returns the REST API handler, bearer check included
func (s *MockHAServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{$}", s.handleAPIStatus)
	mux.HandleFunc("GET /api/states", s.handleGetStates)
	mux.HandleFunc("GET /api/states/{entity_id}", s.handleGetState)
	mux.HandleFunc("POST /api/states/{entity_id}", s.handlePostState)
	mux.HandleFunc("POST /api/events/{event_type}", s.handlePostEvent)
	mux.HandleFunc("POST /api/services/{domain}/{service}", s.handlePostService)
	mux.HandleFunc("POST /api/template", s.handlePostTemplate)
	mux.HandleFunc("POST /api/config/core/check_config", s.handleCheckConfig)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, "401: Unauthorized")
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// SetState creates or updates a state. It reports whether the entity was created.
// last_changed is kept when the state string does not change.
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) (*ha.EntityState, bool) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	return s.setStateLocked(entityID, state, attributes)
}

func (s *MockHAServer) setStateLocked(entityID, state string, attributes map[string]interface{}) (*ha.EntityState, bool) {
	if attributes == nil {
		attributes = map[string]interface{}{}
	}

	now := ha.NewTimestamp(s.clock.Now().UTC())
	value := ha.StringState(state)

	oldState, exists := s.states[entityID]
	lastChanged := now
	if exists && oldState.State != nil && oldState.State.Equal(value) {
		lastChanged = oldState.LastChanged
	}

	newState := &ha.EntityState{
		EntityID:     entityID,
		State:        &value,
		Attributes:   attributes,
		LastChanged:  lastChanged,
		LastReported: now,
		LastUpdated:  now,
		Context:      &ha.Context{ID: strings.ReplaceAll(uuid.NewString(), "-", "")},
	}
	s.states[entityID] = newState

	copied := *newState
	return &copied, !exists
}

// GetState retrieves a state, or nil when the entity is unknown
func (s *MockHAServer) GetState(entityID string) *ha.EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[entityID]
	if !ok {
		return nil
	}
	copied := *state
	return &copied
}

// InitializeStates sets up a small house for testing
func (s *MockHAServer) InitializeStates() {
	s.SetState("sun.sun", "above_horizon", map[string]interface{}{
		"friendly_name": "Sun",
		"rising":        false,
	})

	for _, name := range []string{"kitchen", "living_room", "bedroom"} {
		s.SetState(fmt.Sprintf("light.%s", name), "off", map[string]interface{}{
			"friendly_name": strings.ReplaceAll(name, "_", " "),
		})
	}

	for _, name := range []string{"anyone_home", "everyone_asleep", "have_guests"} {
		s.SetState(fmt.Sprintf("input_boolean.%s", name), "off", map[string]interface{}{
			"friendly_name": name,
		})
	}

	s.SetState("switch.coffee_maker", "off", map[string]interface{}{})
	s.SetState("input_number.target_temperature", "21.0", map[string]interface{}{
		"min": 15.0, "max": 28.0, "step": 0.5,
	})
	s.SetState("input_text.day_phase", "morning", map[string]interface{}{})
	s.SetState("sensor.outdoor_temperature", "12.5", map[string]interface{}{
		"unit_of_measurement": "°C",
		"device_class":        "temperature",
	})
}

// SetConfigCheckResult sets the result of POST /api/config/core/check_config
func (s *MockHAServer) SetConfigCheckResult(result ha.ConfigCheckResult) {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.configCheck = result
}

func (s *MockHAServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API running."})
}

func (s *MockHAServer) handleGetStates(w http.ResponseWriter, r *http.Request) {
	s.statesMu.RLock()
	states := make([]*ha.EntityState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
	s.statesMu.RUnlock()

	writeJSON(w, http.StatusOK, states)
}

func (s *MockHAServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.GetState(r.PathValue("entity_id"))
	if state == nil {
		writeMessage(w, http.StatusNotFound, "Entity not found.")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *MockHAServer) handlePostState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State      *string                `json:"state"`
		Attributes map[string]interface{} `json:"attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON specified.")
		return
	}
	if req.State == nil {
		writeMessage(w, http.StatusBadRequest, "No state specified.")
		return
	}

	entityID := r.PathValue("entity_id")
	state, created := s.SetState(entityID, *req.State, req.Attributes)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/states/"+entityID)
	}
	writeJSON(w, status, state)
}

func (s *MockHAServer) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	data, ok := readOptionalObject(w, r, "Event data should be valid JSON.")
	if !ok {
		return
	}

	eventType := r.PathValue("event_type")
	s.eventsMu.Lock()
	s.events = append(s.events, Event{EventType: eventType, Data: data, TimeFired: s.clock.Now()})
	s.eventsMu.Unlock()

	writeMessage(w, http.StatusOK, fmt.Sprintf("Event %s fired.", eventType))
}

func (s *MockHAServer) handlePostService(w http.ResponseWriter, r *http.Request) {
	data, ok := readOptionalObject(w, r, "Data should be valid JSON.")
	if !ok {
		return
	}

	domain := r.PathValue("domain")
	service := r.PathValue("service")

	// Track the service call for test verification
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   s.clock.Now(),
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	s.callsMu.Unlock()

	writeJSON(w, http.StatusOK, s.applyServiceCall(domain, service, data))
}

// applyServiceCall updates states the way the real integrations would and
// returns the states that changed
func (s *MockHAServer) applyServiceCall(domain, service string, data map[string]interface{}) []*ha.EntityState {
	changed := make([]*ha.EntityState, 0)

	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	for _, entityID := range entityIDs(data) {
		oldState, ok := s.states[entityID]
		if !ok {
			continue
		}
		if domain != "homeassistant" && !strings.HasPrefix(entityID, domain+".") {
			continue
		}

		current := ""
		if oldState.State != nil {
			current = oldState.State.String()
		}

		var newState string
		switch {
		case isToggleable(domain) && service == "turn_on":
			newState = "on"
		case isToggleable(domain) && service == "turn_off":
			newState = "off"
		case isToggleable(domain) && service == "toggle":
			newState = "on"
			if current == "on" {
				newState = "off"
			}
		case domain == "input_number" && service == "set_value":
			value, ok := data["value"].(float64)
			if !ok {
				continue
			}
			newState = strconv.FormatFloat(value, 'f', -1, 64)
		case domain == "input_text" && service == "set_value":
			value, ok := data["value"].(string)
			if !ok {
				continue
			}
			newState = value
		default:
			// Unknown services are acknowledged without state changes
			continue
		}

		state, _ := s.setStateLocked(entityID, newState, oldState.Attributes)
		changed = append(changed, state)
	}

	return changed
}

func (s *MockHAServer) handlePostTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template *string `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Template == nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON specified.")
		return
	}

	rendered := templateStatesPattern.ReplaceAllStringFunc(*req.Template, func(match string) string {
		entityID := templateStatesPattern.FindStringSubmatch(match)[1]
		state := s.GetState(entityID)
		if state == nil || state.State == nil {
			return "unknown"
		}
		return state.State.String()
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, rendered)
}

func (s *MockHAServer) handleCheckConfig(w http.ResponseWriter, r *http.Request) {
	s.configMu.RLock()
	result := s.configCheck
	s.configMu.RUnlock()

	writeJSON(w, http.StatusOK, result)
}

// GetEvents returns all fired events since last clear
func (s *MockHAServer) GetEvents() []Event {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

// ClearEvents resets the event log
func (s *MockHAServer) ClearEvents() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.events = nil
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

// FindServiceCall finds the most recent service call matching criteria
// Returns nil if no matching call found
func (s *MockHAServer) FindServiceCall(domain, service string, entityID string) *ServiceCall {
	calls := s.GetServiceCalls()
	if entityID == "" {
		filtered := FilterServiceCalls(calls, domain, service)
		if len(filtered) == 0 {
			return nil
		}
		return &filtered[len(filtered)-1]
	}
	return FindServiceCallWithEntityID(calls, domain, service, entityID)
}

// CountServiceCalls counts service calls matching criteria
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	return len(FilterServiceCalls(s.GetServiceCalls(), domain, service))
}

func isToggleable(domain string) bool {
	switch domain {
	case "homeassistant", "input_boolean", "light", "switch":
		return true
	}
	return false
}

// entityIDs reads entity_id as either a string or a list of strings
func entityIDs(data map[string]interface{}) []string {
	switch v := data["entity_id"].(type) {
	case string:
		return []string{v}
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

// readOptionalObject decodes an optional JSON object body. An empty body yields nil data.
func readOptionalObject(w http.ResponseWriter, r *http.Request, invalidMessage string) (map[string]interface{}, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, invalidMessage)
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		writeMessage(w, http.StatusBadRequest, invalidMessage)
		return nil, false
	}
	return data, true
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
