package ha

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"hassrest/internal/clock"
)

// MockClient implements HAClient interface for testing.
// It keeps states in memory, records every call and can be told to fail.
type MockClient struct {
	states   map[string]*EntityState
	statesMu sync.RWMutex

	calls   []Call
	callsMu sync.Mutex

	templateFunc func(template string) (string, error)
	configCheck  ConfigCheckResult
	errs         map[string]error
	errsMu       sync.RWMutex
	clock        clock.Clock
}

// Call records one MockClient operation for testing
type Call struct {
	Op     string
	Params any
	Time   time.Time
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:      make(map[string]*EntityState),
		calls:       make([]Call, 0),
		configCheck: ConfigCheckResult{Result: ConfigValid},
		errs:        make(map[string]error),
		clock:       clock.NewRealClock(),
	}
}

// SetClock sets the clock used for state timestamps and call times
func (m *MockClient) SetClock(c clock.Clock) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	m.clock = c
}

// SetState stores a state as if Home Assistant reported it
func (m *MockClient) SetState(entityID string, state StateValue, attributes map[string]any) *EntityState {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	return m.setStateLocked(entityID, &state, attributes)
}

func (m *MockClient) setStateLocked(entityID string, state *StateValue, attributes map[string]any) *EntityState {
	if attributes == nil {
		attributes = map[string]any{}
	}

	current := m.clock.Now()
	now := NewTimestamp(current)
	lastChanged := now
	if old, ok := m.states[entityID]; ok && sameState(old.State, state) {
		lastChanged = old.LastChanged
	}

	s := &EntityState{
		EntityID:     entityID,
		State:        state,
		Attributes:   attributes,
		LastChanged:  lastChanged,
		LastReported: now,
		LastUpdated:  now,
		Context:      &Context{ID: fmt.Sprintf("mock-%d", current.UnixNano())},
	}
	m.states[entityID] = s
	return s
}

func sameState(a, b *StateValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// FailWith makes every subsequent call of op return err. A nil err clears it.
func (m *MockClient) FailWith(op string, err error) {
	m.errsMu.Lock()
	defer m.errsMu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// SetTemplateFunc replaces the default template renderer, which echoes the template
func (m *MockClient) SetTemplateFunc(fn func(template string) (string, error)) {
	m.templateFunc = fn
}

// SetConfigCheckResult sets the result returned by PostConfigCheck
func (m *MockClient) SetConfigCheckResult(result ConfigCheckResult) {
	m.configCheck = result
}

// record logs the call and returns the configured failure for op, if any
func (m *MockClient) record(op string, params any) error {
	m.statesMu.RLock()
	now := m.clock.Now()
	m.statesMu.RUnlock()

	m.callsMu.Lock()
	m.calls = append(m.calls, Call{Op: op, Params: params, Time: now})
	m.callsMu.Unlock()

	m.errsMu.RLock()
	defer m.errsMu.RUnlock()
	return m.errs[op]
}

// PostStates stores the state and returns it
func (m *MockClient) PostStates(ctx context.Context, params StateParams) (*EntityState, error) {
	if err := m.record(OpPostStates, params); err != nil {
		return nil, err
	}
	state := StringState(params.State)
	return m.SetState(params.EntityID, state, params.Attributes), nil
}

// PostEvents records the event
func (m *MockClient) PostEvents(ctx context.Context, params EventParams) (*EventFireResult, error) {
	if err := m.record(OpPostEvents, params); err != nil {
		return nil, err
	}
	return &EventFireResult{Message: fmt.Sprintf("Event %s fired.", params.EventType)}, nil
}

// PostService records the service call; it changes no states
func (m *MockClient) PostService(ctx context.Context, params CallServiceParams) ([]EntityState, error) {
	if err := m.record(OpPostService, params); err != nil {
		return nil, err
	}
	return []EntityState{}, nil
}

// PostTemplate renders through the template func, echoing the input by default
func (m *MockClient) PostTemplate(ctx context.Context, params TemplateParams) (string, error) {
	if err := m.record(OpPostTemplate, params); err != nil {
		return "", err
	}
	if m.templateFunc != nil {
		return m.templateFunc(params.Template)
	}
	return params.Template, nil
}

// PostConfigCheck returns the configured result, "valid" by default
func (m *MockClient) PostConfigCheck(ctx context.Context) (*ConfigCheckResult, error) {
	if err := m.record(OpPostConfigCheck, nil); err != nil {
		return nil, err
	}
	result := m.configCheck
	return &result, nil
}

// GetAPIStatus reports the API as running
func (m *MockClient) GetAPIStatus(ctx context.Context) (*APIStatus, error) {
	if err := m.record(OpGetAPIStatus, nil); err != nil {
		return nil, err
	}
	return &APIStatus{Message: "API running."}, nil
}

// GetStates returns copies of all stored states
func (m *MockClient) GetStates(ctx context.Context) ([]EntityState, error) {
	if err := m.record(OpGetStates, nil); err != nil {
		return nil, err
	}

	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]EntityState, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, *state)
	}
	return states, nil
}

// GetState returns a stored state or a 404 RemoteError
func (m *MockClient) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	if err := m.record(OpGetState, entityID); err != nil {
		return nil, err
	}

	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, &RemoteError{Op: OpGetState, StatusCode: http.StatusNotFound, Body: `{"message":"Entity not found."}`}
	}
	s := *state
	return &s, nil
}

// GetCalls returns all recorded calls
func (m *MockClient) GetCalls() []Call {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]Call, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// GetCallsFor returns the recorded calls of one operation
func (m *MockClient) GetCallsFor(op string) []Call {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	var calls []Call
	for _, call := range m.calls {
		if call.Op == op {
			calls = append(calls, call)
		}
	}
	return calls
}

// ClearCalls clears the call history
func (m *MockClient) ClearCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = make([]Call, 0)
}

var _ HAClient = (*MockClient)(nil)
var _ HAClient = (*Client)(nil)
