// Package integration exercises the public client against the mock Home
// Assistant server end to end.
package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	pkgha "hassrest/pkg/ha"
	"hassrest/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test_token_12345"

func setupTest(t *testing.T) (*testutil.TestEnv, context.Context) {
	env, err := testutil.NewTestEnv(testToken)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)
	return env, context.Background()
}

func stateOf(t *testing.T, client pkgha.Client, entityID string) string {
	t.Helper()
	state, err := client.GetState(context.Background(), entityID)
	require.NoError(t, err)
	require.NotNil(t, state.State)
	return state.State.String()
}

// TestScenario_EveningRoutine drives a small automation through every write endpoint
func TestScenario_EveningRoutine(t *testing.T) {
	env, ctx := setupTest(t)
	client := env.Client

	t.Log("GIVEN: It is morning and the kitchen light is off")
	assert.Equal(t, "morning", stateOf(t, client, "input_text.day_phase"))
	assert.Equal(t, "off", stateOf(t, client, "light.kitchen"))

	t.Log("WHEN: The automation switches to evening")
	_, err := client.PostService(ctx, pkgha.CallServiceParams{
		Domain:      "input_text",
		Service:     "set_value",
		ServiceData: map[string]any{"entity_id": "input_text.day_phase", "value": "evening"},
	})
	require.NoError(t, err)

	changed, err := client.PostService(ctx, pkgha.CallServiceParams{
		Domain:      "light",
		Service:     "turn_on",
		ServiceData: map[string]any{"entity_id": []string{"light.kitchen", "light.living_room"}},
	})
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	fired, err := client.PostEvents(ctx, pkgha.EventParams{
		EventType: "evening_started",
		EventData: map[string]any{"source": "integration"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Event evening_started fired.", fired.Message)

	_, err = client.PostStates(ctx, pkgha.StateParams{
		EntityID:   "sensor.routine_status",
		State:      "evening",
		Attributes: map[string]any{"lights": 2},
	})
	require.NoError(t, err)

	t.Log("THEN: Home Assistant reflects the new phase")
	assert.Equal(t, "evening", stateOf(t, client, "input_text.day_phase"))
	assert.Equal(t, "on", stateOf(t, client, "light.kitchen"))
	assert.Equal(t, "on", stateOf(t, client, "light.living_room"))
	assert.Equal(t, "off", stateOf(t, client, "light.bedroom"))

	rendered, err := client.PostTemplate(ctx, pkgha.TemplateParams{
		Template: "{{ states('input_text.day_phase') }}: {{ states('sensor.routine_status') }}",
	})
	require.NoError(t, err)
	assert.Equal(t, "evening: evening", rendered)

	assert.NotNil(t, testutil.FindServiceCallWithEntityID(env.GetServiceCalls(), "light", "turn_on", "light.living_room"))
	events := env.Server.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "integration", events[0].Data["source"])

	check, err := client.PostConfigCheck(ctx)
	require.NoError(t, err)
	assert.True(t, check.Valid())
}

// TestConcurrentStateWrites validates that the client can be shared between goroutines
func TestConcurrentStateWrites(t *testing.T) {
	env, ctx := setupTest(t)

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entityID := fmt.Sprintf("sensor.concurrent_%02d", i)
			state, err := env.Client.PostStates(ctx, pkgha.StateParams{EntityID: entityID, State: fmt.Sprint(i)})
			if err != nil {
				errs <- err
				return
			}
			if state.EntityID != entityID {
				errs <- fmt.Errorf("got state for %s, want %s", state.EntityID, entityID)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	states, err := env.Client.GetStates(ctx)
	require.NoError(t, err)

	found := 0
	for _, state := range states {
		var idx int
		if _, err := fmt.Sscanf(state.EntityID, "sensor.concurrent_%d", &idx); err == nil {
			found++
			assert.Equal(t, fmt.Sprint(idx), state.State.String())
		}
	}
	assert.Equal(t, writers, found)

	assert.Equal(t, float64(writers), requestCount(t, env, "post_states", "201"))
	assert.Equal(t, 1.0, requestCount(t, env, "get_states", "200"))
}

// requestCount reads hassrest_requests_total for one operation and code
func requestCount(t *testing.T, env *testutil.TestEnv, operation, code string) float64 {
	t.Helper()
	families, err := env.Registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "hassrest_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["operation"] == operation && labels["code"] == code {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
