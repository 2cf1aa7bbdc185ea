package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hassrest/internal/ha"
	"hassrest/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"status"}, &out))
		assert.JSONEq(t, `{"message":"API running."}`, out.String())
	})

	t.Run("state", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetState("sun.sun", ha.StringState("above_horizon"), nil)

		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"state", "sun.sun"}, &out))

		var decoded ha.EntityState
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, "sun.sun", decoded.EntityID)
		assert.True(t, decoded.State.Equal(ha.StringState("above_horizon")))
	})

	t.Run("states", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetState("light.kitchen", ha.StringState("on"), nil)

		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"states"}, &out))

		var decoded []ha.EntityState
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "light.kitchen", decoded[0].EntityID)
	})

	t.Run("set-state with attributes", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"set-state", "sensor.x", "12", `{"unit":"W"}`}, &out))

		calls := mock.GetCallsFor(ha.OpPostStates)
		require.Len(t, calls, 1)
		params := calls[0].Params.(ha.StateParams)
		assert.Equal(t, "sensor.x", params.EntityID)
		assert.Equal(t, "12", params.State)
		assert.Equal(t, map[string]any{"unit": "W"}, params.Attributes)
	})

	t.Run("fire with data", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"fire", "doorbell", `{"door":"front"}`}, &out))
		assert.JSONEq(t, `{"message":"Event doorbell fired."}`, out.String())

		params := mock.GetCallsFor(ha.OpPostEvents)[0].Params.(ha.EventParams)
		assert.Equal(t, json.RawMessage(`{"door":"front"}`), params.EventData)
	})

	t.Run("fire without data", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"fire", "doorbell"}, &out))

		params := mock.GetCallsFor(ha.OpPostEvents)[0].Params.(ha.EventParams)
		assert.Nil(t, params.EventData)
	})

	t.Run("call", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"call", "light", "turn_on", `{"entity_id":"light.kitchen"}`}, &out))
		assert.JSONEq(t, `[]`, out.String())

		params := mock.GetCallsFor(ha.OpPostService)[0].Params.(ha.CallServiceParams)
		assert.Equal(t, "light", params.Domain)
		assert.Equal(t, "turn_on", params.Service)
	})

	t.Run("template prints raw text", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetTemplateFunc(func(string) (string, error) { return "above_horizon", nil })

		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"template", "{{ states('sun.sun') }}"}, &out))
		assert.Equal(t, "above_horizon\n", out.String())
	})

	t.Run("check-config valid", func(t *testing.T) {
		mock := ha.NewMockClient()
		var out bytes.Buffer
		require.NoError(t, execute(ctx, mock, []string{"check-config"}, &out))
		assert.JSONEq(t, `{"result":"valid","errors":null}`, out.String())
	})

	t.Run("check-config invalid", func(t *testing.T) {
		mock := ha.NewMockClient()
		message := "Integration error: darksky"
		mock.SetConfigCheckResult(ha.ConfigCheckResult{Result: ha.ConfigInvalid, Errors: &message})

		var out bytes.Buffer
		err := execute(ctx, mock, []string{"check-config"}, &out)
		assert.ErrorIs(t, err, errConfigInvalid)
		assert.Contains(t, out.String(), "darksky")
	})
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"reboot"}},
		{name: "state without id", args: []string{"state"}},
		{name: "status with extra", args: []string{"status", "now"}},
		{name: "set-state bad attrs", args: []string{"set-state", "sensor.x", "1", "[1]"}},
		{name: "fire bad data", args: []string{"fire", "doorbell", "not json"}},
		{name: "call null data", args: []string{"call", "light", "turn_on", "null"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ha.NewMockClient()
			err := execute(context.Background(), mock, tt.args, &bytes.Buffer{})
			assert.ErrorIs(t, err, errUsage)
			assert.Empty(t, mock.GetCalls(), "no request is made on usage errors")
		})
	}
}

func TestExecute_ClientError(t *testing.T) {
	mock := ha.NewMockClient()
	failure := &ha.RemoteError{Op: ha.OpGetState, StatusCode: 404, Body: `{"message":"Entity not found."}`}
	mock.FailWith(ha.OpGetState, failure)

	var out bytes.Buffer
	err := execute(context.Background(), mock, []string{"state", "sensor.none"}, &out)

	var remoteErr *ha.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 404, remoteErr.StatusCode)
	assert.Empty(t, out.String())
}

func TestRun_AgainstMockServer(t *testing.T) {
	server := testutil.NewMockHAServer("cli-token")
	require.NoError(t, server.Start())
	defer server.Stop()
	server.InitializeStates()

	configPath := filepath.Join(t.TempDir(), "hassrest.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("base_url: \""+server.URL()+"\"\ntoken: cli-token\ntimeout: 5s\nlog_level: error\n"), 0644))

	for _, key := range []string{"HA_URL", "HA_TOKEN", "HA_TIMEOUT", "HA_LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", configPath, "call", "light", "turn_on", `{"entity_id":"light.kitchen"}`}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var changed []ha.EntityState
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &changed))
	require.Len(t, changed, 1)
	assert.Equal(t, "light.kitchen", changed[0].EntityID)
	assert.True(t, changed[0].State.Equal(ha.StringState("on")))

	assert.NotNil(t, server.FindServiceCall("light", "turn_on", "light.kitchen"))
}

func TestRun_Failures(t *testing.T) {
	for _, key := range []string{"HA_URL", "HA_TOKEN", "HA_TIMEOUT", "HA_LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	t.Run("bad flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 2, run([]string{"-nope"}, &stdout, &stderr))
	})

	t.Run("missing configuration", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, run([]string{"status"}, &stdout, &stderr))
	})

	t.Run("usage error", func(t *testing.T) {
		t.Setenv("HA_URL", "http://127.0.0.1:1")
		t.Setenv("HA_TOKEN", "token")

		var stdout, stderr bytes.Buffer
		assert.Equal(t, 2, run([]string{"reboot"}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "unknown command")
	})
}
