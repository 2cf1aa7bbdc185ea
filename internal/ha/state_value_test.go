package ha

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  StateValue
	}{
		{name: "string", input: `"above_horizon"`, want: StringState("above_horizon")},
		{name: "empty string", input: `""`, want: StringState("")},
		{name: "numeric string stays string", input: `"42.5"`, want: StringState("42.5")},
		{name: "integer", input: `21`, want: NumberState(21)},
		{name: "fraction", input: `-3.75`, want: NumberState(-3.75)},
		{name: "exponent", input: `1e3`, want: NumberState(1000)},
		{name: "true", input: `true`, want: BoolState(true)},
		{name: "false", input: `false`, want: BoolState(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StateValue
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StateValue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStateValue_Unsupported(t *testing.T) {
	for _, input := range []string{`{"on":true}`, `[1,2]`} {
		t.Run(input, func(t *testing.T) {
			var got StateValue
			err := json.Unmarshal([]byte(input), &got)
			assert.Error(t, err)
		})
	}
}

func TestStateValue_RoundTrip(t *testing.T) {
	values := []StateValue{
		StringState("cool"),
		StringState("on"),
		NumberState(0),
		NumberState(23.4),
		NumberState(-17),
		BoolState(true),
		BoolState(false),
	}

	for _, v := range values {
		t.Run(v.Kind().String()+"/"+v.String(), func(t *testing.T) {
			encoded, err := json.Marshal(v)
			require.NoError(t, err)

			var decoded StateValue
			require.NoError(t, json.Unmarshal(encoded, &decoded))
			assert.True(t, v.Equal(decoded), "%s decoded to %#v", encoded, decoded)
		})
	}
}

func TestStateValue_NullAndAbsent(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		var holder struct {
			State *StateValue `json:"state"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"state":null}`), &holder))
		assert.Nil(t, holder.State)
	})

	t.Run("absent", func(t *testing.T) {
		var state EntityState
		require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"sensor.unknown"}`), &state))
		assert.Nil(t, state.State)
	})

	t.Run("nil encodes as null", func(t *testing.T) {
		encoded, err := json.Marshal(struct {
			State *StateValue `json:"state"`
		}{})
		require.NoError(t, err)
		assert.Equal(t, `{"state":null}`, string(encoded))
	})
}

func TestStateValue_Equal(t *testing.T) {
	assert.True(t, StringState("on").Equal(StringState("on")))
	assert.False(t, StringState("on").Equal(StringState("off")))
	assert.False(t, StringState("1").Equal(NumberState(1)), "kind is part of equality")
	assert.False(t, StringState("true").Equal(BoolState(true)))
	assert.True(t, NumberState(2.5).Equal(NumberState(2.5)))
	assert.False(t, BoolState(true).Equal(BoolState(false)))
}

func TestStateValue_Accessors(t *testing.T) {
	s, ok := StringState("heat").AsString()
	assert.True(t, ok)
	assert.Equal(t, "heat", s)

	_, ok = StringState("heat").AsNumber()
	assert.False(t, ok)

	n, ok := NumberState(19.5).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 19.5, n)

	b, ok := BoolState(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, "19.5", NumberState(19.5).String())
	assert.Equal(t, "false", BoolState(false).String())
	assert.Equal(t, StateNumber, NumberState(1).Kind())
}

func TestStateValue_MarshalEmpty(t *testing.T) {
	_, err := json.Marshal(StateValue{})
	assert.Error(t, err)
}
