package ha

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StateKind identifies which JSON scalar a StateValue holds
type StateKind int

const (
	StateString StateKind = iota + 1
	StateNumber
	StateBool
)

func (k StateKind) String() string {
	switch k {
	case StateString:
		return "string"
	case StateNumber:
		return "number"
	case StateBool:
		return "bool"
	default:
		return "invalid"
	}
}

// StateValue is the state of an entity. Home Assistant reports it as a string,
// a number or a boolean depending on the integration, so the JSON kind is kept
// as received. A missing or null state is represented by a nil *StateValue.
type StateValue struct {
	kind StateKind
	str  string
	num  float64
	b    bool
}

// StringState returns a string state
func StringState(s string) StateValue {
	return StateValue{kind: StateString, str: s}
}

// NumberState returns a numeric state
func NumberState(n float64) StateValue {
	return StateValue{kind: StateNumber, num: n}
}

// BoolState returns a boolean state
func BoolState(b bool) StateValue {
	return StateValue{kind: StateBool, b: b}
}

// Kind returns the JSON kind held by v
func (v StateValue) Kind() StateKind {
	return v.kind
}

// AsString returns the string payload and whether v holds a string
func (v StateValue) AsString() (string, bool) {
	return v.str, v.kind == StateString
}

// AsNumber returns the numeric payload and whether v holds a number
func (v StateValue) AsNumber() (float64, bool) {
	return v.num, v.kind == StateNumber
}

// AsBool returns the boolean payload and whether v holds a boolean
func (v StateValue) AsBool() (bool, bool) {
	return v.b, v.kind == StateBool
}

// Equal compares kind and payload
func (v StateValue) Equal(other StateValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case StateString:
		return v.str == other.str
	case StateNumber:
		return v.num == other.num
	case StateBool:
		return v.b == other.b
	default:
		return true
	}
}

// String renders the payload the way Home Assistant displays it
func (v StateValue) String() string {
	switch v.kind {
	case StateString:
		return v.str
	case StateNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case StateBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v StateValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case StateString:
		return json.Marshal(v.str)
	case StateNumber:
		return json.Marshal(v.num)
	case StateBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("cannot marshal empty state value")
	}
}

func (v *StateValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty state value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringState(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolState(b)
	case '{', '[':
		return fmt.Errorf("unsupported state value %s: expected string, number or boolean", kindOf(data[0]))
	case 'n':
		// Only reachable when decoding into a non-pointer StateValue.
		return fmt.Errorf("state value is null")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberState(n)
	}
	return nil
}

func kindOf(first byte) string {
	if first == '{' {
		return "object"
	}
	return "array"
}
