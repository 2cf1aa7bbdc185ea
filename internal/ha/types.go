package ha

import (
	"encoding/json"
)

// EntityState represents an entity state as returned by Home Assistant.
//
// LastChanged is expected to be no later than LastUpdated; the client does not
// check it.
type EntityState struct {
	EntityID     string         `json:"entity_id"`
	State        *StateValue    `json:"state"`
	Attributes   map[string]any `json:"attributes"`
	LastChanged  Timestamp      `json:"last_changed"`
	LastReported Timestamp      `json:"last_reported"`
	LastUpdated  Timestamp      `json:"last_updated"`
	Context      *Context       `json:"context,omitempty"`
}

// UnmarshalJSON decodes an entity state field by field so failures name the
// offending field. Only entity_id is required; the other fields are absent in
// some responses (service call results omit timestamps and context).
func (e *EntityState) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	var out EntityState
	if err := fields.required("entity_id", &out.EntityID); err != nil {
		return err
	}
	if err := fields.optional("state", &out.State); err != nil {
		return err
	}
	if err := fields.optional("attributes", &out.Attributes); err != nil {
		return err
	}
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	if err := fields.optional("last_changed", &out.LastChanged); err != nil {
		return err
	}
	if err := fields.optional("last_reported", &out.LastReported); err != nil {
		return err
	}
	if err := fields.optional("last_updated", &out.LastUpdated); err != nil {
		return err
	}
	if err := fields.optional("context", &out.Context); err != nil {
		return err
	}

	*e = out
	return nil
}

// requireComplete checks the fields present in every full state object, as
// returned by the states endpoints.
func (e *EntityState) requireComplete() error {
	if e.LastChanged.IsZero() {
		return &FieldError{Field: "last_changed", Err: errMissingField}
	}
	if e.LastUpdated.IsZero() {
		return &FieldError{Field: "last_updated", Err: errMissingField}
	}
	if e.Context == nil {
		return &FieldError{Field: "context", Err: errMissingField}
	}
	return nil
}

// Context represents the context of a state change
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

func (c *Context) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	var out Context
	if err := fields.required("id", &out.ID); err != nil {
		return err
	}
	if err := fields.optional("parent_id", &out.ParentID); err != nil {
		return err
	}
	if err := fields.optional("user_id", &out.UserID); err != nil {
		return err
	}

	*c = out
	return nil
}

// EventFireResult is the confirmation returned when an event is fired
type EventFireResult struct {
	Message string `json:"message"`
}

func (r *EventFireResult) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	return fields.required("message", &r.Message)
}

// APIStatus is the response of the API root endpoint
type APIStatus struct {
	Message string `json:"message"`
}

func (s *APIStatus) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	return fields.required("message", &s.Message)
}

// Config check outcomes reported by Home Assistant. Result is kept as a plain
// string so unknown values are passed through.
const (
	ConfigValid   = "valid"
	ConfigInvalid = "invalid"
)

// ConfigCheckResult is the outcome of a configuration check.
// Errors is only set when Result is "invalid".
type ConfigCheckResult struct {
	Result string  `json:"result"`
	Errors *string `json:"errors"`
}

func (r *ConfigCheckResult) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	var out ConfigCheckResult
	if err := fields.required("result", &out.Result); err != nil {
		return err
	}
	if err := fields.optional("errors", &out.Errors); err != nil {
		return err
	}

	*r = out
	return nil
}

// Valid reports whether Home Assistant accepted the configuration
func (r *ConfigCheckResult) Valid() bool {
	return r.Result == ConfigValid
}

// StateParams creates or updates an entity state.
// EntityID is used as a URL path segment.
type StateParams struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// body returns the request payload. Attributes are always sent, as {} when empty.
func (p StateParams) body() any {
	attributes := p.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	return struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}{
		State:      p.State,
		Attributes: attributes,
	}
}

// EventParams fires an event. A nil EventData sends an empty body.
type EventParams struct {
	EventType string
	EventData any
}

// CallServiceParams calls domain.service. A nil ServiceData sends an empty body.
type CallServiceParams struct {
	Domain      string
	Service     string
	ServiceData any
}

// TemplateParams renders a template server side
type TemplateParams struct {
	Template string `json:"template"`
}

// rawObject holds the members of a JSON object for field-wise decoding
type rawObject map[string]json.RawMessage

func decodeObject(data []byte) (rawObject, error) {
	var fields rawObject
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

// required decodes a member that must be present and non-null
func (o rawObject) required(name string, dst any) error {
	raw, ok := o[name]
	if !ok || string(raw) == "null" {
		return &FieldError{Field: name, Err: errMissingField}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &FieldError{Field: name, Raw: string(raw), Err: err}
	}
	return nil
}

// optional decodes a member if present; dst keeps its zero value otherwise
func (o rawObject) optional(name string, dst any) error {
	raw, ok := o[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &FieldError{Field: name, Raw: string(raw), Err: err}
	}
	return nil
}
