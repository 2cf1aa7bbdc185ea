package ha

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errMissingField = errors.New("missing required field")
	errNotObject    = errors.New("expected a JSON object")
)

// ConfigurationError is returned by NewClient when the base URL is unusable.
// No request is attempted.
type ConfigurationError struct {
	URL string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid base URL %q: %v", e.URL, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure of the HTTP round trip itself (connection
// refused, DNS, cancellation, transport timeout).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is returned when Home Assistant answers with a non-success status
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: Home Assistant returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: Home Assistant returned status %d: %s", e.Op, e.StatusCode, body)
}

// DeserializationError is returned when a success response does not have the
// expected shape. Field is the dotted path of the offending member (empty when
// the document itself is malformed) and Raw its raw JSON text.
type DeserializationError struct {
	Op    string
	Field string
	Raw   string
	Err   error
}

func (e *DeserializationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: failed to decode response", e.Op)
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Raw != "" {
		fmt.Fprintf(&b, " (value %s)", e.Raw)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// ParseError is returned for timestamps that lack a date, time or UTC offset
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError locates a decoding failure inside a JSON document. Nested
// FieldErrors form a path such as "context.id" or "[2].state".
type FieldError struct {
	Field string
	Raw   string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Path(), e.cause())
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Path returns the dotted path down to the innermost failing field
func (e *FieldError) Path() string {
	path := e.Field
	var inner *FieldError
	for err := e.Err; errors.As(err, &inner); err = inner.Err {
		if strings.HasPrefix(inner.Field, "[") {
			path += inner.Field
		} else {
			path += "." + inner.Field
		}
	}
	return path
}

// innermost returns the deepest FieldError in the chain
func (e *FieldError) innermost() *FieldError {
	last := e
	var inner *FieldError
	for err := e.Err; errors.As(err, &inner); err = inner.Err {
		last = inner
	}
	return last
}

func (e *FieldError) cause() error {
	return e.innermost().Err
}

// newDeserializationError builds the error for operation op. Field context is
// taken from the innermost FieldError, if any.
func newDeserializationError(op string, err error) *DeserializationError {
	derr := &DeserializationError{Op: op, Err: err}

	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		innermost := fieldErr.innermost()
		derr.Field = fieldErr.Path()
		derr.Raw = innermost.Raw
		derr.Err = innermost.Err
	}
	return derr
}
