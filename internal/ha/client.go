package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"hassrest/internal/clock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names used in errors, logs and metrics
const (
	OpPostStates      = "post_states"
	OpPostEvents      = "post_events"
	OpPostService     = "post_service"
	OpPostTemplate    = "post_template"
	OpPostConfigCheck = "post_config_check"
	OpGetAPIStatus    = "get_api_status"
	OpGetStates       = "get_states"
	OpGetState        = "get_state"
)

// HAClient defines the interface for the Home Assistant REST client
type HAClient interface {
	PostStates(ctx context.Context, params StateParams) (*EntityState, error)
	PostEvents(ctx context.Context, params EventParams) (*EventFireResult, error)
	PostService(ctx context.Context, params CallServiceParams) ([]EntityState, error)
	PostTemplate(ctx context.Context, params TemplateParams) (string, error)
	PostConfigCheck(ctx context.Context) (*ConfigCheckResult, error)
	GetAPIStatus(ctx context.Context) (*APIStatus, error)
	GetStates(ctx context.Context) ([]EntityState, error)
	GetState(ctx context.Context, entityID string) (*EntityState, error)
}

// Client implements HAClient over HTTP. It is immutable after construction and
// safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	token      string
	logger     *zap.Logger
	httpClient *http.Client
	metrics    *Metrics
	clock      clock.Clock
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Timeouts are
// configured there; the Client imposes none of its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records every round trip in m
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock sets the clock used to time requests
func WithClock(c clock.Clock) Option {
	return func(cl *Client) {
		if c != nil {
			cl.clock = c
		}
	}
}

// NewClient creates a new Home Assistant REST client. baseURL is the server
// root, e.g. "http://homeassistant.local:8123"; a path prefix is kept.
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigurationError{URL: baseURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigurationError{URL: baseURL, Err: fmt.Errorf("scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{URL: baseURL, Err: errors.New("missing host")}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		logger:     logger,
		httpClient: http.DefaultClient,
		clock:      clock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// PostStates creates or updates the state of params.EntityID
func (c *Client) PostStates(ctx context.Context, params StateParams) (*EntityState, error) {
	body, err := encodeBody(params.body())
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode request: %w", OpPostStates, err)
	}

	data, err := c.do(ctx, OpPostStates, http.MethodPost, c.endpoint("api", "states", params.EntityID), body)
	if err != nil {
		return nil, err
	}

	return decodeEntityState(OpPostStates, data)
}

// PostEvents fires params.EventType with the optional event data
func (c *Client) PostEvents(ctx context.Context, params EventParams) (*EventFireResult, error) {
	body, err := encodeOptionalBody(params.EventData)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode event data: %w", OpPostEvents, err)
	}

	data, err := c.do(ctx, OpPostEvents, http.MethodPost, c.endpoint("api", "events", params.EventType), body)
	if err != nil {
		return nil, err
	}

	var result EventFireResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, newDeserializationError(OpPostEvents, err)
	}
	return &result, nil
}

// PostService calls a service and returns the states it changed, possibly none
func (c *Client) PostService(ctx context.Context, params CallServiceParams) ([]EntityState, error) {
	body, err := encodeOptionalBody(params.ServiceData)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode service data: %w", OpPostService, err)
	}

	data, err := c.do(ctx, OpPostService, http.MethodPost, c.endpoint("api", "services", params.Domain, params.Service), body)
	if err != nil {
		return nil, err
	}

	return decodeEntityStates(OpPostService, data, false)
}

// PostTemplate renders a template and returns the text verbatim
func (c *Client) PostTemplate(ctx context.Context, params TemplateParams) (string, error) {
	body, err := encodeBody(params)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode template: %w", OpPostTemplate, err)
	}

	data, err := c.do(ctx, OpPostTemplate, http.MethodPost, c.endpoint("api", "template"), body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PostConfigCheck asks Home Assistant to validate its configuration
func (c *Client) PostConfigCheck(ctx context.Context) (*ConfigCheckResult, error) {
	data, err := c.do(ctx, OpPostConfigCheck, http.MethodPost, c.endpoint("api", "config", "core", "check_config"), nil)
	if err != nil {
		return nil, err
	}

	var result ConfigCheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, newDeserializationError(OpPostConfigCheck, err)
	}
	return &result, nil
}

// GetAPIStatus checks that the API is up and the token is accepted
func (c *Client) GetAPIStatus(ctx context.Context) (*APIStatus, error) {
	// The API root is "/api/"; the trailing slash is significant.
	data, err := c.do(ctx, OpGetAPIStatus, http.MethodGet, c.endpoint("api")+"/", nil)
	if err != nil {
		return nil, err
	}

	var status APIStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, newDeserializationError(OpGetAPIStatus, err)
	}
	return &status, nil
}

// GetStates retrieves all entity states
func (c *Client) GetStates(ctx context.Context) ([]EntityState, error) {
	data, err := c.do(ctx, OpGetStates, http.MethodGet, c.endpoint("api", "states"), nil)
	if err != nil {
		return nil, err
	}
	return decodeEntityStates(OpGetStates, data, true)
}

// GetState retrieves the state of one entity. An unknown entity yields a
// RemoteError with status 404.
func (c *Client) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	data, err := c.do(ctx, OpGetState, http.MethodGet, c.endpoint("api", "states", entityID), nil)
	if err != nil {
		return nil, err
	}
	return decodeEntityState(OpGetState, data)
}

// do performs one round trip and returns the body of a success response.
// A nil body sends an empty request body.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	requestID := uuid.New().String()
	c.logger.Debug("Sending request",
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", requestID))

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(op, 0, c.clock.Since(start))
		return nil, &TransportError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := c.clock.Since(start)
	c.metrics.observe(op, resp.StatusCode, elapsed)
	if err != nil {
		return nil, &TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("Received response",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
		zap.String("request_id", requestID))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// endpoint joins escaped path segments onto the base URL
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

// encodeBody marshals v without HTML escaping, so templates keep <, > and &
func encodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// encodeOptionalBody returns nil for a payload that encodes to null (nil
// interface, nil map or pointer) so no body is sent
func encodeOptionalBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok && len(raw) == 0 {
		return nil, nil
	}
	body, err := encodeBody(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	return body, nil
}

func decodeEntityState(op string, data []byte) (*EntityState, error) {
	var state EntityState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, newDeserializationError(op, err)
	}
	if err := state.requireComplete(); err != nil {
		return nil, newDeserializationError(op, err)
	}
	return &state, nil
}

// decodeEntityStates decodes a JSON array of states; an empty array gives an
// empty, non-nil slice. complete requires full state objects.
func decodeEntityStates(op string, data []byte, complete bool) ([]EntityState, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, newDeserializationError(op, err)
	}
	if items == nil {
		return nil, newDeserializationError(op, errors.New("expected a JSON array"))
	}

	states := make([]EntityState, 0, len(items))
	for i, item := range items {
		var state EntityState
		err := json.Unmarshal(item, &state)
		if err == nil && complete {
			err = state.requireComplete()
		}
		if err != nil {
			return nil, newDeserializationError(op, &FieldError{Field: fmt.Sprintf("[%d]", i), Raw: string(item), Err: err})
		}
		states = append(states, state)
	}
	return states, nil
}
