// Package ha provides the public API of the Home Assistant REST client.
// Programs outside this module import this package; the implementation lives
// in internal/ha and its types are re-exported here as aliases.
package ha

import (
	"context"

	"hassrest/internal/ha"
)

// Client defines the interface for the Home Assistant REST client.
// This interface matches internal/ha.HAClient and can be used by external packages.
type Client interface {
	PostStates(ctx context.Context, params StateParams) (*EntityState, error)
	PostEvents(ctx context.Context, params EventParams) (*EventFireResult, error)
	PostService(ctx context.Context, params CallServiceParams) ([]EntityState, error)
	PostTemplate(ctx context.Context, params TemplateParams) (string, error)
	PostConfigCheck(ctx context.Context) (*ConfigCheckResult, error)
	GetAPIStatus(ctx context.Context) (*APIStatus, error)
	GetStates(ctx context.Context) ([]EntityState, error)
	GetState(ctx context.Context, entityID string) (*EntityState, error)
}

// Response models.
type (
	EntityState       = ha.EntityState
	Context           = ha.Context
	EventFireResult   = ha.EventFireResult
	ConfigCheckResult = ha.ConfigCheckResult
	APIStatus         = ha.APIStatus
	StateValue        = ha.StateValue
	StateKind         = ha.StateKind
	Timestamp         = ha.Timestamp
)

// Request parameters.
type (
	StateParams       = ha.StateParams
	EventParams       = ha.EventParams
	CallServiceParams = ha.CallServiceParams
	TemplateParams    = ha.TemplateParams
)

// Errors.
type (
	ConfigurationError   = ha.ConfigurationError
	TransportError       = ha.TransportError
	RemoteError          = ha.RemoteError
	DeserializationError = ha.DeserializationError
	ParseError           = ha.ParseError
	FieldError           = ha.FieldError
)

// Client options and instrumentation.
type (
	Option  = ha.Option
	Metrics = ha.Metrics
)

const (
	StateString = ha.StateString
	StateNumber = ha.StateNumber
	StateBool   = ha.StateBool

	ConfigValid   = ha.ConfigValid
	ConfigInvalid = ha.ConfigInvalid
)

var (
	StringState    = ha.StringState
	NumberState    = ha.NumberState
	BoolState      = ha.BoolState
	ParseTimestamp = ha.ParseTimestamp
	NewTimestamp   = ha.NewTimestamp
	NewMetrics     = ha.NewMetrics
	WithHTTPClient = ha.WithHTTPClient
	WithMetrics    = ha.WithMetrics
)
