package ha

import (
	"context"

	"hassrest/internal/ha"

	"go.uber.org/zap"
)

// ClientAdapter wraps internal ha.HAClient to implement pkg ha.Client
type ClientAdapter struct {
	internal ha.HAClient
}

// NewClient creates a REST client for the Home Assistant instance at baseURL.
// logger may be nil.
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) (Client, error) {
	c, err := ha.NewClient(baseURL, token, logger, opts...)
	if err != nil {
		return nil, err
	}
	return WrapClient(c), nil
}

// WrapClient wraps an internal ha.HAClient to implement the pkg ha.Client interface
func WrapClient(c ha.HAClient) Client {
	return &ClientAdapter{internal: c}
}

// UnwrapClient returns the underlying internal client if available
func UnwrapClient(c Client) ha.HAClient {
	if adapter, ok := c.(*ClientAdapter); ok {
		return adapter.internal
	}
	return nil
}

func (a *ClientAdapter) PostStates(ctx context.Context, params StateParams) (*EntityState, error) {
	return a.internal.PostStates(ctx, params)
}

func (a *ClientAdapter) PostEvents(ctx context.Context, params EventParams) (*EventFireResult, error) {
	return a.internal.PostEvents(ctx, params)
}

func (a *ClientAdapter) PostService(ctx context.Context, params CallServiceParams) ([]EntityState, error) {
	return a.internal.PostService(ctx, params)
}

func (a *ClientAdapter) PostTemplate(ctx context.Context, params TemplateParams) (string, error) {
	return a.internal.PostTemplate(ctx, params)
}

func (a *ClientAdapter) PostConfigCheck(ctx context.Context) (*ConfigCheckResult, error) {
	return a.internal.PostConfigCheck(ctx)
}

func (a *ClientAdapter) GetAPIStatus(ctx context.Context) (*APIStatus, error) {
	return a.internal.GetAPIStatus(ctx)
}

func (a *ClientAdapter) GetStates(ctx context.Context) ([]EntityState, error) {
	return a.internal.GetStates(ctx)
}

func (a *ClientAdapter) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	return a.internal.GetState(ctx, entityID)
}
