// Package testutil provides testing utilities for programs built on the client.
// This file provides a TestEnv for integration testing.
package testutil

import (
	"fmt"

	pkgha "hassrest/pkg/ha"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// TestEnv provides a complete test environment: a running mock HA server and
// a real client pointed at it, with metrics recorded in a private registry.
type TestEnv struct {
	Server   *MockHAServer
	Client   pkgha.Client
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *pkgha.Metrics
}

// NewTestEnv creates a fully configured test environment with a mock HA
// server seeded by InitializeStates and a connected client.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv("test_token")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
//
//	state, err := env.Client.GetState(ctx, "light.kitchen")
func NewTestEnv(token string) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	// Start mock HA server
	server := NewMockHAServer(token)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}
	server.InitializeStates()

	registry := prometheus.NewRegistry()
	metrics := pkgha.NewMetrics(registry)

	client, err := pkgha.NewClient(server.URL(), token, logger,
		pkgha.WithHTTPClient(server.Client()),
		pkgha.WithMetrics(metrics),
	)
	if err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &TestEnv{
		Server:   server,
		Client:   client,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics,
	}, nil
}

// Cleanup stops the mock server.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Stop()
	}
	if e.Logger != nil {
		e.Logger.Sync()
	}
}

// GetServiceCalls returns all service calls made to the mock server.
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.Server.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls.
func (e *TestEnv) ClearServiceCalls() {
	e.Server.ClearServiceCalls()
}
