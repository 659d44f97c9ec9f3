// Package lifecycle orchestrates startup and shutdown of the long-running
// components cmd/topolane wires together (tracing, monitor, governor
// expiry sweep, metrics server), starting each only after its
// declared dependencies are running and stopping them in reverse order.
package lifecycle

import "context"

// Component is a long-running piece of the platform the lifecycle Manager
// can start and stop in dependency order.
type Component interface {
	// Start initializes and starts the component. Must be idempotent.
	Start(ctx context.Context) error

	// Stop gracefully stops the component, respecting ctx's deadline.
	Stop(ctx context.Context) error

	// Name identifies the component in logs and error messages.
	Name() string
}
