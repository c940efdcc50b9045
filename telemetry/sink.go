// Package telemetry defines the best-effort observability tap the Durable
// Client publishes step events to. A Sink never participates in the
// idempotence protocol: the Durable Client and the wrapper discard the error
// a Sink returns, so a Sink failure is never surfaced to the user function.
package telemetry

import (
	"context"

	"github.com/justapithecus/flowstate/types"
)

// Sink publishes StepEvents to a downstream system. Implementations must
// be safe for concurrent use by the single goroutine driving one
// invocation's Durable Client, and must respect context cancellation.
type Sink interface {
	// Publish sends a step event. Errors are for the caller's logging only;
	// Publish must never block past its own internal timeout.
	Publish(ctx context.Context, event types.StepEvent) error

	// Close releases sink resources (network connections, buffers).
	Close() error
}

// Noop discards every event. It is the default Sink so a Client never
// needs to nil-check before publishing.
type Noop struct{}

func (Noop) Publish(context.Context, types.StepEvent) error { return nil }
func (Noop) Close() error                                    { return nil }

var _ Sink = Noop{}
