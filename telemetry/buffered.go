package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/flowstate/log"
	"github.com/justapithecus/flowstate/types"
)

// ErrBufferFull is returned by BufferedSink.Publish when the buffer is at
// capacity and Flush has not been called.
var ErrBufferFull = errors.New("telemetry: buffer full")

// BufferedConfig configures a BufferedSink.
type BufferedConfig struct {
	// MaxBufferEvents bounds how many events accumulate before Publish
	// starts returning ErrBufferFull. Zero means unbounded (not
	// recommended for a long-running host).
	MaxBufferEvents int

	// Logger is optional; if nil, flush failures are silently dropped.
	Logger *log.Logger
}

// BufferedSink accumulates StepEvents in memory and forwards them to an
// underlying Sink in a single batched Flush call, trading immediacy for
// fewer round-trips to the downstream system: a bounded buffer, an
// explicit Flush, and an error counter, with no drop-by-event-type rules
// since every StepEvent is equally droppable and telemetry never gates
// correctness.
type BufferedSink struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex
	buffer []types.StepEvent
	errs   int64
}

// NewBufferedSink wraps sink with a bounded, flush-on-demand buffer.
func NewBufferedSink(sink Sink, config BufferedConfig) *BufferedSink {
	return &BufferedSink{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]types.StepEvent, 0, max(config.MaxBufferEvents, 16)),
	}
}

// Publish appends event to the buffer. It returns ErrBufferFull instead of
// blocking when MaxBufferEvents is reached and positive; callers are
// expected to treat that as "drop and move on" per the best-effort
// telemetry contract.
func (b *BufferedSink) Publish(_ context.Context, event types.StepEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxBufferEvents > 0 && len(b.buffer) >= b.config.MaxBufferEvents {
		return ErrBufferFull
	}
	b.buffer = append(b.buffer, event)
	return nil
}

// Flush publishes every buffered event to the underlying sink, one at a
// time, and clears the buffer regardless of per-event failures (telemetry
// never blocks correctness on a downstream outage).
func (b *BufferedSink) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.buffer
	b.buffer = make([]types.StepEvent, 0, cap(pending))
	b.mu.Unlock()

	var lastErr error
	for _, ev := range pending {
		if err := b.sink.Publish(ctx, ev); err != nil {
			lastErr = err
			b.mu.Lock()
			b.errs++
			b.mu.Unlock()
			if b.logger != nil {
				b.logger.Warnw("telemetry: flush failed to publish event", "err", err, "instance_id", ev.InstanceID)
			}
		}
	}
	return lastErr
}

// Close flushes any remaining buffered events and closes the underlying
// sink.
func (b *BufferedSink) Close() error {
	_ = b.Flush(context.Background())
	return b.sink.Close()
}

// Errors reports how many Publish calls during Flush have failed over this
// BufferedSink's lifetime.
func (b *BufferedSink) Errors() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs
}

var _ Sink = (*BufferedSink)(nil)
