// Package notifyredis implements a telemetry.Sink that publishes step
// events over Redis pub/sub: a URL-configured client, a per-publish
// timeout, and an exponential-backoff retry loop, publishing
// msgpack-encoded types.StepEvents.
package notifyredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/flowstate/telemetry"
	"github.com/justapithecus/flowstate/types"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "flowstate:steps"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub telemetry sink.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default
	// DefaultRetries).
	Retries int
}

// Sink publishes StepEvents via Redis PUBLISH, encoded with msgpack.
type Sink struct {
	config Config
	client *redis.Client
}

// New creates a Redis pub/sub telemetry sink from cfg. Returns an error if
// the URL is empty or invalid.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("notifyredis: sink requires a URL")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notifyredis: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("notifyredis: retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}

	return &Sink{config: cfg, client: redis.NewClient(opts)}, nil
}

// Publish sends event as a msgpack-encoded PUBLISH to the configured
// channel, retrying with exponential backoff. Per the telemetry.Sink
// contract, a returned error is for the caller's own logging: it never
// gates the idempotence protocol.
func (s *Sink) Publish(ctx context.Context, event types.StepEvent) error {
	body, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("notifyredis: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + s.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("notifyredis: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("notifyredis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		lastErr = s.client.Publish(publishCtx, s.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("notifyredis: failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the sink's Redis connection.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ telemetry.Sink = (*Sink)(nil)
