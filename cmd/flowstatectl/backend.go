package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/flowstate/flowconfig"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/kv/dynamo"
	"github.com/justapithecus/flowstate/kv/memkv"
	"github.com/justapithecus/flowstate/telemetry"
	"github.com/justapithecus/flowstate/telemetry/archive"
	"github.com/justapithecus/flowstate/telemetry/notifyredis"
)

// loadConfig resolves the --config flag against flowconfig.Load, falling
// back to flowconfig.Default() when unset.
func loadConfig(c *cli.Context) (*flowconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return flowconfig.Default(), nil
	}
	return flowconfig.Load(path)
}

// buildStore constructs the kv.Store named by --backend. "memory" (the
// default) is an in-process memkv.Store, useful for local smoke-testing
// without a real backend; "dynamodb" dials DynamoDB (or DynamoDB Local via
// cfg.EndpointURL) using cfg.Region/cfg.EndpointURL.
func buildStore(ctx context.Context, c *cli.Context, cfg *flowconfig.Config) (kv.Store, error) {
	switch backend := c.String("backend"); backend {
	case "", "memory":
		return memkv.New(), nil
	case "dynamodb":
		store, err := dynamo.New(ctx, dynamo.Config{Region: cfg.Region, Endpoint: cfg.EndpointURL})
		if err != nil {
			return nil, fmt.Errorf("connect to dynamodb: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown --backend %q (supported: memory, dynamodb)", backend)
	}
}

// buildSink constructs the telemetry.Sink named by cfg.Telemetry.Kind.
func buildSink(cfg *flowconfig.Config, source string) (telemetry.Sink, error) {
	switch cfg.Telemetry.Kind {
	case "", flowconfig.TelemetryNone:
		return telemetry.Noop{}, nil
	case flowconfig.TelemetryRedis:
		sink, err := notifyredis.New(notifyredis.Config{
			URL:     cfg.Telemetry.Redis.URL,
			Channel: cfg.Telemetry.Redis.Channel,
		})
		if err != nil {
			return nil, fmt.Errorf("build redis telemetry sink: %w", err)
		}
		return sink, nil
	case flowconfig.TelemetryArchive:
		sink, err := archive.New(archive.Config{
			Dataset:  cfg.Telemetry.Archive.Dataset,
			Root:     cfg.Telemetry.Archive.Root,
			Bucket:   cfg.Telemetry.Archive.Bucket,
			Prefix:   cfg.Telemetry.Archive.Prefix,
			Region:   cfg.Telemetry.Archive.Region,
			Endpoint: cfg.Telemetry.Archive.Endpoint,
		}, source)
		if err != nil {
			return nil, fmt.Errorf("build archive telemetry sink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown telemetry kind %q (supported: none, redis, archive)", cfg.Telemetry.Kind)
	}
}
