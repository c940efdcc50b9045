// Package archive implements a telemetry.Sink that archives step events to
// a Hive-partitioned Lode dataset: the same HiveLayout partition keys and
// JSONL codec lode.LodeClient provides, backed by either a filesystem or S3
// lode.StoreFactory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/flowstate/telemetry"
	"github.com/justapithecus/flowstate/types"
)

// DefaultDataset is the dataset id used when Config.Dataset is empty.
const DefaultDataset = "flowstate"

// recordKind discriminates archived step events from any other record kind
// that might later share the dataset.
const recordKind = "step_event"

// Config configures the archive telemetry sink. Exactly one of Root or
// Bucket selects the storage backend: Root for a filesystem-backed
// dataset (local runs, tests), Bucket for S3.
type Config struct {
	// Dataset is the Lode dataset id (default DefaultDataset).
	Dataset string
	// Root is the filesystem root for an FS-backed dataset.
	Root string
	// Bucket is the S3 bucket for an S3-backed dataset.
	Bucket string
	// Prefix is the key prefix within Bucket.
	Prefix string
	// Region is the AWS region for the S3-backed dataset.
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible providers or
	// local testing (e.g. MinIO).
	Endpoint string
}

// Validate checks that Config names exactly one storage backend.
func (c Config) Validate() error {
	if c.Root == "" && c.Bucket == "" {
		return errors.New("archive: one of Root or Bucket is required")
	}
	if c.Root != "" && c.Bucket != "" {
		return errors.New("archive: Root and Bucket are mutually exclusive")
	}
	return nil
}

// Sink archives StepEvents to a Hive-partitioned Lode dataset, partitioned
// by source/category/day/run_id/event_type.
type Sink struct {
	dataset lode.Dataset
	source  string
}

// New creates an archive sink from cfg. The source label is written as the
// dataset's "source" partition key; pass the owning function's lambda id.
func New(cfg Config, source string) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory, err := storeFactory(cfg)
	if err != nil {
		return nil, err
	}

	return newSinkWithFactory(cfg, source, factory)
}

// NewWithFactory creates an archive sink backed by an arbitrary
// lode.StoreFactory, for tests (lode.NewMemoryFactory()).
func NewWithFactory(cfg Config, source string, factory lode.StoreFactory) (*Sink, error) {
	return newSinkWithFactory(cfg, source, factory)
}

func newSinkWithFactory(cfg Config, source string, factory lode.StoreFactory) (*Sink, error) {
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = DefaultDataset
	}

	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("source", "category", "day", "run_id", "event_type"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: create dataset: %w", err)
	}

	return &Sink{dataset: ds, source: source}, nil
}

func storeFactory(cfg Config) (lode.StoreFactory, error) {
	if cfg.Root != "" {
		return lode.NewFSFactory(cfg.Root), nil
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	s3Client := s3.NewFromConfig(awsCfg, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(s3Client, lodes3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	}, nil
}

// Publish archives event as a single-record write to the dataset. Per the
// telemetry.Sink contract, a returned error is for the caller's own
// logging: it never gates the idempotence protocol.
func (s *Sink) Publish(ctx context.Context, event types.StepEvent) error {
	record := toRecord(event, s.source)
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return fmt.Errorf("archive: write step event: %w", err)
	}
	return nil
}

// Close is a no-op: the underlying Lode dataset has no explicit close in
// the current Lode API.
func (s *Sink) Close() error {
	return nil
}

func toRecord(event types.StepEvent, source string) map[string]any {
	day := time.Now().UTC().Format("2006-01-02")
	if event.Ts != "" {
		if ts, err := time.Parse(time.RFC3339Nano, event.Ts); err == nil {
			day = ts.UTC().Format("2006-01-02")
		}
	}

	return map[string]any{
		"record_kind": recordKind,
		"version":     event.Version,
		"instance_id": event.InstanceID,
		"lambda_id":   event.LambdaID,
		"seq":         event.Seq,
		"type":        string(event.Type),
		"ts":          event.Ts,
		"step_number": event.StepNumber,
		"payload":     event.Payload,

		"source":    source,
		"category":  event.LambdaID,
		"day":       day,
		"run_id":    event.InstanceID,
		"event_type": string(event.Type),
	}
}

var _ telemetry.Sink = (*Sink)(nil)
