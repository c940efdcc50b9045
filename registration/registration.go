// Package registration implements Function Registration: one-shot,
// idempotent provisioning of the three system log tables a function needs
// before it can be wrapped. It runs out-of-band, never on a durable
// invocation's hot path — typically from an operator's bootstrap tooling or
// the cmd/flowstatectl register subcommand.
package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/log"
)

// PollInterval is the fixed backoff between DescribeTableStatus polls while
// waiting for a newly created table to become Active: unbounded retries,
// bounded only by context cancellation.
const PollInterval = 5 * time.Second

// Register provisions read_log_{F}, invoke_log_{F}, and intent_log_{F} for
// lambdaID against store, then waits for all three to reach kv.TableStatusActive.
// CreateTable failures that indicate the table already exists are swallowed
// (idempotent); any other CreateTable or polling error aborts.
func Register(ctx context.Context, store kv.Store, lambdaID string, logger *log.Logger) error {
	if logger == nil {
		logger = log.NewLogger(log.Context{LambdaID: lambdaID})
	}

	schemas := []kv.TableSchema{
		readLogSchema(lambdaID),
		invokeLogSchema(lambdaID),
		intentLogSchema(lambdaID),
	}

	for _, schema := range schemas {
		if err := createIdempotent(ctx, store, schema, logger); err != nil {
			return err
		}
	}
	for _, schema := range schemas {
		if err := waitForActive(ctx, store, schema.Table, logger); err != nil {
			return err
		}
	}
	return nil
}

func readLogSchema(lambdaID string) kv.TableSchema {
	return kv.TableSchema{
		Table:    env.TableName(lambdaID, env.ReadLogPrefix),
		HashKey:  kv.KeyAttribute{Name: "InstanceId", Type: kv.AttributeTypeString},
		RangeKey: &kv.KeyAttribute{Name: "StepNumber", Type: kv.AttributeTypeNumber},
	}
}

func invokeLogSchema(lambdaID string) kv.TableSchema {
	return kv.TableSchema{
		Table:    env.TableName(lambdaID, env.InvokeLogPrefix),
		HashKey:  kv.KeyAttribute{Name: "CallerId", Type: kv.AttributeTypeString},
		RangeKey: &kv.KeyAttribute{Name: "CallerStep", Type: kv.AttributeTypeNumber},
	}
}

func intentLogSchema(lambdaID string) kv.TableSchema {
	return kv.TableSchema{
		Table:   env.TableName(lambdaID, env.IntentLogPrefix),
		HashKey: kv.KeyAttribute{Name: "InstanceId", Type: kv.AttributeTypeString},
	}
}

// UserTableSchema describes the primary key shape every Linked Row Chain
// table must be created with: (K, RowHash), both strings.
func UserTableSchema(table string) kv.TableSchema {
	return kv.TableSchema{
		Table:    table,
		HashKey:  kv.KeyAttribute{Name: "K", Type: kv.AttributeTypeString},
		RangeKey: &kv.KeyAttribute{Name: "RowHash", Type: kv.AttributeTypeString},
	}
}

// createIdempotent provisions schema. kv.Store implementations are
// contractually required to treat an already-exists failure as success
// (kv.Store.CreateTable's doc comment, implemented in kv/dynamo by
// swallowing DynamoDB's ResourceInUseException), so any error reaching
// here is a genuine provisioning failure.
func createIdempotent(ctx context.Context, store kv.Store, schema kv.TableSchema, logger *log.Logger) error {
	if err := store.CreateTable(ctx, schema); err != nil {
		return fmt.Errorf("registration: create table %s: %w", schema.Table, err)
	}
	logger.Info("registration: table provisioned", map[string]any{"table": schema.Table})
	return nil
}

func waitForActive(ctx context.Context, store kv.Store, table string, logger *log.Logger) error {
	for {
		status, err := store.DescribeTableStatus(ctx, table)
		if err != nil {
			return fmt.Errorf("registration: describe table %s: %w", table, err)
		}
		if status == kv.TableStatusActive {
			return nil
		}
		logger.Debug("registration: waiting for table to become active", map[string]any{"table": table, "status": string(status)})

		select {
		case <-ctx.Done():
			return fmt.Errorf("registration: waiting for table %s: %w", table, ctx.Err())
		case <-time.After(PollInterval):
		}
	}
}
