// Package durable implements the Durable Client: the per-invocation facade
// user functions call to perform idempotent reads, writes, and synchronous
// sub-invocations against a Linked Row Chain and the system log tables.
package durable

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/log"
	"github.com/justapithecus/flowstate/lrc"
	"github.com/justapithecus/flowstate/metrics"
	"github.com/justapithecus/flowstate/telemetry"
	"github.com/justapithecus/flowstate/types"
)

// System log table attribute names.
const (
	attrInstanceID = "InstanceId"
	attrStepNumber = "StepNumber"
	attrValue      = "V"
	attrCallerID   = "CallerId"
	attrCallerStep = "CallerStep"
	attrCalleeID   = "CalleeId"
	attrResult     = "Result"
)

// Client is bound to one logical invocation: one Env, one set of system-log
// tables (derived from Env's function id), and a chain registry keyed by
// user table name. It is not safe for concurrent use by more than one
// goroutine, matching the single-owner-goroutine invocation model in the
// concurrency design.
type Client struct {
	store      kv.Store
	env        *env.Env
	maxLogSize int64
	chains     map[string]*lrc.Chain
	metrics    metrics.Collector
	sink       telemetry.Sink
	logger     *log.Logger
}

// New creates a Client for e, reading and writing system log tables and
// user tables through store. collector, sink, and logger may be nil
// (metrics.Noop{}, telemetry.Noop{}, and a default stderr Logger are used).
func New(store kv.Store, e *env.Env, maxLogSize int64, collector metrics.Collector, sink telemetry.Sink, logger *log.Logger) *Client {
	if collector == nil {
		collector = metrics.Noop{}
	}
	if sink == nil {
		sink = telemetry.Noop{}
	}
	if logger == nil {
		logger = log.NewLogger(log.Context{InstanceID: e.InstanceID(), LambdaID: e.LambdaID()})
	}
	return &Client{
		store:      store,
		env:        e,
		maxLogSize: maxLogSize,
		chains:     make(map[string]*lrc.Chain),
		logger:     logger,
		metrics:    collector,
		sink:       sink,
	}
}

func (c *Client) chain(table string) *lrc.Chain {
	if ch, ok := c.chains[table]; ok {
		return ch
	}
	ch := lrc.New(c.store, table, c.maxLogSize).WithMetrics(c.metrics)
	c.chains[table] = ch
	return ch
}

// backendErr increments the backend-error counter and wraps err as an
// ErrBackend occurring during op.
func (c *Client) backendErr(op string, err error) error {
	c.metrics.IncrBackendErrors()
	return types.NewBackendError(op, err)
}

// Read performs an idempotent read of key K from table: the first physical
// attempt at a given step records the value it observed into read_log_{F};
// any later physical retry of that same step replays the recorded value
// instead of re-observing a tail that may have since advanced, making the
// read look pure to the caller across retries.
func (c *Client) Read(ctx context.Context, table, k string) (string, error) {
	v, ok, err := c.chain(table).GetTailValue(ctx, k)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("durable: Read(%s): %w", k, types.ErrNoValue)
	}

	step := c.env.IncrementStep()

	err = c.store.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table: c.env.ReadLogName(),
		Item: kv.Item{
			attrInstanceID: c.env.InstanceID(),
			attrStepNumber: int64(step),
			attrValue:      v,
		},
		Condition: "attribute_not_exists(#v)",
		Names:     map[string]string{"#v": attrValue},
	})
	if err == nil {
		c.metrics.IncrReads()
		c.sink.Publish(ctx, c.stepEvent(types.StepEventRead, map[string]any{"table": table, "key": k}))
		return v, nil
	}
	if !errors.Is(err, kv.ErrConditionalCheckFailed) {
		return "", c.backendErr("Read.putReadLog", err)
	}

	// Replay branch: this step was already observed by a prior physical
	// attempt. Return exactly what was recorded then, not the current tail.
	item, getErr := c.store.Get(ctx, kv.GetInput{
		Table:      c.env.ReadLogName(),
		Key:        kv.Key{attrInstanceID: c.env.InstanceID(), attrStepNumber: int64(step)},
		Projection: []string{attrValue},
	})
	if getErr != nil {
		return "", c.backendErr("Read.replayLookup", getErr)
	}
	replayed, _ := item[attrValue].(string)
	c.metrics.IncrReplayedReads()
	c.logger.WithStep(step).Debug("read replayed from read_log", map[string]any{"table": table, "key": k})
	return replayed, nil
}

// Write performs an idempotent write of value under key K into table.
// Writes do not pre-increment the step counter: the log-key for this write
// is whatever step the counter is currently on, and it only advances after
// the write is confirmed absorbed, so a caller that crashes mid-write
// retries at the same step and lands on the already-absorbed entry.
func (c *Client) Write(ctx context.Context, table, k, value string) error {
	logKey := c.env.AsKey()
	chain := c.chain(table)

	skel, err := chain.GetSkeleton(ctx, k)
	if err != nil {
		return err
	}

	var tailHash string
	if len(skel) == 0 {
		tailHash, err = chain.CreateNewRow(ctx, k, "")
		if err != nil {
			return err
		}
	} else {
		if lrc.SkeletonContainsLogID(skel, logKey) {
			// Already absorbed by a previous physical attempt: idempotent no-op.
			c.metrics.IncrIdempotentWrites()
			return nil
		}
		tailHash, err = lrc.TailHashFromSkeleton(skel)
		if err != nil {
			return err
		}
	}

	if err := chain.TryWrite(ctx, k, tailHash, value, c.env); err != nil {
		return err
	}

	c.env.IncrementStep()
	c.metrics.IncrWrites()
	c.sink.Publish(ctx, c.stepEvent(types.StepEventWrite, map[string]any{"table": table, "key": k}))
	return nil
}

// SyncInvoke performs an exactly-once, from-the-caller's-perspective
// invocation of callee. On the first physical attempt at this step, it
// claims invoke_log_{F}(I, s') with a fresh callee instance id and then
// actually calls callee.Call. On a retry of the same logical step, it
// either reports the callee already produced a result (nil, nil) or
// re-invokes using the *same* callee instance id so the callee observes an
// unchanged I and can replay its own effects idempotently.
func (c *Client) SyncInvoke(ctx context.Context, input string, callee types.Callee) (*string, error) {
	step := c.env.IncrementStep()
	callerID := c.env.InstanceID()

	calleeEnvelope := types.Envelope{
		CallerName: c.env.LambdaID(),
		CallerID:   callerID,
		CallerStep: step,
		InstanceID: newCalleeInstanceID(),
		Input:      input,
	}

	err := c.store.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table: c.env.InvokeLogName(),
		Item: kv.Item{
			attrCallerID:   callerID,
			attrCallerStep: int64(step),
			attrCalleeID:   calleeEnvelope.InstanceID,
		},
		Condition: "attribute_not_exists(#cid) AND attribute_not_exists(#cstep)",
		Names:     map[string]string{"#cid": attrCallerID, "#cstep": attrCallerStep},
	})
	if err == nil {
		c.metrics.IncrInvokes()
		c.sink.Publish(ctx, c.stepEvent(types.StepEventInvoke, map[string]any{
			"callee":             callee.Name,
			"callee_instance_id": calleeEnvelope.InstanceID,
		}))
		result, callErr := callee.Call(ctx, calleeEnvelope)
		if callErr != nil {
			return nil, callErr
		}
		return &result, nil
	}
	if !errors.Is(err, kv.ErrConditionalCheckFailed) {
		return nil, c.backendErr("SyncInvoke.putInvokeLog", err)
	}

	// Retry branch: a prior physical attempt already claimed this step.
	existing, getErr := c.store.Get(ctx, kv.GetInput{
		Table:      c.env.InvokeLogName(),
		Key:        kv.Key{attrCallerID: callerID, attrCallerStep: int64(step)},
		Projection: []string{attrCalleeID, attrResult},
	})
	if getErr != nil {
		return nil, c.backendErr("SyncInvoke.getInvokeLog", getErr)
	}
	if _, ok := existing[attrResult].(string); ok {
		c.metrics.IncrReplayedInvokes()
		return nil, nil
	}

	calleeID, _ := existing[attrCalleeID].(string)
	calleeEnvelope.InstanceID = calleeID
	result, callErr := callee.Call(ctx, calleeEnvelope)
	if callErr != nil {
		return nil, callErr
	}
	return &result, nil
}

func newCalleeInstanceID() string { return uuid.NewString() }

func (c *Client) stepEvent(t types.StepEventType, payload map[string]any) types.StepEvent {
	return types.StepEvent{
		Version:    types.StepEventVersion,
		InstanceID: c.env.InstanceID(),
		LambdaID:   c.env.LambdaID(),
		Type:       t,
		StepNumber: c.env.Step(),
		Payload:    payload,
	}
}
