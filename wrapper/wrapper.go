// Package wrapper frames one physical invocation of a user function with
// the start/end journaling bookends that make the whole invocation durable:
// it adopts the caller-propagated instance id, records a start intent,
// drives the user function against a durable.Client, records an end intent
// (or an error), and returns the function's result to the runtime adapter.
//
// wrapper never imports a concrete serverless runtime SDK: the adapter
// layer (out of scope of this module) populates Event and
// translates the returned error into whatever the host expects.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/flowstate/durable"
	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/log"
	"github.com/justapithecus/flowstate/metrics"
	"github.com/justapithecus/flowstate/telemetry"
	"github.com/justapithecus/flowstate/types"
)

// Intent log attribute names (intent_log_{F}).
const (
	attrInstanceID     = "InstanceId"
	attrDone           = "Done"
	attrAsync          = "Async"
	attrInput          = "Input"
	attrReturn         = "Return"
	attrStartTimestamp = "StartTimestamp"
	attrEndTimestamp   = "EndTimestamp"
	attrAttempt        = "Attempt"

	attrCallerID   = "CallerId"
	attrCallerStep = "CallerStep"
	attrResult     = "Result"
)

// Event is the runtime-adapter-populated invocation event: the decoded
// payload plus the invoked function's identifier. The adapter layer is
// responsible for producing one of these per physical invocation,
// including on host retries of the same logical request.
type Event struct {
	// FunctionID is F: the invoked function's identifier (an ARN in the
	// AWS-shaped adapter), used only to derive system log table names.
	FunctionID string
	// Envelope carries the invocation's lineage: its instance id, and, for
	// a sync-invoked callee, the caller's id/step. A root invocation (one
	// not triggered by another function's SyncInvoke) still carries a
	// freshly assigned InstanceID — the adapter mints one on first entry
	// and must reissue the identical value on every physical retry.
	Envelope types.Envelope
	// Attempt is the host's physical retry counter for this logical
	// invocation, starting at 1. Informational only: it is recorded on the
	// intent log for observability but never gates the idempotence
	// protocol, which is driven entirely by (InstanceID, StepNumber).
	Attempt int
}

// UserFunc is the business logic a wrapped invocation runs. It receives
// the durable.Client bound to this physical invocation's Env and the
// decoded input payload, returning the string result the wrapper journals
// and hands back to the runtime adapter.
type UserFunc func(ctx context.Context, client *durable.Client, input string) (string, error)

// Wrapper owns the shared dependencies every invocation's Env and
// durable.Client are built from: the system-log kv.Store, the per-row log
// capacity, the ambient metrics/telemetry handles, and a clock.
type Wrapper struct {
	store      kv.Store
	maxLogSize int64
	metrics    metrics.Collector
	sink       telemetry.Sink
	now        func() time.Time
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithMetrics attaches a shared metrics.Collector every invocation's
// durable.Client reports through.
func WithMetrics(c metrics.Collector) Option { return func(w *Wrapper) { w.metrics = c } }

// WithTelemetry attaches a shared telemetry.Sink every invocation's
// durable.Client publishes best-effort step events to.
func WithTelemetry(s telemetry.Sink) Option { return func(w *Wrapper) { w.sink = s } }

// WithClock overrides the wrapper's time source; intended for tests.
func WithClock(now func() time.Time) Option { return func(w *Wrapper) { w.now = now } }

// New creates a Wrapper over store with the given per-row log capacity.
func New(store kv.Store, maxLogSize int64, opts ...Option) *Wrapper {
	w := &Wrapper{
		store:      store,
		maxLogSize: maxLogSize,
		metrics:    metrics.Noop{},
		sink:       telemetry.Noop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Invoke is the top-level entry point a runtime adapter calls once per
// physical invocation: it builds a fresh Env bound to ev's instance id,
// records the start intent, runs fn, records the end intent (translating a
// non-nil fn error into the "Error: …" text form while still marking
// the invocation Done), and returns the result text the adapter should
// surface to the host.
func (w *Wrapper) Invoke(ctx context.Context, ev Event, fn UserFunc) (string, error) {
	e := env.NewWithInstanceID(ev.FunctionID, ev.Envelope.InstanceID)
	logger := log.NewLogger(log.Context{InstanceID: e.InstanceID(), LambdaID: e.LambdaID()})

	if err := w.Start(ctx, e, ev); err != nil {
		return "", fmt.Errorf("wrapper: start: %w", err)
	}

	client := durable.New(w.store, e, w.maxLogSize, w.metrics, w.sink, logger)

	result, fnErr := fn(ctx, client, ev.Envelope.Input)
	returned := result
	if fnErr != nil {
		returned = fmt.Sprintf("Error: %v", fnErr)
		logger.Error("wrapper: user function returned an error", map[string]any{"err": fnErr.Error()})
	}

	if err := w.End(ctx, e, ev.Envelope, returned); err != nil {
		// The end-intent journal failed to write; this is itself a backend
		// error the host should retry the whole invocation for, distinct
		// from a user function error (which is already durable as text).
		return "", fmt.Errorf("wrapper: end: %w", err)
	}

	w.sink.Publish(ctx, types.StepEvent{
		Version:    types.StepEventVersion,
		InstanceID: e.InstanceID(),
		LambdaID:   e.LambdaID(),
		Type:       types.StepEventComplete,
		StepNumber: e.Step(),
		Payload: map[string]any{
			"done": true,
			"err":  errString(fnErr),
		},
	})

	if fnErr != nil {
		return returned, nil
	}
	return result, nil
}

// Start records the invocation's start intent into intent_log_{F}. The put
// is conditioned on attribute_not_exists(Done) OR Done = "false", so a
// physical retry that lands after a prior attempt already completed cannot
// overwrite the completion record (see DESIGN.md).
func (w *Wrapper) Start(ctx context.Context, e *env.Env, ev Event) error {
	err := w.store.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table: e.IntentLogName(),
		Item: kv.Item{
			attrInstanceID:     e.InstanceID(),
			attrDone:           "false",
			attrAsync:          ev.Envelope.IsAsync,
			attrInput:          ev.Envelope.Input,
			attrStartTimestamp: w.now().UTC().Format(time.RFC3339Nano),
			attrAttempt:        int64(ev.Attempt),
		},
		Condition: "attribute_not_exists(#done) OR #done = :falseStr",
		Names:     map[string]string{"#done": attrDone},
		Values:    map[string]kv.AttributeValue{":falseStr": "false"},
	})
	if err == nil || errors.Is(err, kv.ErrConditionalCheckFailed) {
		return nil
	}
	return w.backendErr("wrapper.Start", err)
}

// backendErr increments the backend-error counter and wraps err as an
// ErrBackend occurring during op.
func (w *Wrapper) backendErr(op string, err error) error {
	w.metrics.IncrBackendErrors()
	return types.NewBackendError(op, err)
}

// End journals the invocation's outcome: if this invocation was itself a
// sync-invoked callee, it first writes its Result into the caller's
// invoke_log_{F} row so the caller's next physical attempt (or the caller
// itself, still running) can observe it; it then marks intent_log_{F}
// Done=true, stamping EndTimestamp and the returned text.
func (w *Wrapper) End(ctx context.Context, e *env.Env, envelope types.Envelope, result string) error {
	if envelope.CallerID != "" {
		err := w.store.ConditionalUpdate(ctx, kv.UpdateInput{
			Table:     callerIntentTable(envelope),
			Key:       kv.Key{attrCallerID: envelope.CallerID, attrCallerStep: int64(envelope.CallerStep)},
			Update:    "SET #result = :result",
			Condition: "attribute_exists(#cid)",
			Names:     map[string]string{"#result": attrResult, "#cid": attrCallerID},
			Values:    map[string]kv.AttributeValue{":result": result},
		})
		if err != nil && !errors.Is(err, kv.ErrConditionalCheckFailed) {
			return w.backendErr("wrapper.End.invokeLog", err)
		}
	}

	err := w.store.ConditionalUpdate(ctx, kv.UpdateInput{
		Table:  e.IntentLogName(),
		Key:    kv.Key{attrInstanceID: e.InstanceID()},
		Update: "SET #done = :true, #end = :end, #ret = :ret",
		Names: map[string]string{
			"#done": attrDone,
			"#end":  attrEndTimestamp,
			"#ret":  attrReturn,
		},
		Values: map[string]kv.AttributeValue{
			":true": "true",
			":end":  w.now().UTC().Format(time.RFC3339Nano),
			":ret":  result,
		},
	})
	if err != nil {
		return w.backendErr("wrapper.End.intentLog", err)
	}
	return nil
}

// callerIntentTable derives the caller's invoke_log_{F} table name from its
// lambda id. The caller's function id rides along on the envelope as
// CallerName.
func callerIntentTable(envelope types.Envelope) string {
	return env.TableName(envelope.CallerName, env.InvokeLogPrefix)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
