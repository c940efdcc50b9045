// Package env holds the per-invocation execution environment: the instance
// identity, the monotonic step counter, and the derived system log table
// names for one logical function invocation.
package env

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// LogTablePrefix identifies one of the three system log tables per function.
type LogTablePrefix string

const (
	ReadLogPrefix   LogTablePrefix = "read_log"
	InvokeLogPrefix LogTablePrefix = "invoke_log"
	IntentLogPrefix LogTablePrefix = "intent_log"
)

// TableName derives a system log table name from a function id, replacing
// colons with underscores so the name is safe for backends (DynamoDB table
// names in particular) that reject colons.
func TableName(functionID string, prefix LogTablePrefix) string {
	return string(prefix) + "_" + strings.ReplaceAll(functionID, ":", "_")
}

// Env is the execution environment for one logical invocation. It owns the
// step counter: the single piece of in-process mutable state shared across
// an invocation's effect calls. There is exactly one writer per invocation;
// the atomic counter exists so concurrent readers (telemetry, logging) can
// observe it safely without taking a lock.
type Env struct {
	instanceID string
	step       atomic.Uint32
	lambdaID   string

	readLogName   string
	invokeLogName string
	intentLogName string
}

// New creates an Env for a fresh logical invocation of lambdaID, assigning a
// new random instance id and a step counter starting at 0.
func New(lambdaID string) *Env {
	return &Env{
		instanceID:    uuid.NewString(),
		lambdaID:      lambdaID,
		readLogName:   TableName(lambdaID, ReadLogPrefix),
		invokeLogName: TableName(lambdaID, InvokeLogPrefix),
		intentLogName: TableName(lambdaID, IntentLogPrefix),
	}
}

// NewWithInstanceID creates an Env bound to a caller-supplied instance id,
// used by the Invocation Wrapper when a retry (or a callee bound via a sync
// invoke envelope) must rebind to a previously assigned instance.
func NewWithInstanceID(lambdaID, instanceID string) *Env {
	e := New(lambdaID)
	e.instanceID = instanceID
	return e
}

// InstanceID returns the current instance id (I).
func (e *Env) InstanceID() string { return e.instanceID }

// SetInstanceID adopts a caller-supplied instance id. Used by the wrapper
// when framing a call with a caller-supplied I.
func (e *Env) SetInstanceID(id string) { e.instanceID = id }

// LambdaID returns the function id (F) this Env was constructed for.
func (e *Env) LambdaID() string { return e.lambdaID }

// ReadLogName returns the read_log_{F} table name.
func (e *Env) ReadLogName() string { return e.readLogName }

// InvokeLogName returns the invoke_log_{F} table name.
func (e *Env) InvokeLogName() string { return e.invokeLogName }

// IntentLogName returns the intent_log_{F} table name.
func (e *Env) IntentLogName() string { return e.intentLogName }

// Step returns the current step number without mutating it.
func (e *Env) Step() uint32 { return e.step.Load() }

// IncrementStep advances the step counter and returns the new value. The
// counter starts at 0, so the first effect of an invocation is labeled
// step 1.
func (e *Env) IncrementStep() uint32 { return e.step.Add(1) }

// DecrementStep retreats the step counter and returns the new value.
func (e *Env) DecrementStep() uint32 { return e.step.Add(^uint32(0)) }

// SetStep pins the step counter to an explicit value, used when a retry
// must resume from a known point rather than restart at 0.
func (e *Env) SetStep(s uint32) { e.step.Store(s) }

// AsKey returns the canonical log-key "I,s" for the current step.
func (e *Env) AsKey() string {
	return e.instanceID + "," + strconv.FormatUint(uint64(e.step.Load()), 10)
}
