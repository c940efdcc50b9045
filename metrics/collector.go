// Package metrics accumulates per-invocation counters for the durable
// execution core. A Collector is a leaf package with no dependencies on
// durable/lrc so it can be imported from the CLI and from telemetry sinks
// without pulling in the whole core.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of a Collector's counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	Reads             int64
	ReplayedReads     int64
	Writes            int64
	IdempotentWrites  int64
	Invokes           int64
	ReplayedInvokes   int64
	RowsCreated       int64
	BackendErrors     int64

	LambdaID string
}

// Collector is the interface durable.Client and lrc.Chain report through,
// so a caller can supply metrics.Noop{} to disable collection entirely
// without branching on nil at every call site.
type Collector interface {
	IncrReads()
	IncrReplayedReads()
	IncrWrites()
	IncrIdempotentWrites()
	IncrInvokes()
	IncrReplayedInvokes()
	IncrRowsCreated()
	IncrBackendErrors()
}

// InMemory accumulates counters during one process's lifetime.
// Thread-safe via sync.Mutex.
type InMemory struct {
	mu sync.Mutex

	reads            int64
	replayedReads    int64
	writes           int64
	idempotentWrites int64
	invokes          int64
	replayedInvokes  int64
	rowsCreated      int64
	backendErrors    int64

	lambdaID string
}

// NewInMemory creates an InMemory collector labeled with lambdaID, used as
// a dimension in Snapshot.
func NewInMemory(lambdaID string) *InMemory {
	return &InMemory{lambdaID: lambdaID}
}

func (c *InMemory) IncrReads()            { c.mu.Lock(); c.reads++; c.mu.Unlock() }
func (c *InMemory) IncrReplayedReads()     { c.mu.Lock(); c.replayedReads++; c.mu.Unlock() }
func (c *InMemory) IncrWrites()           { c.mu.Lock(); c.writes++; c.mu.Unlock() }
func (c *InMemory) IncrIdempotentWrites() { c.mu.Lock(); c.idempotentWrites++; c.mu.Unlock() }
func (c *InMemory) IncrInvokes()          { c.mu.Lock(); c.invokes++; c.mu.Unlock() }
func (c *InMemory) IncrReplayedInvokes()  { c.mu.Lock(); c.replayedInvokes++; c.mu.Unlock() }
func (c *InMemory) IncrRowsCreated()      { c.mu.Lock(); c.rowsCreated++; c.mu.Unlock() }
func (c *InMemory) IncrBackendErrors()    { c.mu.Lock(); c.backendErrors++; c.mu.Unlock() }

// Snapshot returns an immutable view of the current counters.
func (c *InMemory) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Reads:            c.reads,
		ReplayedReads:    c.replayedReads,
		Writes:           c.writes,
		IdempotentWrites: c.idempotentWrites,
		Invokes:          c.invokes,
		ReplayedInvokes:  c.replayedInvokes,
		RowsCreated:      c.rowsCreated,
		BackendErrors:    c.backendErrors,
		LambdaID:         c.lambdaID,
	}
}

// Noop discards every counter. It is the zero-configuration default so
// callers never need to nil-check a Collector.
type Noop struct{}

func (Noop) IncrReads()            {}
func (Noop) IncrReplayedReads()     {}
func (Noop) IncrWrites()           {}
func (Noop) IncrIdempotentWrites() {}
func (Noop) IncrInvokes()          {}
func (Noop) IncrReplayedInvokes()  {}
func (Noop) IncrRowsCreated()      {}
func (Noop) IncrBackendErrors()    {}

var (
	_ Collector = (*InMemory)(nil)
	_ Collector = Noop{}
)
