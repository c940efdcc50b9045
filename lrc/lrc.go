// Package lrc implements the Linked Row Chain: the per-user-key log-absorbing
// row structure that lets an unbounded number of idempotent retried writes
// land in a bounded number of KV rows. A Chain is bound to one user table;
// callers identify rows by RowHash and advance the chain by following
// NextRowHash links. Only GetSkeleton reads every row of a key, and it
// projects away each row's value.
package lrc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/metrics"
	"github.com/justapithecus/flowstate/types"
)

// Row attribute names, shared by every Chain against every backend.
const (
	AttrK           = "K"
	AttrRowHash     = "RowHash"
	AttrNextRowHash = "NextRowHash"
	AttrV           = "V"
	AttrLogs        = "Logs"
	AttrLogSize     = "LogSize"
	AttrGCSize      = "GCSize"
)

// CASResult is the outcome of the single conditional write every absorption
// attempt performs.
type CASResult int

const (
	CASSuccess CASResult = iota
	CASFailure
)

// RowProjection is the subset of row attributes GetSkeleton materializes:
// enough to compute chain topology and log membership without paying for
// each row's full value.
type RowProjection struct {
	RowHash     string
	NextRowHash string // "" if this is the tail
	Logs        map[string]struct{}
}

// Chain is a handle to the Linked Row Chain stored in one user table.
// MaxLogSize bounds how many log-keys a single row may absorb before a
// successor row must be created.
type Chain struct {
	store      kv.Store
	table      string
	maxLogSize int64
	metrics    metrics.Collector
}

// New binds a Chain to table, using store as the backing kv.Store.
func New(store kv.Store, table string, maxLogSize int64) *Chain {
	return &Chain{store: store, table: table, maxLogSize: maxLogSize, metrics: metrics.Noop{}}
}

// WithMetrics attaches a metrics.Collector the Chain reports row-creation
// and backend-error counts through. Returns the same Chain for chaining at
// the durable.Client construction site.
func (c *Chain) WithMetrics(collector metrics.Collector) *Chain {
	if collector != nil {
		c.metrics = collector
	}
	return c
}

// backendErr increments the backend-error counter and wraps err as an
// ErrBackend occurring during op.
func (c *Chain) backendErr(op string, err error) error {
	c.metrics.IncrBackendErrors()
	return types.NewBackendError(op, err)
}

// GetSkeleton scans every row for key K, projecting only RowHash,
// NextRowHash, and Logs (never V), to materialize chain topology cheaply.
func (c *Chain) GetSkeleton(ctx context.Context, k string) ([]RowProjection, error) {
	items, err := c.store.Scan(ctx, kv.ScanInput{
		Table:      c.table,
		Filter:     "#k = :k",
		Names:      map[string]string{"#k": AttrK},
		Values:     map[string]kv.AttributeValue{":k": k},
		Projection: []string{AttrRowHash, AttrNextRowHash, AttrLogs},
	})
	if err != nil {
		return nil, c.backendErr("GetSkeleton", err)
	}

	skel := make([]RowProjection, 0, len(items))
	for _, item := range items {
		skel = append(skel, projectRow(item))
	}
	return skel, nil
}

func projectRow(item kv.Item) RowProjection {
	p := RowProjection{Logs: map[string]struct{}{}}
	if v, ok := item[AttrRowHash].(string); ok {
		p.RowHash = v
	}
	if v, ok := item[AttrNextRowHash].(string); ok {
		p.NextRowHash = v
	}
	if logs, ok := item[AttrLogs].(map[string]kv.AttributeValue); ok {
		for lk := range logs {
			p.Logs[lk] = struct{}{}
		}
	}
	return p
}

// SkeletonContainsLogID reports whether log-key L has already been absorbed
// by any row in skel.
func SkeletonContainsLogID(skel []RowProjection, logKey string) bool {
	for _, row := range skel {
		if _, ok := row.Logs[logKey]; ok {
			return true
		}
	}
	return false
}

// TailHashFromSkeleton returns the RowHash of the unique row with no
// successor. It fails closed: zero or multiple tail candidates indicate
// backend corruption (Invariant 1), never a retryable condition.
func TailHashFromSkeleton(skel []RowProjection) (string, error) {
	var tail string
	found := 0
	for _, row := range skel {
		if row.NextRowHash == "" {
			tail = row.RowHash
			found++
		}
	}
	switch found {
	case 1:
		return tail, nil
	case 0:
		return "", fmt.Errorf("lrc: %w: no tail row in chain", types.ErrChainInvariantViolated)
	default:
		return "", fmt.Errorf("lrc: %w: %d tail candidates in chain", types.ErrChainInvariantViolated, found)
	}
}

// LogEntryExistsInRow point-reads row (K, h) projecting Logs and checks
// membership of logKey.
func (c *Chain) LogEntryExistsInRow(ctx context.Context, k, h, logKey string) (bool, error) {
	item, err := c.store.Get(ctx, kv.GetInput{
		Table:      c.table,
		Key:        kv.Key{AttrK: k, AttrRowHash: h},
		Projection: []string{AttrLogs},
	})
	if errors.Is(err, kv.ErrItemNotFound) {
		return false, fmt.Errorf("lrc: %w: row %s/%s", types.ErrMissingRow, k, h)
	}
	if err != nil {
		return false, c.backendErr("LogEntryExistsInRow", err)
	}
	logs, _ := item[AttrLogs].(map[string]kv.AttributeValue)
	_, ok := logs[logKey]
	return ok, nil
}

// NextRowExists point-reads row (K, h) projecting NextRowHash.
func (c *Chain) NextRowExists(ctx context.Context, k, h string) (bool, error) {
	next, err := c.GetNextRow(ctx, k, h)
	if err != nil {
		return false, err
	}
	return next != "", nil
}

// GetNextRow point-reads row (K, h) and returns its NextRowHash, or "" if
// this row is the tail.
func (c *Chain) GetNextRow(ctx context.Context, k, h string) (string, error) {
	item, err := c.store.Get(ctx, kv.GetInput{
		Table:      c.table,
		Key:        kv.Key{AttrK: k, AttrRowHash: h},
		Projection: []string{AttrNextRowHash},
	})
	if errors.Is(err, kv.ErrItemNotFound) {
		return "", fmt.Errorf("lrc: %w: row %s/%s", types.ErrMissingRow, k, h)
	}
	if err != nil {
		return "", c.backendErr("GetNextRow", err)
	}
	next, _ := item[AttrNextRowHash].(string)
	return next, nil
}

// CreateNewRow creates a successor row for key K. An empty parentHash means
// "start a brand-new chain head". When a parent is given, the new row's V
// is seeded from the parent's current V (Invariant 5), and the parent is
// conditionally linked to the new row guarded by
// attribute_not_exists(NextRowHash): if a concurrent retry already linked a
// successor, CreateNewRow discovers and returns that successor instead of
// the orphaned row it just created.
func (c *Chain) CreateNewRow(ctx context.Context, k, parentHash string) (string, error) {
	newHash := uuid.NewString()

	newItem := kv.Item{
		AttrK:       k,
		AttrRowHash: newHash,
		AttrLogs:    map[string]kv.AttributeValue{},
		AttrLogSize: int64(0),
		AttrGCSize:  int64(0),
	}

	if parentHash != "" {
		parent, err := c.store.Get(ctx, kv.GetInput{
			Table:      c.table,
			Key:        kv.Key{AttrK: k, AttrRowHash: parentHash},
			Projection: []string{AttrV},
		})
		if errors.Is(err, kv.ErrItemNotFound) {
			return "", fmt.Errorf("lrc: %w: parent row %s/%s", types.ErrMissingRow, k, parentHash)
		}
		if err != nil {
			return "", c.backendErr("CreateNewRow.getParent", err)
		}
		if v, ok := parent[AttrV]; ok {
			newItem[AttrV] = v
		}
	}

	if err := c.store.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table:     c.table,
		Item:      newItem,
		Condition: "attribute_not_exists(#rh)",
		Names:     map[string]string{"#rh": AttrRowHash},
	}); err != nil && !errors.Is(err, kv.ErrConditionalCheckFailed) {
		return "", c.backendErr("CreateNewRow.putRow", err)
	}

	if parentHash == "" {
		c.metrics.IncrRowsCreated()
		return newHash, nil
	}

	err := c.store.ConditionalUpdate(ctx, kv.UpdateInput{
		Table:     c.table,
		Key:       kv.Key{AttrK: k, AttrRowHash: parentHash},
		Update:    "SET #nrh = :next",
		Condition: "attribute_not_exists(#nrh)",
		Names:     map[string]string{"#nrh": AttrNextRowHash},
		Values:    map[string]kv.AttributeValue{":next": newHash},
	})
	if err == nil {
		c.metrics.IncrRowsCreated()
		return newHash, nil
	}
	if !errors.Is(err, kv.ErrConditionalCheckFailed) {
		return "", c.backendErr("CreateNewRow.linkParent", err)
	}

	// A concurrent retry already linked a successor to parentHash; follow
	// it instead of leaving our freshly created row orphaned.
	existing, getErr := c.GetNextRow(ctx, k, parentHash)
	if getErr != nil {
		return "", getErr
	}
	return existing, nil
}

// GetTailValue returns the current tail's V for key K. The bool is false if
// the tail has never been written (fresh chain). GetTailValue is
// internal-only: it bypasses read_log entirely, so only durable.Read (which
// wraps this with the read-log replay protocol) may call it on the hot
// path for user-observable reads.
func (c *Chain) GetTailValue(ctx context.Context, k string) (string, bool, error) {
	skel, err := c.GetSkeleton(ctx, k)
	if err != nil {
		return "", false, err
	}
	if len(skel) == 0 {
		return "", false, nil
	}
	tailHash, err := TailHashFromSkeleton(skel)
	if err != nil {
		return "", false, err
	}

	item, err := c.store.Get(ctx, kv.GetInput{
		Table:      c.table,
		Key:        kv.Key{AttrK: k, AttrRowHash: tailHash},
		Projection: []string{AttrV},
	})
	if errors.Is(err, kv.ErrItemNotFound) {
		return "", false, fmt.Errorf("lrc: %w: tail row %s/%s", types.ErrMissingRow, k, tailHash)
	}
	if err != nil {
		return "", false, c.backendErr("GetTailValue", err)
	}
	v, ok := item[AttrV].(string)
	return v, ok, nil
}

// WriteValueToLogsIfSpace is the single conditional write that makes the
// whole protocol idempotent: it absorbs value into row (K,h) under logKey
// iff logKey is not already present and the row has spare capacity.
// Invariants 2 and 3 rest entirely on this one compare-and-swap.
func (c *Chain) WriteValueToLogsIfSpace(ctx context.Context, k, h, value, logKey string) (CASResult, error) {
	err := c.store.ConditionalUpdate(ctx, kv.UpdateInput{
		Table:     c.table,
		Key:       kv.Key{AttrK: k, AttrRowHash: h},
		Update:    "SET #v = :val, #ls = #ls + :inc, #logs.#lk = :null",
		Condition: "attribute_not_exists(#logs.#lk) AND #ls < :max",
		Names: map[string]string{
			"#v":    AttrV,
			"#ls":   AttrLogSize,
			"#logs": AttrLogs,
			"#lk":   logKey,
		},
		Values: map[string]kv.AttributeValue{
			":val":  value,
			":inc":  int64(1),
			":null": nil,
			":max":  c.maxLogSize,
		},
	})
	if err == nil {
		return CASSuccess, nil
	}
	if errors.Is(err, kv.ErrConditionalCheckFailed) {
		return CASFailure, nil
	}
	return CASFailure, c.backendErr("WriteValueToLogsIfSpace", err)
}

// TryWrite absorbs value under logKey into the chain for K, starting its
// search at row hStart (normally the current tail). It walks the chain with
// an explicit loop rather than recursion, so stack depth never grows with
// chain length:
//
//   - CAS succeeds: the write is absorbed, done.
//   - CAS fails because logKey is already present in h: a prior retry
//     already absorbed this write, done (no-op).
//   - CAS fails because h is full and has no successor: extend the chain
//     with a new row and continue there.
//   - CAS fails because h is full and already has a successor: advance to
//     it and continue.
//
// Each iteration strictly advances toward the tail of a finite chain, or
// extends it by exactly one row, so the loop always terminates.
func (c *Chain) TryWrite(ctx context.Context, k, hStart, value string, e *env.Env) error {
	h := hStart
	logKey := e.AsKey()

	for {
		result, err := c.WriteValueToLogsIfSpace(ctx, k, h, value, logKey)
		if err != nil {
			return err
		}
		if result == CASSuccess {
			return nil
		}

		exists, err := c.LogEntryExistsInRow(ctx, k, h, logKey)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		next, err := c.GetNextRow(ctx, k, h)
		if err != nil {
			return err
		}
		if next == "" {
			h, err = c.CreateNewRow(ctx, k, h)
			if err != nil {
				return err
			}
			continue
		}
		h = next
	}
}
