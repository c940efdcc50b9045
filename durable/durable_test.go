package durable

import (
	"context"
	"errors"
	"testing"

	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/kv/memkv"
	"github.com/justapithecus/flowstate/types"
)

func newTestClient(maxLogSize int64) (*Client, *env.Env) {
	store := memkv.New()
	e := env.NewWithInstanceID("fn-a", "i1")
	return New(store, e, maxLogSize, nil, nil, nil), e
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(10)

	if err := c.Write(ctx, "t", "k", "a"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	v, err := c.Read(ctx, "t", "k")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v != "a" {
		t.Errorf("Read() = %q, want %q", v, "a")
	}
}

func TestWrite_RetrySameStepIsNoop(t *testing.T) {
	ctx := context.Background()
	c, e := newTestClient(10)

	if err := c.Write(ctx, "t", "k", "a"); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}

	// Simulate a fresh physical attempt: same instance id, step reset to 0.
	e.SetStep(0)
	if err := c.Write(ctx, "t", "k", "a"); err != nil {
		t.Fatalf("replayed Write() error = %v", err)
	}

	v, err := c.Read(ctx, "t", "k")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v != "a" {
		t.Errorf("Read() after replayed write = %q, want %q", v, "a")
	}
}

func TestRead_NoValueYieldsErrNoValue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(10)

	_, err := c.Read(ctx, "t", "missing")
	if !errors.Is(err, types.ErrNoValue) {
		t.Errorf("Read() error = %v, want ErrNoValue", err)
	}
}

func TestRead_IsIdempotentAcrossRetriesEvenIfTailAdvances(t *testing.T) {
	ctx := context.Background()
	c, e := newTestClient(10)

	if err := c.Write(ctx, "t", "k", "a"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	step := e.Step()
	first, err := c.Read(ctx, "t", "k")
	if err != nil {
		t.Fatalf("first Read() error = %v", err)
	}

	// Tail advances after the first read's log-key was already committed.
	e.SetStep(step) // rewind, simulating a retry that repeats the read at the same step
	if err := c.Write(ctx, "t", "k", "b"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	e.SetStep(step)

	second, err := c.Read(ctx, "t", "k")
	if err != nil {
		t.Fatalf("replayed Read() error = %v", err)
	}
	if second != first {
		t.Errorf("replayed Read() = %q, want %q (same as first observation)", second, first)
	}
}

func TestSyncInvoke_ExactlyOnceAcrossRetries(t *testing.T) {
	ctx := context.Background()
	c, e := newTestClient(10)

	var seenInstanceIDs []string
	callee := types.Callee{
		Name: "callee-fn",
		Call: func(_ context.Context, envelope types.Envelope) (string, error) {
			seenInstanceIDs = append(seenInstanceIDs, envelope.InstanceID)
			return "result", nil
		},
	}

	step := e.Step()
	first, err := c.SyncInvoke(ctx, "payload", callee)
	if err != nil {
		t.Fatalf("first SyncInvoke() error = %v", err)
	}
	if first == nil || *first != "result" {
		t.Fatalf("first SyncInvoke() = %v, want \"result\"", first)
	}

	// Simulate a host retry: same caller step, callee hasn't recorded a
	// Result yet (no wrapper.End ran in this test), so it must re-invoke
	// with the same callee instance id.
	e.SetStep(step)
	second, err := c.SyncInvoke(ctx, "payload", callee)
	if err != nil {
		t.Fatalf("retried SyncInvoke() error = %v", err)
	}
	if second == nil || *second != "result" {
		t.Fatalf("retried SyncInvoke() = %v, want \"result\"", second)
	}

	if len(seenInstanceIDs) != 2 {
		t.Fatalf("expected callee invoked twice, got %d", len(seenInstanceIDs))
	}
	if seenInstanceIDs[0] != seenInstanceIDs[1] {
		t.Errorf("callee saw different instance ids across retries: %v", seenInstanceIDs)
	}
}

func TestSyncInvoke_RetryAfterResultRecordedReturnsNilWithoutReinvoking(t *testing.T) {
	ctx := context.Background()
	c, e := newTestClient(10)

	called := false
	callee := types.Callee{
		Name: "callee-fn",
		Call: func(_ context.Context, envelope types.Envelope) (string, error) {
			called = true
			return "result", nil
		},
	}

	step := e.Step()
	first, err := c.SyncInvoke(ctx, "payload", callee)
	if err != nil {
		t.Fatalf("first SyncInvoke() error = %v", err)
	}
	if first == nil || *first != "result" {
		t.Fatalf("first SyncInvoke() = %v, want \"result\"", first)
	}

	// Simulate the callee's own wrapper.End having already written its
	// Result into this caller's invoke_log_{F} row before the caller's
	// retry arrives. SyncInvoke increments before claiming, so its row sits
	// at step+1.
	err = c.store.ConditionalUpdate(ctx, kv.UpdateInput{
		Table:     c.env.InvokeLogName(),
		Key:       kv.Key{attrCallerID: e.InstanceID(), attrCallerStep: int64(step + 1)},
		Update:    "SET #result = :result",
		Condition: "attribute_exists(#cid)",
		Names:     map[string]string{"#result": attrResult, "#cid": attrCallerID},
		Values:    map[string]kv.AttributeValue{":result": "result"},
	})
	if err != nil {
		t.Fatalf("seed Result: %v", err)
	}

	called = false
	e.SetStep(step)
	second, err := c.SyncInvoke(ctx, "payload", callee)
	if err != nil {
		t.Fatalf("retried SyncInvoke() error = %v", err)
	}
	if second != nil {
		t.Fatalf("retried SyncInvoke() = %v, want nil (caller already processed this result)", second)
	}
	if called {
		t.Error("expected retried SyncInvoke() not to re-invoke the callee once a Result is recorded")
	}
}
