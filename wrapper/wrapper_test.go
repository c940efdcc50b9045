package wrapper

import (
	"context"
	"errors"
	"testing"

	"github.com/justapithecus/flowstate/durable"
	"github.com/justapithecus/flowstate/env"
	"github.com/justapithecus/flowstate/kv"
	"github.com/justapithecus/flowstate/kv/memkv"
	"github.com/justapithecus/flowstate/types"
)

func newTestWrapper() (*Wrapper, *memkv.Store) {
	store := memkv.New()
	return New(store, 10), store
}

func TestInvoke_RecordsStartAndEndIntent(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWrapper()

	ev := Event{
		FunctionID: "fn-a",
		Envelope:   types.Envelope{CallerName: "fn-a", InstanceID: "i1", Input: "hello"},
		Attempt:    1,
	}

	result, err := w.Invoke(ctx, ev, func(_ context.Context, client *durable.Client, input string) (string, error) {
		if input != "hello" {
			t.Errorf("user function input = %q, want %q", input, "hello")
		}
		if err := client.Write(ctx, "t", "k", "v"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result != "done" {
		t.Errorf("Invoke() = %q, want %q", result, "done")
	}

	item, err := store.Get(ctx, kv.GetInput{
		Table: "intent_log_fn-a",
		Key:   kv.Key{"InstanceId": "i1"},
	})
	if err != nil {
		t.Fatalf("Get(intent log) error = %v", err)
	}
	if item["Done"] != "true" {
		t.Errorf("intent log Done = %v, want \"true\"", item["Done"])
	}
	if item["Return"] != "done" {
		t.Errorf("intent log Return = %v, want \"done\"", item["Return"])
	}
}

func TestInvoke_RetryAfterCompletionDoesNotOverwriteDone(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWrapper()

	ev := Event{
		FunctionID: "fn-a",
		Envelope:   types.Envelope{CallerName: "fn-a", InstanceID: "i1", Input: "hello"},
		Attempt:    1,
	}
	noop := func(_ context.Context, _ *durable.Client, _ string) (string, error) { return "first", nil }

	if _, err := w.Invoke(ctx, ev, noop); err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}

	// A late physical retry re-enters Start after the intent already
	// completed; per the resolved open question, Start must not erase the
	// completion record.
	ev.Attempt = 2
	if err := w.Start(ctx, env.NewWithInstanceID("fn-a", "i1"), ev); err != nil {
		t.Fatalf("retried Start() error = %v", err)
	}

	item, err := store.Get(ctx, kv.GetInput{Table: "intent_log_fn-a", Key: kv.Key{"InstanceId": "i1"}})
	if err != nil {
		t.Fatalf("Get(intent log) error = %v", err)
	}
	if item["Done"] != "true" {
		t.Errorf("intent log Done = %v, want \"true\" (must survive a late retry's Start)", item["Done"])
	}
}

func TestInvoke_UserErrorIsRecordedAsErrorTextAndStillMarkedDone(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWrapper()

	ev := Event{
		FunctionID: "fn-a",
		Envelope:   types.Envelope{CallerName: "fn-a", InstanceID: "i1", Input: "hello"},
		Attempt:    1,
	}
	boom := errors.New("boom")

	result, err := w.Invoke(ctx, ev, func(context.Context, *durable.Client, string) (string, error) {
		return "", boom
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil (user errors are durable, not propagated)", err)
	}
	if result != "Error: boom" {
		t.Errorf("Invoke() = %q, want %q", result, "Error: boom")
	}

	item, err := store.Get(ctx, kv.GetInput{Table: "intent_log_fn-a", Key: kv.Key{"InstanceId": "i1"}})
	if err != nil {
		t.Fatalf("Get(intent log) error = %v", err)
	}
	if item["Done"] != "true" {
		t.Errorf("intent log Done = %v, want \"true\" (failure is durable too)", item["Done"])
	}
}

func TestEnd_WritesCallerResultWhenEnvelopeHasCaller(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWrapper()

	// Seed a caller's invoke_log row as durable.Client.SyncInvoke would.
	if err := store.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table:     "invoke_log_caller-fn",
		Item:      kv.Item{"CallerId": "caller-i1", "CallerStep": int64(1), "CalleeId": "i2"},
		Condition: "attribute_not_exists(#cid)",
		Names:     map[string]string{"#cid": "CallerId"},
	}); err != nil {
		t.Fatalf("seed invoke_log error = %v", err)
	}

	e := env.NewWithInstanceID("fn-b", "i2")
	envelope := types.Envelope{CallerName: "caller-fn", CallerID: "caller-i1", CallerStep: 1, InstanceID: "i2"}

	if err := w.End(ctx, e, envelope, "callee-result"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	item, err := store.Get(ctx, kv.GetInput{
		Table: "invoke_log_caller-fn",
		Key:   kv.Key{"CallerId": "caller-i1", "CallerStep": int64(1)},
	})
	if err != nil {
		t.Fatalf("Get(invoke log) error = %v", err)
	}
	if item["Result"] != "callee-result" {
		t.Errorf("invoke log Result = %v, want %q", item["Result"], "callee-result")
	}
}
