package env

import "testing"

func TestNew_DerivesSystemLogTableNamesFromFunctionID(t *testing.T) {
	e := New("my:function")

	if e.ReadLogName() != "read_log_my_function" {
		t.Fatalf("unexpected read log name: %s", e.ReadLogName())
	}
	if e.InvokeLogName() != "invoke_log_my_function" {
		t.Fatalf("unexpected invoke log name: %s", e.InvokeLogName())
	}
	if e.IntentLogName() != "intent_log_my_function" {
		t.Fatalf("unexpected intent log name: %s", e.IntentLogName())
	}
	if e.InstanceID() == "" {
		t.Fatal("expected a non-empty generated instance id")
	}
	if e.Step() != 0 {
		t.Fatalf("expected step to start at 0, got %d", e.Step())
	}
}

func TestNewWithInstanceID_AdoptsCallerSuppliedInstance(t *testing.T) {
	e := NewWithInstanceID("fn", "fixed-instance")
	if e.InstanceID() != "fixed-instance" {
		t.Fatalf("expected fixed-instance, got %s", e.InstanceID())
	}
}

func TestIncrementStep_AdvancesAndAsKeyReflectsCurrentStep(t *testing.T) {
	e := NewWithInstanceID("fn", "I1")

	if got := e.AsKey(); got != "I1,0" {
		t.Fatalf("expected I1,0 before any increment, got %s", got)
	}

	step := e.IncrementStep()
	if step != 1 {
		t.Fatalf("expected step 1, got %d", step)
	}
	if got := e.AsKey(); got != "I1,1" {
		t.Fatalf("expected I1,1, got %s", got)
	}
}

func TestDecrementStep_RetreatsCounter(t *testing.T) {
	e := NewWithInstanceID("fn", "I1")
	e.SetStep(3)
	if got := e.DecrementStep(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestSetInstanceID_Overrides(t *testing.T) {
	e := New("fn")
	e.SetInstanceID("rebound")
	if e.InstanceID() != "rebound" {
		t.Fatalf("expected rebound, got %s", e.InstanceID())
	}
}
