package flowconfig

import "testing"

func TestExpandEnv_SetVar(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	got := ExpandEnv("value: ${TEST_VAR}")
	want := "value: hello"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_UnsetWithDefault(t *testing.T) {
	got := ExpandEnv("value: ${UNSET_VAR:-fallback}")
	want := "value: fallback"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_UnsetWithoutDefault(t *testing.T) {
	got := ExpandEnv("value: ${UNSET_VAR}")
	want := "value: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_EmptySetVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")

	got := ExpandEnv("value: ${EMPTY_VAR:-fallback}")
	want := "value: fallback"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
