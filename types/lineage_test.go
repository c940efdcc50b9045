package types //nolint:revive // types is a valid package name

import (
	"errors"
	"testing"
)

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{
			name:    "empty instance id",
			env:     Envelope{CallerName: "f", InstanceID: ""},
			wantErr: true,
		},
		{
			name:    "empty caller name",
			env:     Envelope{CallerName: "", InstanceID: "i1"},
			wantErr: true,
		},
		{
			name:    "caller id without caller step",
			env:     Envelope{CallerName: "f", InstanceID: "i1", CallerID: "i0", CallerStep: 0},
			wantErr: true,
		},
		{
			name:    "valid root envelope",
			env:     Envelope{CallerName: "f", InstanceID: "i1"},
			wantErr: false,
		},
		{
			name:    "valid sync-invoke envelope",
			env:     Envelope{CallerName: "f", InstanceID: "i2", CallerID: "i1", CallerStep: 3},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackendError_Is(t *testing.T) {
	wrapped := errors.New("boom")
	err := NewBackendError("ConditionalPut", wrapped)

	if !errors.Is(err, ErrBackend) {
		t.Errorf("expected errors.Is(err, ErrBackend) to hold")
	}
	if !errors.Is(err, wrapped) {
		t.Errorf("expected the original error to remain unwrappable")
	}
}

func TestNewBackendError_NilIsNil(t *testing.T) {
	if NewBackendError("Get", nil) != nil {
		t.Errorf("expected NewBackendError to return nil for a nil cause")
	}
}
