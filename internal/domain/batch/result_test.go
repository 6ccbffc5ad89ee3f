package batch

import (
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK("tx-1", 1)
	if r.ID() != "tx-1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusOK || !r.OK() {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Attempts() != 1 {
		t.Errorf("Attempts() = %d", r.Attempts())
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("provider down")
	r := NewError("tx-2", 3, err)
	if r.ID() != "tx-2" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusError || r.OK() {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if r.Attempts() != 3 {
		t.Errorf("Attempts() = %d", r.Attempts())
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}
