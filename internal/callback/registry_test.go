package callback

import (
	"testing"
	"time"
)

func TestRegisterThenResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("req-1")

	go func() {
		time.Sleep(5 * time.Millisecond)
		if err := r.Resolve("req-1", "the answer"); err != nil {
			t.Errorf("Resolve failed: %v", err)
		}
	}()

	val, err := r.Await("req-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if val != "the answer" {
		t.Errorf("expected 'the answer', got %v", val)
	}
}

func TestAwaitUnknownRequestFailsImmediately(t *testing.T) {
	r := NewRegistry()
	_, err := r.Await("never-registered")
	if err != ErrUnknownRequest {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestResolveUnknownRequestFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Resolve("never-registered", "x"); err != ErrUnknownRequest {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestRegistryEntryRemovedAfterAwait(t *testing.T) {
	r := NewRegistry()
	r.Register("req-1")
	go r.Resolve("req-1", "v")
	if _, err := r.Await("req-1"); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if r.Pending("req-1") {
		t.Error("expected entry removed after Await returns")
	}
}

func TestAwaitTimesOut(t *testing.T) {
	original := Timeout
	Timeout = 20 * time.Millisecond
	defer func() { Timeout = original }()

	r := NewRegistry()
	r.Register("req-1")

	_, err := r.Await("req-1")
	if err != ErrTimeout {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestDoubleAnswerFirstWriterWins(t *testing.T) {
	r := NewRegistry()
	r.Register("req-1")

	go func() {
		r.Resolve("req-1", "first")
		r.Resolve("req-1", "second") // ErrUnknownRequest once the first Await drains it, racy but harmless
	}()

	val, err := r.Await("req-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if val != "first" {
		t.Errorf("expected first answer to win, got %v", val)
	}
}
