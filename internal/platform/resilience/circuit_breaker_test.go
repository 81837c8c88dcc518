package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	t.Parallel()

	var transitions []string
	b := NewCircuitBreaker(CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      5 * time.Second,
		HalfOpenMaxReq:   1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, string(from)+">"+string(to))
		},
	})

	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := b.Allow(); err != nil {
		t.Fatalf("expected allow in closed state: %v", err)
	}
	b.Record(true)
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after first failure, got %s", state)
	}

	b.Record(true)
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}

	now = now.Add(6 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open request to pass, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second half-open request to be rejected, got %v", err)
	}

	b.Record(false)
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful trial request, got %s", state)
	}

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_DisabledAlwaysAllows(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(CircuitBreakerConfig{Enabled: false, FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		b.Record(true)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("disabled breaker rejected call: %v", err)
	}
}
