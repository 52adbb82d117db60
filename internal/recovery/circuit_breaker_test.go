package recovery

import (
	"errors"
	"testing"
	"time"
)

var errTimeout = errors.New("no response")
var errRejected = errors.New("rejected by device")

func failing() error { return errTimeout }
func succeeding() error { return nil }

// TestCircuitBreakerOpensAfterMaxFailures tests the closed -> open transition
func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := cb.Call(failing); !errors.Is(err, errTimeout) {
			t.Fatalf("call %d: expected underlying error, got %v", i, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected OPEN after 3 failures, got %s", cb.GetState())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function must not run while the circuit is open")
	}
}

// TestCircuitBreakerSuccessResetsFailures tests that a success clears the count while closed
func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})

	_ = cb.Call(failing)
	_ = cb.Call(succeeding)
	_ = cb.Call(failing)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED, got %s", cb.GetState())
	}
	if got := cb.GetStats().Failures; got != 1 {
		t.Errorf("Expected 1 failure, got %d", got)
	}
}

// TestCircuitBreakerIgnoresUncountedErrors tests the IsFailure predicate
func TestCircuitBreakerIgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return errors.Is(err, errTimeout) },
	})

	_ = cb.Call(func() error { return errRejected })
	if cb.GetState() != StateClosed {
		t.Fatalf("Rejections must not open the circuit, got %s", cb.GetState())
	}

	_ = cb.Call(failing)
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected OPEN after a counted failure, got %s", cb.GetState())
	}
}

// TestCircuitBreakerHalfOpenRecovery tests open -> half-open -> closed
func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:      1,
		Timeout:          20 * time.Millisecond,
		HalfOpenMaxTries: 2,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Call(failing)
	time.Sleep(30 * time.Millisecond)

	if err := cb.Call(succeeding); err != nil {
		t.Fatalf("Expected probe to pass, got %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected HALF-OPEN after first probe, got %s", cb.GetState())
	}
	if err := cb.Call(succeeding); err != nil {
		t.Fatalf("Expected second probe to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("Expected CLOSED after successful probes, got %s", cb.GetState())
	}

	want := []string{"CLOSED->OPEN", "OPEN->HALF-OPEN", "HALF-OPEN->CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

// TestCircuitBreakerHalfOpenFailureReopens tests a failed probe
func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: 10 * time.Millisecond})

	_ = cb.Call(failing)
	time.Sleep(20 * time.Millisecond)
	_ = cb.Call(failing)

	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after failed probe, got %s", cb.GetState())
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after reset, got %s", cb.GetState())
	}
}

// TestErrorRecoveryManagerGracePeriod tests offline marking after the grace period
func TestErrorRecoveryManagerGracePeriod(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := NewErrorRecoveryManager(10 * time.Second)
	m.now = func() time.Time { return now }

	if expired := m.RecordError(); expired {
		t.Fatal("Grace period must not expire on the first error")
	}
	if !m.IsInGracePeriod() || m.ShouldMarkOffline() {
		t.Fatal("Expected to be inside the grace period")
	}

	now = now.Add(11 * time.Second)
	m.RecordError()
	if !m.ShouldMarkOffline() {
		t.Fatal("Expected ShouldMarkOffline after the grace period")
	}
	m.MarkAsOffline()
	if m.ShouldMarkOffline() {
		t.Error("ShouldMarkOffline must fire once per error run")
	}
	if m.GetConsecutiveErrors() != 2 {
		t.Errorf("Expected 2 consecutive errors, got %d", m.GetConsecutiveErrors())
	}

	m.RecordSuccess()
	if m.GetConsecutiveErrors() != 0 || m.IsInGracePeriod() {
		t.Error("Expected success to clear the error run")
	}
}
