package reprap

import "testing"

func TestSendTokenSetWaitClear(t *testing.T) {
	tok := NewSendToken(0)
	if !tok.Blocked() {
		t.Fatal("a fresh token should start blocked")
	}
	tok.Set(false)
	if tok.Blocked() {
		t.Fatal("token should be unblocked after Set")
	}
	tok.Wait() // must not block
	tok.Clear(false)
	if !tok.Blocked() {
		t.Fatal("token should be blocked again after Clear consumes the only Set")
	}
}

func TestSendTokenSaturatesAtMax(t *testing.T) {
	tok := NewSendToken(2)
	tok.Set(false)
	tok.Set(false)
	tok.Set(false)
	if got := tok.Counter(); got != 2 {
		t.Fatalf("Counter() = %d, want 2 (clamped at max)", got)
	}
}

func TestSendTokenIgnoreQuotaSpendsBeforeNormalClear(t *testing.T) {
	tok := NewSendToken(0)
	tok.Set(true) // a normal ack plus one we must not let unblock a second send
	if got := tok.Counter(); got != 1 {
		t.Fatalf("Counter() after Set(true) = %d, want 1", got)
	}
	tok.Clear(false)
	// The ignore-path intentionally decrements twice (spec.md open question,
	// kept rather than "fixed" -- see DESIGN.md), so a single ignored Set
	// fully drains the counter on the very next Clear.
	if got := tok.Counter(); got != 0 {
		t.Fatalf("Counter() after the ignore-consuming Clear = %d, want 0", got)
	}
	if !tok.Blocked() {
		t.Fatal("token should be blocked once its only Set has been consumed")
	}
}

func TestSendTokenClearCompletely(t *testing.T) {
	tok := NewSendToken(5)
	tok.Set(false)
	tok.Set(true)
	tok.Clear(true)
	if got := tok.Counter(); got != 0 {
		t.Fatalf("Counter() after Clear(completely) = %d, want 0", got)
	}
	// A later normal Clear should not find a leftover ignore credit.
	tok.Set(false)
	tok.Clear(false)
	if got := tok.Counter(); got != 0 {
		t.Fatalf("Counter() = %d, want 0", got)
	}
}

func TestSendTokenNeverGoesNegative(t *testing.T) {
	tok := NewSendToken(0)
	tok.Clear(false)
	tok.Clear(false)
	if got := tok.Counter(); got != 0 {
		t.Fatalf("Counter() = %d, want 0 (clamped)", got)
	}
}
