package reprap

import "testing"

// TestEngineHandleTimeoutEscalatesToTemperatureTickle drives the consecutive-
// timeout ceiling directly (spec.md 4.E/8): while PROCESSING the ceiling is
// 5 ticks before the engine tickles the firmware with a temperature query
// to confirm it's still alive.
func TestEngineHandleTimeoutEscalatesToTemperatureTickle(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)

	for i := 0; i < 4; i++ {
		e.handleTimeout()
	}
	if e.sendQueue.Len() != 0 {
		t.Fatalf("sendQueue.Len() = %d after 4 ticks, want 0 (ceiling not yet reached)", e.sendQueue.Len())
	}

	e.handleTimeout()
	if e.sendQueue.Len() != 1 {
		t.Fatalf("sendQueue.Len() = %d after 5 ticks, want 1 (tickle enqueued)", e.sendQueue.Len())
	}
}

// TestEngineHandleTimeoutResetByTraffic confirms refreshTimeout (invoked on
// every received line) resets the consecutive-timeout counter, so a quiet
// firmware that's still answering doesn't get tickled.
func TestEngineHandleTimeoutResetByTraffic(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)

	for i := 0; i < 4; i++ {
		e.handleTimeout()
	}
	e.refreshTimeout()
	for i := 0; i < 4; i++ {
		e.handleTimeout()
	}
	if e.sendQueue.Len() != 0 {
		t.Fatalf("sendQueue.Len() = %d, want 0 (refreshTimeout should have reset the ceiling countdown)", e.sendQueue.Len())
	}
}

// TestEngineHandleTimeoutSkipsLongRunningCommands ensures a long-running
// command (G28/G29/M400) never hits the ceiling: spec.md 4.E says
// long-running commands never time out.
func TestEngineHandleTimeoutSkipsLongRunningCommands(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)
	e.flags.SetLongRunning(true)

	for i := 0; i < 20; i++ {
		e.handleTimeout()
	}
	if e.sendQueue.Len() != 0 {
		t.Fatal("a long-running command should never trigger the timeout escalation")
	}
}
