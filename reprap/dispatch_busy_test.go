package reprap

import "testing"

// TestDispatchBusyRaisesTimeoutOnce drives the busy protocol opt-in
// (spec.md 4.E): the first "busy:" line raises the transport's timeout and
// issues the busy-protocol-interval command; a second busy line is just
// ordinary traffic and does not repeat the command.
func TestDispatchBusyRaisesTimeoutOnce(t *testing.T) {
	e, mt := newTestEngine()

	e.dispatcher.Feed("busy: processing")
	if mt.Timeout() != DefaultBusyCommunicationTimeout {
		t.Fatalf("transport timeout = %v, want %v", mt.Timeout(), DefaultBusyCommunicationTimeout)
	}
	if e.sendQueue.Len() != 1 {
		t.Fatalf("sendQueue.Len() = %d after first busy line, want 1 (busy-protocol-interval command)", e.sendQueue.Len())
	}

	e.dispatcher.Feed("busy: processing")
	if e.sendQueue.Len() != 1 {
		t.Fatalf("sendQueue.Len() = %d after second busy line, want still 1", e.sendQueue.Len())
	}
}

// TestDispatchActionCommandPauseResume checks the firmware-reported
// //action:paused and //action:resumed verbs (spec.md 4.E): they apply the
// state directly without going back through Pause/Resume (the firmware
// already made the change itself).
func TestDispatchActionCommandPauseResume(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)

	e.dispatcher.Feed("//action:paused")
	if e.State() != StatePaused {
		t.Fatalf("State() = %v, want PAUSED after //action:paused", e.State())
	}

	e.dispatcher.Feed("//action:resumed")
	if e.State() != StateProcessing {
		t.Fatalf("State() = %v, want PROCESSING after //action:resumed", e.State())
	}
}

// TestDispatchErrorPolicyIgnore confirms the "ignore" firmware_errors
// policy logs the error event without touching the protocol state
// (spec.md 4.E/7), and releases the send token: the error line is the
// only reply the rejected command will ever get, so without a Set the
// send loop would block forever.
func TestDispatchErrorPolicyIgnore(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)
	e.SetFlavor(e.flavor().WithOverrides(Config{FirmwareErrors: "ignore"}))

	e.dispatcher.Feed("Error:Some non-fatal condition")
	if e.State() != StateProcessing {
		t.Fatalf("State() = %v, want unchanged PROCESSING under the ignore policy", e.State())
	}
	if e.sendToken.Counter() != 1 {
		t.Fatalf("sendToken.Counter() = %d, want 1 (an ignored error must still unblock sending)", e.sendToken.Counter())
	}
}

// TestDispatchErrorPolicyCancelReleasesToken is the same guarantee for
// the "cancel" policy: the job is dropped but the send loop keeps going
// so the cancel's own capture commands can drain.
func TestDispatchErrorPolicyCancelReleasesToken(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)
	e.SetFlavor(e.flavor().WithOverrides(Config{FirmwareErrors: "cancel"}))

	e.dispatcher.Feed("Error:Some non-fatal condition")
	if e.State() != StateCancelling {
		t.Fatalf("State() = %v, want CANCELLING under the cancel policy", e.State())
	}
	if e.sendToken.Counter() != 1 {
		t.Fatalf("sendToken.Counter() = %d, want 1 after the error-driven cancel", e.sendToken.Counter())
	}
}

// TestDispatchErrorPolicyDisconnectIsFatal confirms the default
// "disconnect" policy transitions to ERROR immediately.
func TestDispatchErrorPolicyDisconnectIsFatal(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateConnected)

	e.dispatcher.Feed("Error:Something fatal")
	if e.State() != StateError {
		t.Fatalf("State() = %v, want ERROR under the default disconnect policy", e.State())
	}
}
