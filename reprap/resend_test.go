package reprap

import (
	"context"
	"testing"
	"time"

	"github.com/solderline/reprapd/gcode"
)

// TestEngineHandleResendEnqueuesTrackedLine exercises the
// Engine.handleResend -> enqueueResendLine path directly (Component E/H,
// spec.md 4.E): a Resend notification for a line still held in Line
// History must put a resend-targeted item on the send queue, not just flip
// bookkeeping.
func TestEngineHandleResendEnqueuesTrackedLine(t *testing.T) {
	e, _ := newTestEngine()
	e.lineHistory.Append(1, "M110 N0")
	e.lineHistory.Append(2, "G1 X0")
	e.lineHistory.Append(3, "G1 X1")
	e.flags.ResetLineNumber(3)

	e.handleResend(2)

	if !e.sendQueue.ResendActive() {
		t.Fatal("handleResend should mark the send queue resend-active")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := e.sendQueue.Get(ctx)
	if err != nil {
		t.Fatalf("Get() = %v, want a resend item ready for delivery", err)
	}
	if item.Target != "resend" {
		t.Fatalf("item.Target = %q, want \"resend\"", item.Target)
	}
	if item.LineNumber != 2 {
		t.Fatalf("item.LineNumber = %d, want 2", item.LineNumber)
	}
	if got := item.Command.Line(); got != "G1 X0" {
		t.Fatalf("item.Command.Line() = %q, want the text recorded for line 2", got)
	}
}

// TestEngineHandleResendOutsideHistoryReportsError covers the branch where
// the requested line has already been evicted from Line History: spec.md
// 4.E says this is only an error while the protocol is busy.
func TestEngineHandleResendOutsideHistoryReportsError(t *testing.T) {
	e, _ := newTestEngine()
	e.flags.ResetLineNumber(5)
	e.setState(StateProcessing)

	e.handleResend(1)

	if e.State() != StateError {
		t.Fatalf("State() = %v, want ERROR after a resend for an untracked line while busy", e.State())
	}
	if e.sendQueue.Len() != 0 {
		t.Fatal("no resend item should be enqueued for an untracked line")
	}
}

// TestEngineResendWindowAdvancesThroughMultipleLines drives writeOne
// directly across a multi-line resend window (lines 2 and 3, with the
// firmware's current line number at 4), verifying that each line in the
// window is actually written to the wire and that the window closes once
// the cursor catches up with the current line number (spec.md invariant 3,
// testable property 4).
func TestEngineResendWindowAdvancesThroughMultipleLines(t *testing.T) {
	e, mt := newTestEngine()
	e.lineHistory.Append(1, "M110 N0")
	e.lineHistory.Append(2, "G1 X0")
	e.lineHistory.Append(3, "G1 X1")
	e.flags.ResetLineNumber(4)

	e.flags.BeginResend(2)
	e.sendQueue.SetResendActive(true)
	e.enqueueResendLine(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, err := e.sendQueue.Get(ctx)
	if err != nil {
		t.Fatalf("Get() (line 2) = %v", err)
	}
	if item.LineNumber != 2 {
		t.Fatalf("first resend item LineNumber = %d, want 2", item.LineNumber)
	}
	e.writeOne(item, *item.Command)

	if !e.sendQueue.ResendActive() {
		t.Fatal("resend window should still be active after replaying line 2 (line 3 remains)")
	}

	item, err = e.sendQueue.Get(ctx)
	if err != nil {
		t.Fatalf("Get() (line 3) = %v", err)
	}
	if item.LineNumber != 3 {
		t.Fatalf("second resend item LineNumber = %d, want 3", item.LineNumber)
	}
	e.writeOne(item, *item.Command)

	if e.sendQueue.ResendActive() {
		t.Fatal("resend window should have closed once the cursor caught up with the current line number")
	}
	if e.sendQueue.Len() != 0 {
		t.Fatal("no further resend item should be queued once the window has closed")
	}

	lines := mt.Lines()
	want0 := gcode.AddLineAndHash(2, "G1 X0") + "\n"
	want1 := gcode.AddLineAndHash(3, "G1 X1") + "\n"
	if len(lines) != 2 || lines[0] != want0 || lines[1] != want1 {
		t.Fatalf("wire writes = %v, want [%q %q] (replays keep their original numbers and checksums)", lines, want0, want1)
	}
}

// TestEngineResendEchoSuppression covers the stale-echo heuristic: after a
// line-number error opened a resend window, further requests for the same
// line that the arithmetic proves predate the window are counted and
// ignored rather than re-opening it (spec.md 4.E "resend").
func TestEngineResendEchoSuppression(t *testing.T) {
	e, _ := newTestEngine()
	for n := 1; n <= 5; n++ {
		e.lineHistory.Append(n, "G1 X0")
	}
	e.flags.ResetLineNumber(6)
	e.flags.BeginResend(2)
	e.sendQueue.SetResendActive(true)

	e.flags.SetLastCommunicationError("linenumber")
	e.handleResend(2)

	if e.sendQueue.Len() != 0 {
		t.Fatal("an echoed resend request should be ignored, not enqueued")
	}
	if _, _, count := e.flags.ResendState(); count != 1 {
		t.Fatalf("resend count = %d, want 1 ignored echo recorded", count)
	}
}

// TestEngineResendForNextLineIsSpurious covers the double-ack case: no
// resend pending and the printer asks for the line we haven't sent yet.
func TestEngineResendForNextLineIsSpurious(t *testing.T) {
	e, _ := newTestEngine()
	e.lineHistory.Append(1, "G28")
	e.flags.ResetLineNumber(2)

	e.handleResend(2)

	if active, _, _ := e.flags.ResendState(); active {
		t.Fatal("a resend request for the not-yet-sent line must not open a window")
	}
	if e.sendQueue.Len() != 0 {
		t.Fatal("nothing should be enqueued for a spurious resend request")
	}
}
