package reprap

import (
	"testing"
	"time"

	"github.com/solderline/reprapd/gcode"
)

func waitForLines(t *testing.T, mt *mockTransport, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lines := mt.Lines(); len(lines) >= n {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d wire writes, have %v", n, mt.Lines())
	return nil
}

// TestEngineConnectHandshakeWireFormat drives the full connect handshake
// through the real send loop: the hello goes out as "N0 M110 N0*<c>" (the
// M110 carries the line number it resets to), the firmware's first ok
// completes the connection, and the firmware-info query follows as line 1.
func TestEngineConnectHandshakeWireFormat(t *testing.T) {
	e, mt := newTestEngine()
	if err := e.Connect(); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	defer e.Disconnect()

	lines := waitForLines(t, mt, 1)
	if want := gcode.AddLineAndHash(0, "M110 N0") + "\n"; lines[0] != want {
		t.Fatalf("hello frame = %q, want %q", lines[0], want)
	}

	mt.Feed("ok")

	lines = waitForLines(t, mt, 2)
	if e.State() != StateConnected {
		t.Fatalf("State() = %v, want CONNECTED after the first ok", e.State())
	}
	if want := gcode.AddLineAndHash(1, "M115") + "\n"; lines[1] != want {
		t.Fatalf("second frame = %q, want the firmware-info query %q", lines[1], want)
	}
	if got, ok := e.lineHistory.Get(1); !ok || got != "M115" {
		t.Fatalf("lineHistory[1] = %q/%v, want the un-framed M115", got, ok)
	}
}

// TestEngineWriteOneSkipsChecksumOnceIdentifiedIdle covers spec.md 4.H's
// checksum_enabled rule: with send_checksum "printing", an identified
// firmware sitting idle gets bare lines, and bare lines consume neither a
// line number nor a Line History slot.
func TestEngineWriteOneSkipsChecksumOnceIdentifiedIdle(t *testing.T) {
	e, mt := newTestEngine()
	e.setState(StateConnected)
	e.flags.SetFirmwareIdentified(true)

	item := NewCommandItem(ToCommand("G1 X10"), "", nil)
	e.writeOne(item, *item.Command)

	lines := mt.Lines()
	if len(lines) != 1 || lines[0] != "G1 X10\n" {
		t.Fatalf("wire = %v, want one bare \"G1 X10\\n\"", lines)
	}
	if got := e.flags.CurrentLineNumber(); got != 1 {
		t.Fatalf("CurrentLineNumber() = %d, want untouched 1", got)
	}
	if e.lineHistory.Len() != 0 {
		t.Fatal("unchecksummed lines must not enter Line History")
	}
}

// TestEngineWriteOneChecksumsWhileProcessing is the same rule's positive
// half: a print in progress numbers and checksums every G-code line and
// records it for resend service.
func TestEngineWriteOneChecksumsWhileProcessing(t *testing.T) {
	e, mt := newTestEngine()
	e.setState(StateProcessing)
	e.flags.SetFirmwareIdentified(true)

	item := NewCommandItem(ToCommand("G28"), "", nil)
	e.writeOne(item, *item.Command)

	lines := mt.Lines()
	if want := gcode.AddLineAndHash(1, "G28") + "\n"; len(lines) != 1 || lines[0] != want {
		t.Fatalf("wire = %v, want [%q]", lines, want)
	}
	if got, ok := e.lineHistory.Get(1); !ok || got != "G28" {
		t.Fatalf("lineHistory[1] = %q/%v, want \"G28\"", got, ok)
	}
	if got := e.flags.CurrentLineNumber(); got != 2 {
		t.Fatalf("CurrentLineNumber() = %d, want 2", got)
	}
}

// TestEngineWriteOneMarksLongRunningCommands confirms a command in the
// flavor's long-running set flips the flag once sent, softening the
// consecutive-timeout ceiling (spec.md 4.E).
func TestEngineWriteOneMarksLongRunningCommands(t *testing.T) {
	e, _ := newTestEngine()

	item := NewCommandItem(ToCommand("G28"), "", nil)
	e.writeOne(item, *item.Command)

	if !e.flags.LongRunning() {
		t.Fatal("G28 is a long-running command and should set the flag on sent")
	}
}
