package reprap

import (
	"strings"
	"testing"
)

func newTestEngine() (*Engine, *mockTransport) {
	mt := newMockTransport()
	e := NewEngine(mt)
	return e, mt
}

func TestPipelineM110ResetsLineNumberAndHistory(t *testing.T) {
	e, _ := newTestEngine()
	e.lineHistory.Append(5, "G28")
	e.flags.ResetLineNumber(5)
	e.flags.BeginResend(3)

	cmd := ToCommand("M110 N0")
	e.pipeline.Run(cmd, PhaseSending)

	if got := e.flags.CurrentLineNumber(); got != 0 {
		t.Fatalf("CurrentLineNumber() = %d, want 0", got)
	}
	if e.lineHistory.Len() != 0 {
		t.Fatal("M110 should clear Line History")
	}
	if active, _, _ := e.flags.ResendState(); active {
		t.Fatal("M110 should clear any active resend window")
	}
}

func TestPipelineM112RoutesToEmergencyFastPath(t *testing.T) {
	e, mt := newTestEngine()
	cmd := ToCommand("M112")

	result := e.pipeline.Run(cmd, PhaseQueuing)
	if !result.Drop {
		t.Fatal("M112 queuing should drop the original command from the normal pipeline")
	}

	// Default profile: one extruder, heated bed. Expected: the bare stop,
	// the numbered stop, then every configured heater forced off.
	lines := mt.Lines()
	if len(lines) != 4 {
		t.Fatalf("expected bare M112 + numbered M112 + heater-off lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "M112\n" {
		t.Fatalf("first write should be the bare, unnumbered form, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "N") || !strings.Contains(lines[1], "M112") || !strings.Contains(lines[1], "*") {
		t.Fatalf("second write should be the numbered, checksummed form, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "M104 S0") {
		t.Fatalf("third write should zero the extruder, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "M140 S0") {
		t.Fatalf("fourth write should zero the heated bed, got %q", lines[3])
	}
	if e.lineHistory.Len() != 3 {
		t.Fatal("every numbered emergency send should be recorded in Line History so a later resend can be satisfied")
	}
}

func TestPipelineM112ZeroesEveryConfiguredExtruder(t *testing.T) {
	e, mt := newTestEngine()
	e.SetHeaterProfile(2, false, false)

	e.pipeline.Run(ToCommand("M112"), PhaseQueuing)

	lines := mt.Lines()
	if len(lines) != 4 {
		t.Fatalf("expected bare + numbered M112 + one M104 per extruder, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[2], "M104 T0 S0") || !strings.Contains(lines[3], "M104 T1 S0") {
		t.Fatalf("writes = %v, want per-tool M104 T0 S0 / M104 T1 S0 and no bed line", lines)
	}
}

func TestPipelineHeatupSentSetsHeatingFlagAndTarget(t *testing.T) {
	e, _ := newTestEngine()
	cmd := ToCommand("M109 S200")
	e.pipeline.Run(cmd, PhaseSent)
	if !e.flags.Heating() {
		t.Fatal("M109 sent should set the heating flag")
	}
	if !e.flags.LongRunning() {
		t.Fatal("M109 sent should mark a long-running command")
	}
	if _, target := e.lastTemperature.Tool(0); target == nil || *target != 200 {
		t.Fatalf("tool 0 target = %v, want 200 recorded from M109 S200", target)
	}
}

func TestPipelineNonWaitHeatupDoesNotSetHeating(t *testing.T) {
	e, _ := newTestEngine()
	cmd := ToCommand("M104 S200")
	e.pipeline.Run(cmd, PhaseSent)
	if e.flags.Heating() {
		t.Fatal("M104 (no-wait heatup) should not set the heating flag")
	}
	if _, target := e.lastTemperature.Tool(0); target == nil || *target != 200 {
		t.Fatalf("tool 0 target = %v, want 200 recorded from M104 S200", target)
	}
}

func TestPipelineTemperatureOffsetAppliedToFileCommands(t *testing.T) {
	e, _ := newTestEngine()
	e.SetTemperatureOffset("tool0", 10)

	cmd := ToCommand("M104 S200").WithTags(TagSourceFile)
	result := e.pipeline.Run(cmd, PhaseSending)
	if len(result.Commands) != 1 {
		t.Fatalf("len(result.Commands) = %d, want 1", len(result.Commands))
	}
	if s, _ := result.Commands[0].Gcode.Param('S'); s != 210 {
		t.Fatalf("S = %v, want 210 (200 + tool0 offset 10)", s)
	}
}

func TestPipelineTemperatureOffsetIgnoredForUserCommands(t *testing.T) {
	e, _ := newTestEngine()
	e.SetTemperatureOffset("tool0", 10)

	cmd := ToCommand("M104 S200")
	result := e.pipeline.Run(cmd, PhaseSending)
	if s, _ := result.Commands[0].Gcode.Param('S'); s != 200 {
		t.Fatalf("S = %v, want an untouched 200 for a user-issued command", s)
	}
}

func TestPipelineBlockedCommandDropped(t *testing.T) {
	e, _ := newTestEngine()
	result := e.pipeline.Run(ToCommand("M0"), PhaseQueuing)
	if !result.Drop {
		t.Fatal("M0 is in the blocked set and should be dropped at queuing")
	}
}

func TestPipelineG4SendingArmsDwell(t *testing.T) {
	e, _ := newTestEngine()
	cmd := ToCommand("G4 P500")
	e.pipeline.Run(cmd, PhaseSending)
	_, dwelling := e.flags.DwellingUntil()
	if !dwelling {
		t.Fatal("G4 P500 should arm the dwell window")
	}
}

func TestPipelineAtPauseTriggersPauseTransition(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)
	cmd := ToCommand("@pause")
	e.pipeline.Run(cmd, PhaseQueuing)
	if e.State() != StatePausing {
		t.Fatalf("State() = %v, want PAUSING after @pause", e.State())
	}
}

func TestPipelineAtPauseInsideItsOwnScriptDoesNotRecurse(t *testing.T) {
	e, _ := newTestEngine()
	e.setState(StateProcessing)
	cmd := ToCommand("@pause").WithTags("script:afterPrintPaused")
	e.pipeline.Run(cmd, PhaseQueuing)
	if e.State() != StateProcessing {
		t.Fatalf("State() = %v, want unchanged PROCESSING (recursion guard should have suppressed the transition)", e.State())
	}
}
