package reprap

import "testing"

func TestToCommandGcode(t *testing.T) {
	cmd := ToCommand("G28 Z0 F150")
	if cmd.Kind != KindGcode {
		t.Fatalf("Kind = %v, want KindGcode", cmd.Kind)
	}
	if cmd.Code() != "G28" {
		t.Fatalf("Code() = %q, want G28", cmd.Code())
	}
}

func TestToCommandAtCommand(t *testing.T) {
	cmd := ToCommand("@pause user-requested")
	if cmd.Kind != KindAtCommand {
		t.Fatalf("Kind = %v, want KindAtCommand", cmd.Kind)
	}
	if cmd.AtName != "pause" || cmd.AtParams != "user-requested" {
		t.Fatalf("AtName/AtParams = %q/%q, want pause/user-requested", cmd.AtName, cmd.AtParams)
	}
}

func TestToCommandText(t *testing.T) {
	cmd := ToCommand("not a gcode line")
	if cmd.Kind != KindText {
		t.Fatalf("Kind = %v, want KindText", cmd.Kind)
	}
}

func TestToCommandIsStableUnderRoundTrip(t *testing.T) {
	original := ToCommand("G1 X1 Y2 F1500")
	again := ToCommand(original.Line())
	if original.Code() != again.Code() {
		t.Fatalf("round trip changed Code(): %q vs %q", original.Code(), again.Code())
	}
	if original.Line() != again.Line() {
		t.Fatalf("ToCommand(cmd.Line()) is not stable: %q vs %q", original.Line(), again.Line())
	}
}

func TestWithTagsUnionsWithoutMutatingOriginal(t *testing.T) {
	base := ToCommand("G28")
	tagged := base.WithTags(TagSourceFile)
	if base.HasTag(TagSourceFile) {
		t.Fatal("WithTags must not mutate the receiver")
	}
	if !tagged.HasTag(TagSourceFile) {
		t.Fatal("the returned copy should carry the new tag")
	}
	doubleTagged := tagged.WithTags(TagForce)
	if !doubleTagged.HasTag(TagSourceFile) || !doubleTagged.HasTag(TagForce) {
		t.Fatal("WithTags should union with previously set tags")
	}
}

func TestWithTypeIsDedupKey(t *testing.T) {
	cmd := ToCommand("M105").WithType("temperature_poll")
	if cmd.Type != "temperature_poll" {
		t.Fatalf("Type = %q, want temperature_poll", cmd.Type)
	}
}

func TestCommandIsEmptyAfterStrip(t *testing.T) {
	cmd := NewTextCommand("   ")
	if !cmd.IsEmpty() {
		t.Fatal("a whitespace-only line should be considered empty")
	}
}
