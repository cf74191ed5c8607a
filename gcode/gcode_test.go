package gcode

import "testing"

func TestAddLineAndHash(t *testing.T) {
	tests := []struct {
		lineno int
		cmd    string
		want   string
	}{
		{9, "G28 Z0 F150", "N9 G28 Z0 F150*2"},
	}
	for _, tt := range tests {
		got := AddLineAndHash(tt.lineno, tt.cmd)
		if got != tt.want {
			t.Errorf("(%d, %q), want: %q, got: %q", tt.lineno, tt.cmd, tt.want, got)
		}
	}
}

func TestParseBasic(t *testing.T) {
	cmd, err := Parse("G1 X10.5 Y-2 F1500")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Code() != "G1" {
		t.Errorf("Code() = %q, want G1", cmd.Code())
	}
	if v, ok := cmd.Param('X'); !ok || v != 10.5 {
		t.Errorf("Param('X') = %v, %v; want 10.5, true", v, ok)
	}
	if cmd.Feedrate == nil || *cmd.Feedrate != 1500 {
		t.Errorf("Feedrate = %v, want 1500", cmd.Feedrate)
	}
}

func TestParseSubcode(t *testing.T) {
	cmd, err := Parse("G28.1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Subcode == nil || *cmd.Subcode != 1 {
		t.Fatalf("Subcode = %v, want 1", cmd.Subcode)
	}
	if cmd.Code() != "G28.1" {
		t.Errorf("Code() = %q, want G28.1", cmd.Code())
	}
}

func TestParseFreeText(t *testing.T) {
	cmd, err := Parse("M117 Hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.FreeText != "Hello world" {
		t.Errorf("FreeText = %q, want %q", cmd.FreeText, "Hello world")
	}
}

func TestParseRejectsMissingCodeLetter(t *testing.T) {
	if _, err := Parse("X10"); err == nil {
		t.Fatal("Parse: want error for a line with no G/M code")
	}
}

func TestParseToolParam(t *testing.T) {
	cmd, err := Parse("M104 S200 T1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Tool == nil || *cmd.Tool != 1 {
		t.Fatalf("Tool = %v, want 1", cmd.Tool)
	}
}
