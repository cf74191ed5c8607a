package reprap

import (
	"fmt"
	"strconv"
	"strings"
)

// Generic is the default Flavor, modelled on Marlin/RepRapFirmware's common
// subset. It is intentionally permissive: its matchers recognise the wire
// shapes enumerated in spec.md 6 rather than any one firmware's exact
// grammar, the way octoprint.comm.protocol.reprap's built-in flavor does.
var Generic = &Flavor{
	Name:     "generic",
	Commands: genericCommands,
	Matchers: genericMatchers,
	Parsers:  genericParsers,
	Config: Config{
		SendChecksum:         "printing",
		TriggerOkAfterResend: "detect",
		UnknownRequiresAck:   false,
		UnknownWithChecksum:  false,
		BlockWhileDwelling:   true,
		HeatupAbortable:      false,
		SDRelativePath:       false,
		SDAlwaysAvailable:    false,

		BlockedCommands: map[string]bool{
			"M0": true, "M1": true,
		},
		ChecksumRequiringCommands: map[string]bool{
			"M110": true,
		},
		LongRunningCommands: map[string]bool{
			"G28": true, "G29": true, "G32": true, "M400": true,
		},
		AsynchronousCommands: map[string]bool{
			"G0": true, "G1": true, "G2": true, "G3": true,
		},
		PausingCommands: map[string]bool{
			"M0": true, "M1": true, "M25": true,
		},
		EmergencyCommands: map[string]bool{
			"M112": true, "M108": true, "M410": true,
		},

		LogPositionOnPause:  true,
		LogPositionOnCancel: true,

		FirmwareErrors: "disconnect",
		SendM112:       true,
		MaxConsecutiveTimeouts: MaxConsecutiveTimeouts{
			Idle:     2,
			Printing: 5,
			Long:     0,
		},
	},
}

var genericCommands = CommandSet{
	Hello:           func() string { return "M110 N0" },
	SetLine:         func(n int) string { return fmt.Sprintf("M110 N%d", n) },
	GetFirmwareInfo: func() string { return "M115" },
	GetTemperature:  func() string { return "M105" },
	GetPosition:     func() string { return "M114" },
	FinishMoving:    func() string { return "M400" },
	EmergencyStop:   func() string { return "M112" },
	AbortHeatup:     func() string { return "M108" },
	AutoreportTemperature: func(intervalSeconds int) string {
		return fmt.Sprintf("M155 S%d", intervalSeconds)
	},
	AutoreportSDStatus: func(intervalSeconds int) string {
		return fmt.Sprintf("M27 S%d", intervalSeconds)
	},
	BusyProtocolInterval: func(intervalSeconds int) string {
		return fmt.Sprintf("M113 S%d", intervalSeconds)
	},
	SetExtruderTemp: func(tool int, celsius float64, wait bool) string {
		code := "M104"
		if wait {
			code = "M109"
		}
		return fmt.Sprintf("%s T%d S%s", code, tool, trimFloat(celsius))
	},
	SetBedTemp: func(celsius float64, wait bool) string {
		code := "M140"
		if wait {
			code = "M190"
		}
		return fmt.Sprintf("%s S%s", code, trimFloat(celsius))
	},
	SetChamberTemp: func(celsius float64, wait bool) string {
		code := "M141"
		if wait {
			code = "M191"
		}
		return fmt.Sprintf("%s S%s", code, trimFloat(celsius))
	},
	Home: func(axes string) string {
		if axes == "" {
			return "G28"
		}
		return "G28 " + axes
	},
	Move: func(params map[byte]float64) string {
		var b strings.Builder
		b.WriteString("G1")
		for _, l := range []byte{'X', 'Y', 'Z', 'E', 'F'} {
			if v, ok := params[l]; ok {
				fmt.Fprintf(&b, " %c%s", l, trimFloat(v))
			}
		}
		return b.String()
	},
	SetTool: func(tool int) string { return fmt.Sprintf("T%d", tool) },

	SDInit:       func() string { return "M21" },
	SDRefresh:    func() string { return "M20" },
	SDSelect:     func(name string) string { return "M23 " + name },
	SDStart:      func() string { return "M24" },
	SDPause:      func() string { return "M25" },
	SDResume:     func() string { return "M24" },
	SDStatus:     func() string { return "M27" },
	SDBeginWrite: func(name string) string { return "M28 " + name },
	SDEndWrite:   func(name string) string { return "M29" },
	SDDelete:     func(name string) string { return "M30 " + name },
	SDSetPos:     func(pos int64) string { return fmt.Sprintf("M26 S%d", pos) },
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}

var genericMatchers = map[string]Matcher{
	// An ok frequently carries a temperature tail ("ok T:210.0 /210.0 ..."),
	// so the match allows further matchers to also see the line.
	"comm_ok": func(line, lower string, state State, flags *Flags) MatchResult {
		matched := lower == "ok" || strings.HasPrefix(lower, "ok ") || strings.HasPrefix(lower, "okt") || strings.HasPrefix(lower, "ok t")
		return MatchResult{Matched: matched, Continue: matched}
	},
	"comm_wait": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: lower == "wait"}
	},
	"comm_resend": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(lower, "resend:") || strings.HasPrefix(lower, "rs ") || strings.HasPrefix(lower, "rs:")}
	},
	"comm_start": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: lower == "start"}
	},
	"comm_busy": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(lower, "busy:")}
	},
	"comm_action_command": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(line, "//action:")}
	},
	"message_temperature": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(line, "T:") || strings.Contains(line, "T0:")}
	},
	"message_position": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(line, "X:") && strings.Contains(line, "Y:") && strings.Contains(line, "Z:")}
	},
	"message_firmware_info": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(line, "FIRMWARE_NAME:") || strings.Contains(line, "FIRMWARE_NAME:")}
	},
	"message_firmware_capability": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(line, "Cap:")}
	},
	"message_sd_init_ok": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(lower, "sd card ok")}
	},
	"message_sd_init_fail": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(lower, "sd init fail") || strings.Contains(lower, "volume.init failed")}
	},
	"message_sd_begin_file_list": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(lower, "begin file list")}
	},
	"message_sd_end_file_list": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(lower, "end file list")}
	},
	"message_sd_entry": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: flags.SDListing()}
	},
	"message_sd_file_opened": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(lower, "file opened:")}
	},
	"message_sd_done_printing": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.Contains(lower, "done printing file")}
	},
	"message_sd_printing_byte": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(lower, "sd printing byte")}
	},
	// Checksum/line-number complaints precede a Resend: line and must not be
	// treated as firmware errors; they only feed the resend-echo heuristic.
	"error_communication": func(line, lower string, state State, flags *Flags) MatchResult {
		if !strings.HasPrefix(lower, "error:") && !strings.HasPrefix(lower, "!!") {
			return MatchResult{}
		}
		matched := strings.Contains(lower, "checksum") ||
			strings.Contains(lower, "line number") ||
			strings.Contains(lower, "lineno") ||
			strings.Contains(lower, "expected line") ||
			strings.Contains(lower, "format error")
		return MatchResult{Matched: matched}
	},
	"error_sdcard": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(line, "Error:") && strings.Contains(lower, "sd")}
	},
	"error_generic": func(line, lower string, state State, flags *Flags) MatchResult {
		return MatchResult{Matched: strings.HasPrefix(line, "Error:") || strings.HasPrefix(line, "!!")}
	},
}

var genericParsers = map[string]Parser{
	"comm_resend": func(line, lower string, state State, flags *Flags) (Args, bool) {
		rest := line
		switch {
		case strings.HasPrefix(lower, "resend:"):
			rest = line[len("Resend:"):]
		case strings.HasPrefix(lower, "rs:"):
			rest = line[len("rs:"):]
		case strings.HasPrefix(lower, "rs "):
			rest = line[len("rs "):]
		}
		rest = strings.TrimSpace(rest)
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, false
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, false
		}
		return Args{"lineno": n}, true
	},
	// A bare "T:" reading belongs to the currently selected tool; "T<n>:"
	// tokens name their tool explicitly. Temperature lines often ride on an
	// ok ("ok T:...") so the raw line may carry a leading token that simply
	// doesn't split as key:value and is skipped.
	"message_temperature": func(line, lower string, state State, flags *Flags) (Args, bool) {
		readings := make(map[int]TempReading)
		var bed, chamber *TempReading
		maxTool := -1
		// Marlin puts a space before the target half ("T:210.0 /210.0");
		// fold it back onto the reading so each token is self-contained.
		line = strings.ReplaceAll(line, " /", "/")
		for _, tok := range strings.Fields(line) {
			key, val, ok := splitColonToken(tok)
			if !ok {
				continue
			}
			actual, target, ok := splitSlash(val)
			if !ok {
				continue
			}
			switch {
			case key == "B":
				bed = &TempReading{Actual: actual, Target: target}
			case key == "C":
				chamber = &TempReading{Actual: actual, Target: target}
			case key == "T":
				tool := flags.CurrentTool()
				readings[tool] = TempReading{Actual: actual, Target: target}
				if tool > maxTool {
					maxTool = tool
				}
			case len(key) > 1 && key[0] == 'T':
				idx, err := strconv.Atoi(key[1:])
				if err != nil {
					continue
				}
				readings[idx] = TempReading{Actual: actual, Target: target}
				if idx > maxTool {
					maxTool = idx
				}
			}
		}
		if len(readings) == 0 && bed == nil && chamber == nil {
			return nil, false
		}
		return Args{"tools": readings, "bed": bed, "chamber": chamber, "max_tool": maxTool}, true
	},
	"message_position": func(line, lower string, state State, flags *Flags) (Args, bool) {
		args := Args{}
		tokens := strings.Fields(line)
		for _, tok := range tokens {
			key, val, ok := splitColonToken(tok)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				continue
			}
			switch key {
			case "X", "Y", "Z", "E", "F":
				args[key] = f
			default:
				args[strings.ToLower(key)] = f
			}
		}
		return args, true
	},
	"message_firmware_info": func(line, lower string, state State, flags *Flags) (Args, bool) {
		info := make(map[string]string)
		for _, tok := range strings.Fields(line) {
			key, val, ok := splitColonToken(tok)
			if !ok {
				continue
			}
			info[key] = val
		}
		return Args{"info": info}, true
	},
	"message_firmware_capability": func(line, lower string, state State, flags *Flags) (Args, bool) {
		rest := strings.TrimPrefix(line, "Cap:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return nil, false
		}
		return Args{"capability": parts[0], "enabled": strings.TrimSpace(parts[1]) == "1"}, true
	},
	"error_communication": func(line, lower string, state State, flags *Flags) (Args, bool) {
		kind := "linenumber"
		if strings.Contains(lower, "checksum") {
			kind = "checksum"
		}
		return Args{"error_type": kind}, true
	},
	"message_sd_entry": func(line, lower string, state State, flags *Flags) (Args, bool) {
		name := strings.TrimSpace(strings.Fields(line)[0])
		if name == "" {
			return nil, false
		}
		return Args{"name": name}, true
	},
	"message_sd_file_opened": func(line, lower string, state State, flags *Flags) (Args, bool) {
		rest := strings.TrimSpace(strings.TrimPrefix(line, "File opened:"))
		name := rest
		if idx := strings.Index(rest, "Size:"); idx >= 0 {
			name = strings.TrimSpace(rest[:idx])
		}
		return Args{"name": name}, true
	},
	"message_sd_printing_byte": func(line, lower string, state State, flags *Flags) (Args, bool) {
		rest := strings.TrimSpace(strings.TrimPrefix(lower, "sd printing byte"))
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return nil, false
		}
		pos, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		total, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		return Args{"pos": pos, "total": total}, true
	},
}

func splitColonToken(tok string) (key, val string, ok bool) {
	idx := strings.Index(tok, ":")
	if idx < 0 || idx == len(tok)-1 {
		return "", "", false
	}
	return tok[:idx], tok[idx+1:], true
}

func splitSlash(val string) (actual, target *float64, ok bool) {
	parts := strings.SplitN(val, "/", 2)
	a, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, nil, false
	}
	actual = &a
	if len(parts) == 2 {
		t, err := strconv.ParseFloat(parts[1], 64)
		if err == nil {
			target = &t
		}
	}
	return actual, target, true
}
