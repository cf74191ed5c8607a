package reprap

import (
	"fmt"
	"strconv"
)

// Phase is a command pipeline stage (spec.md 4.F).
type Phase string

const (
	PhaseQueuing Phase = "queuing"
	PhaseQueued  Phase = "queued"
	PhaseSending Phase = "sending"
	PhaseSent    Phase = "sent"
)

// PhaseResult is what a phase handler may return: nothing (nil slice),
// one or more replacement commands, or a signal to drop the line
// entirely (Drop=true). It is the Go-native normalisation target for
// octoprint.comm.protocol.reprap.util.normalize_command_handler_result's
// null / str / Command / 1-3-tuple return shapes: a Go handler simply
// returns ([]Command, bool) instead of something requiring runtime
// shape-sniffing.
type PhaseResult struct {
	Commands []Command
	Drop     bool
}

// PhaseHandler runs during one phase of one command's trip through the
// pipeline.
type PhaseHandler func(cmd Command, phase Phase) PhaseResult

// normalizeHandlerResult is kept for handlers ported directly from string/
// tuple-shaped logic (none currently use it, but a plugin-hook adapter
// would), matching the contract of normalize_command_handler_result: a nil
// result means "unchanged", an empty non-nil slice means "drop".
func normalizeHandlerResult(cmd Command, results []Command) PhaseResult {
	if results == nil {
		return PhaseResult{Commands: []Command{cmd}}
	}
	if len(results) == 0 {
		return PhaseResult{Drop: true}
	}
	return PhaseResult{Commands: results}
}

// Pipeline runs the queuing/queued/sending/sent phase handlers for gcode
// commands (Component G, spec.md 4.F), grounded on the _gcode_<CODE>_<phase>
// dispatch table in octoprint.comm.protocol.reprap.
type Pipeline struct {
	engine   *Engine
	handlers map[string]map[Phase]PhaseHandler
}

// NewPipeline builds the representative gcode handler table named in
// spec.md 4.F: M104/M109/M140/M190/M141/M191 (temperature offsets at
// sending, target and heatup tracking at sent; bed/chamber commands are
// dropped at queuing when the printer has no such heater), M110 (line
// number reset), M112 (emergency fast path), M155/M27 (autoreport enable
// bookkeeping), G0-G3/G28/G29/G32 (last Z and feedrate tracking), G4
// (dwell), T<n> (tool tracking).
func NewPipeline(engine *Engine) *Pipeline {
	p := &Pipeline{engine: engine, handlers: make(map[string]map[Phase]PhaseHandler)}
	p.registerPhase("M104", PhaseSending, p.toolOffsetSending(false))
	p.registerPhase("M109", PhaseSending, p.toolOffsetSending(true))
	p.registerPhase("M140", PhaseSending, p.offsetSending("bed", false))
	p.registerPhase("M190", PhaseSending, p.offsetSending("bed", true))
	p.registerPhase("M141", PhaseSending, p.offsetSending("chamber", false))
	p.registerPhase("M191", PhaseSending, p.offsetSending("chamber", true))
	p.registerPhase("M104", PhaseSent, p.toolTempSent(false, false))
	p.registerPhase("M109", PhaseSent, p.toolTempSent(true, true))
	p.registerPhase("M140", PhaseSent, p.bedTempSent(false, false))
	p.registerPhase("M190", PhaseSent, p.bedTempSent(true, true))
	p.registerPhase("M141", PhaseSent, p.chamberTempSent(false, false))
	p.registerPhase("M191", PhaseSent, p.chamberTempSent(true, true))
	p.registerPhase("M110", PhaseSending, p.m110Sending)
	p.registerPhase("M112", PhaseQueuing, p.m112Queuing)
	p.registerPhase("G4", PhaseSending, p.g4Sending)
	for _, code := range []string{"G0", "G1", "G2", "G3", "G28", "G29", "G32"} {
		p.registerPhase(code, PhaseSent, p.motionSent)
	}
	p.registerPhase("M155", PhaseSent, p.autoreportTempSent)
	p.registerPhase("M27", PhaseSent, p.autoreportSDSent)
	p.registerPhase("M140", PhaseQueuing, p.bedHeaterQueuing)
	p.registerPhase("M190", PhaseQueuing, p.bedHeaterQueuing)
	p.registerPhase("M141", PhaseQueuing, p.chamberHeaterQueuing)
	p.registerPhase("M191", PhaseQueuing, p.chamberHeaterQueuing)
	return p
}

// bedHeaterQueuing drops M140/M190 outright when the printer profile has
// no heated bed (spec.md 4.F); there's nothing downstream for the
// firmware to act on.
func (p *Pipeline) bedHeaterQueuing(cmd Command, phase Phase) PhaseResult {
	if _, hasBed, _ := p.engine.heaterProfile(); !hasBed {
		return PhaseResult{Drop: true}
	}
	return PhaseResult{Commands: []Command{cmd}}
}

// chamberHeaterQueuing is bedHeaterQueuing's M141/M191 counterpart.
func (p *Pipeline) chamberHeaterQueuing(cmd Command, phase Phase) PhaseResult {
	if _, _, hasChamber := p.engine.heaterProfile(); !hasChamber {
		return PhaseResult{Drop: true}
	}
	return PhaseResult{Commands: []Command{cmd}}
}

func (p *Pipeline) registerPhase(code string, phase Phase, h PhaseHandler) {
	m := p.handlers[code]
	if m == nil {
		m = make(map[Phase]PhaseHandler)
		p.handlers[code] = m
	}
	m[phase] = h
}

// Run executes phase for cmd, returning the (possibly rewritten, possibly
// dropped) command set that should continue through the pipeline.
func (p *Pipeline) Run(cmd Command, phase Phase) PhaseResult {
	if phase == PhaseQueued {
		if tool, ok := toolChangeIndex(cmd); ok {
			p.engine.flags.SetCurrentTool(tool)
		}
	}
	if cmd.Kind == KindAtCommand {
		if phase == PhaseQueuing {
			p.runAtCommandQueuing(cmd)
		}
		return PhaseResult{Commands: []Command{cmd}}
	}
	if cmd.Kind != KindGcode || cmd.Gcode == nil {
		return PhaseResult{Commands: []Command{cmd}}
	}
	code := cmd.Gcode.Code()
	if phase == PhaseQueuing {
		cfg := p.engine.flavor().Config
		// A pausing command inside a streamed job (M0/M1/M25) pauses the
		// print; whether the command itself still goes out is then decided
		// by the blocked set below.
		if cfg.PausingCommands[code] && p.engine.State() == StateProcessing && cmd.HasTag(TagSourceJob) {
			_ = p.engine.Pause()
		}
		if cfg.BlockedCommands[code] && !cmd.HasTag(TagForce) {
			return PhaseResult{Drop: true}
		}
	}
	if handlers, ok := p.handlers[code]; ok {
		if h, ok := handlers[phase]; ok {
			return h(cmd, phase)
		}
	}
	return PhaseResult{Commands: []Command{cmd}}
}

// runAtCommandQueuing drives the pause/cancel/resume transitions for
// @pause, @cancel/@abort and @resume (spec.md 4.F's "@-commands"), guarded
// by a tag check so a script that itself issues "@pause" while running as
// the afterPrintPaused script (etc.) doesn't recurse back into Pause.
func (p *Pipeline) runAtCommandQueuing(cmd Command) {
	switch cmd.AtName {
	case "pause":
		if !cmd.HasTag("script:afterPrintPaused") {
			_ = p.engine.Pause()
		}
	case "cancel", "abort":
		if !cmd.HasTag("script:afterPrintCancelled") {
			_ = p.engine.Cancel()
		}
	case "resume":
		if !cmd.HasTag("script:beforePrintResumed") {
			_ = p.engine.Resume()
		}
	}
}

// toolChangeIndex recognises a bare "T<n>" tool-change line, which
// tokenises as KindText (gcode.Parse requires a leading G/M letter), and
// extracts n.
func toolChangeIndex(cmd Command) (int, bool) {
	if cmd.Kind != KindText {
		return 0, false
	}
	line := cmd.Line()
	if len(line) < 2 || (line[0] != 'T' && line[0] != 't') {
		return 0, false
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// toolOffsetSending applies the per-tool temperature offset to an
// M104/M109 about to be written, resolving the heater from the command's
// T parameter or the active tool.
func (p *Pipeline) toolOffsetSending(supportR bool) PhaseHandler {
	return func(cmd Command, phase Phase) PhaseResult {
		tool := p.engine.flags.CurrentTool()
		if t, ok := cmd.Gcode.Param('T'); ok {
			tool = int(t)
		}
		return p.applyTempOffset(cmd, fmt.Sprintf("tool%d", tool), supportR)
	}
}

// offsetSending is toolOffsetSending's fixed-heater (bed/chamber)
// counterpart.
func (p *Pipeline) offsetSending(heater string, supportR bool) PhaseHandler {
	return func(cmd Command, phase Phase) PhaseResult {
		return p.applyTempOffset(cmd, heater, supportR)
	}
}

// applyTempOffset shifts a heat command's S (or, for wait variants, R)
// parameter by the configured per-heater offset. Only commands streamed
// from a file are adjusted; a temperature the user typed means exactly
// what it says. The rewrite happens at sending so the queued command
// keeps its original parameters for display.
func (p *Pipeline) applyTempOffset(cmd Command, heater string, supportR bool) PhaseResult {
	offset := p.engine.temperatureOffset(heater)
	if offset == 0 || !cmd.HasTag(TagSourceFile) {
		return PhaseResult{Commands: []Command{cmd}}
	}
	if s, ok := cmd.Gcode.Param('S'); ok {
		return PhaseResult{Commands: []Command{cmd.WithGcode(cmd.Gcode.WithParam('S', s+offset))}}
	}
	if r, ok := cmd.Gcode.Param('R'); ok && supportR {
		return PhaseResult{Commands: []Command{cmd.WithGcode(cmd.Gcode.WithParam('R', r+offset))}}
	}
	return PhaseResult{Commands: []Command{cmd}}
}

// heatTarget extracts the commanded target from S or, for wait variants,
// R.
func heatTarget(cmd Command, supportR bool) (float64, bool) {
	if s, ok := cmd.Gcode.Param('S'); ok {
		return s, true
	}
	if r, ok := cmd.Gcode.Param('R'); ok && supportR {
		return r, true
	}
	return 0, false
}

// markHeatupStarted flips the blocking-heatup bookkeeping for the wait
// variants (M109/M190/M191): the firmware will sit on this command until
// the heater reaches target, so the looser timeout ceiling applies.
func (p *Pipeline) markHeatupStarted() {
	p.engine.flags.SetHeating(true)
	p.engine.flags.SetHeatingStart(p.engine.now())
	p.engine.flags.SetLongRunning(true)
}

// toolTempSent records the commanded target on the tool's temperature
// record once an M104/M109 is on the wire, and for the wait variant also
// starts heatup accounting and the former-tool save (an M109 T1 while T0
// is active implicitly selects T1 until the next ok).
func (p *Pipeline) toolTempSent(wait, supportR bool) PhaseHandler {
	return func(cmd Command, phase Phase) PhaseResult {
		tool := p.engine.flags.CurrentTool()
		if t, ok := cmd.Gcode.Param('T'); ok {
			tool = int(t)
			if wait && tool != p.engine.flags.CurrentTool() {
				p.engine.flags.SaveFormerTool()
				p.engine.flags.SetCurrentTool(tool)
			}
		}
		if wait {
			p.markHeatupStarted()
		}
		if target, ok := heatTarget(cmd, supportR); ok && target > 0 {
			p.engine.lastTemperature.SetTool(tool, nil, &target)
			p.engine.emit(EventTemperature, nil)
		}
		return PhaseResult{Commands: []Command{cmd}}
	}
}

func (p *Pipeline) bedTempSent(wait, supportR bool) PhaseHandler {
	return func(cmd Command, phase Phase) PhaseResult {
		if wait {
			p.markHeatupStarted()
		}
		if target, ok := heatTarget(cmd, supportR); ok && target > 0 {
			p.engine.lastTemperature.SetBed(nil, &target)
			p.engine.emit(EventTemperature, nil)
		}
		return PhaseResult{Commands: []Command{cmd}}
	}
}

func (p *Pipeline) chamberTempSent(wait, supportR bool) PhaseHandler {
	return func(cmd Command, phase Phase) PhaseResult {
		if wait {
			p.markHeatupStarted()
		}
		if target, ok := heatTarget(cmd, supportR); ok && target > 0 {
			p.engine.lastTemperature.SetChamber(nil, &target)
			p.engine.emit(EventTemperature, nil)
		}
		return PhaseResult{Commands: []Command{cmd}}
	}
}

// m110Sending applies the new line number to the flags and clears Line
// History before the M110 itself is framed and written, since no resend
// can span a renumbering (spec.md invariant, 4.F).
func (p *Pipeline) m110Sending(cmd Command, phase Phase) PhaseResult {
	n := 0
	if v, ok := cmd.Gcode.Param('N'); ok {
		n = int(v)
	}
	p.engine.flags.ResetLineNumber(n)
	p.engine.lineHistory.Clear()
	p.engine.flags.ClearResend()
	return PhaseResult{Commands: []Command{cmd}}
}

// m112Queuing routes M112 onto the emergency fast path instead of the
// ordinary send queue.
func (p *Pipeline) m112Queuing(cmd Command, phase Phase) PhaseResult {
	p.engine.emergencyStop(cmd)
	return PhaseResult{Drop: true}
}

// g4Sending arms the dwell window so the send loop blocks until it
// elapses before servicing the next queue item.
func (p *Pipeline) g4Sending(cmd Command, phase Phase) PhaseResult {
	var seconds float64
	if v, ok := cmd.Gcode.Param('S'); ok {
		seconds = v
	} else if v, ok := cmd.Gcode.Param('P'); ok {
		seconds = v / 1000.0
	}
	if seconds > 0 {
		p.engine.armDwell(seconds)
	}
	return PhaseResult{Commands: []Command{cmd}}
}

// motionSent tracks the last-commanded Z/F for status reporting.
func (p *Pipeline) motionSent(cmd Command, phase Phase) PhaseResult {
	z, f := p.engine.flags.CurrentZF()
	if v, ok := cmd.Gcode.Param('Z'); ok {
		z = v
	}
	if v, ok := cmd.Gcode.Param('F'); ok {
		f = v
	}
	p.engine.flags.SetCurrentZ(z)
	p.engine.flags.SetCurrentF(f)
	return PhaseResult{Commands: []Command{cmd}}
}

// autoreportTempSent / autoreportSDSent track whether the firmware has
// been told to push reports on its own; the flag only flips on when the
// firmware actually advertised the capability, an M155/M27 fired at a
// firmware that ignores it must not silence the pollers.
func (p *Pipeline) autoreportTempSent(cmd Command, phase Phase) PhaseResult {
	interval, _ := cmd.Gcode.Param('S')
	p.engine.flags.SetTempAutoreporting(interval > 0 && p.engine.flags.Capability("AUTOREPORT_TEMP"))
	return PhaseResult{Commands: []Command{cmd}}
}

func (p *Pipeline) autoreportSDSent(cmd Command, phase Phase) PhaseResult {
	interval, _ := cmd.Gcode.Param('S')
	p.engine.flags.SetSDStatusAutoreport(interval > 0 && p.engine.flags.Capability("AUTOREPORT_SD_STATUS"))
	return PhaseResult{Commands: []Command{cmd}}
}
