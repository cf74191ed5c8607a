package reprap

import (
	"context"
	"sync"
	"time"
)

// Logger is the printf-shaped logging hook the engine reports through,
// the same shape as the logf helpers in the original agent. Pass
// log.Printf for stderr logging; a nil Logger silences the engine.
type Logger func(format string, args ...interface{})

// Engine is the top-level wiring described in spec.md 4.I/5: it owns the
// protocol state, the flags, the command and send queues (job lines are
// pulled straight from the Job; there is no separate job queue), the Line History, the
// Send Token, the active Flavor, and the receive/send goroutine pair
// (T1/T2). It is the Go-native analogue of RealDownlink plus the protocol
// bookkeeping downlink.go left to its caller.
type Engine struct {
	mu          sync.Mutex
	state       State
	flavorValue *Flavor
	transport   Transport
	job         Job

	flags       *Flags
	lineHistory *LineHistory
	sendToken   *SendToken

	commandQueue *Queue
	sendQueue    *Queue

	pipeline   *Pipeline
	dispatcher *Dispatcher

	listenersMu sync.Mutex
	listeners   []Listener
	log         Logger

	resendOkTimer     *time.Timer
	positionWaitTimer *time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	clock func() time.Time

	lastTemperature *TemperatureRecord
	lastPosition    *PositionRecord
	sdStatus        *SDStatusRecord

	pausePositionRecorded  bool
	cancelPositionRecorded bool
	pausePosition          *PositionRecord
	cancelPosition         *PositionRecord
	pauseTemperature       *TemperatureRecord
	cancelTemperature      *TemperatureRecord

	offsetsMu   sync.Mutex
	tempOffsets map[string]float64

	extruderCount    int
	hasHeatedBed     bool
	hasHeatedChamber bool
}

// NewEngine wires a fresh Engine around transport, defaulting to the
// Generic flavor. Call Connect to start the receive/send goroutines.
func NewEngine(transport Transport) *Engine {
	e := &Engine{
		state:             StateDisconnected,
		flavorValue:       Generic,
		transport:         transport,
		flags:             NewFlags(),
		lineHistory:       NewLineHistory(50),
		sendToken:         NewSendToken(0),
		commandQueue:      NewQueue("command"),
		sendQueue:         NewQueue("send"),
		lastTemperature:   NewTemperatureRecord(),
		lastPosition:      &PositionRecord{},
		sdStatus:          NewSDStatusRecord(),
		pauseTemperature:  NewTemperatureRecord(),
		cancelTemperature: NewTemperatureRecord(),
		tempOffsets:       make(map[string]float64),
		clock:             time.Now,
		extruderCount:     1,
		hasHeatedBed:      true,
	}
	e.pipeline = NewPipeline(e)
	e.dispatcher = NewDispatcher(e)
	e.resendOkTimer = time.NewTimer(time.Hour)
	e.resendOkTimer.Stop()
	e.positionWaitTimer = time.NewTimer(time.Hour)
	e.positionWaitTimer.Stop()
	return e
}

func (e *Engine) now() time.Time { return e.clock() }

// SetLogger installs the logging hook. Call before Connect.
func (e *Engine) SetLogger(l Logger) { e.log = l }

func (e *Engine) logf(format string, args ...interface{}) {
	if e.log != nil {
		e.log(format, args...)
	}
}

// SetHeaterProfile records the printer's heater layout: the extruder
// count (used for shared-nozzle temperature replication) and whether the
// optional bed/chamber heaters exist, so M140/M190 and M141/M191 can be
// dropped in the queuing phase when the profile lacks the corresponding
// heater (spec.md 4.F). Defaults are one extruder with a heated bed.
func (e *Engine) SetHeaterProfile(extruderCount int, hasHeatedBed, hasHeatedChamber bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if extruderCount > 0 {
		e.extruderCount = extruderCount
	}
	e.hasHeatedBed = hasHeatedBed
	e.hasHeatedChamber = hasHeatedChamber
}

func (e *Engine) heaterProfile() (extruderCount int, hasHeatedBed, hasHeatedChamber bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extruderCount, e.hasHeatedBed, e.hasHeatedChamber
}

// SetTemperatureOffset records a per-heater temperature offset applied at
// the sending phase to heat commands streamed from a file. heater is
// "tool<n>", "bed" or "chamber".
func (e *Engine) SetTemperatureOffset(heater string, offset float64) {
	e.offsetsMu.Lock()
	defer e.offsetsMu.Unlock()
	if offset == 0 {
		delete(e.tempOffsets, heater)
		return
	}
	e.tempOffsets[heater] = offset
}

func (e *Engine) temperatureOffset(heater string) float64 {
	e.offsetsMu.Lock()
	defer e.offsetsMu.Unlock()
	return e.tempOffsets[heater]
}

// SetFlavor swaps the active Flavor. Safe to call only while disconnected
// or between jobs; it is not synchronised with in-flight sends.
func (e *Engine) SetFlavor(f *Flavor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flavorValue = f
}

func (e *Engine) flavor() *Flavor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flavorValue
}

// State returns the current protocol state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	old := e.state
	e.state = s
	e.mu.Unlock()
	if old != s {
		e.emit(EventStateChanged, map[string]interface{}{"from": old.String(), "to": s.String()})
	}
}

// Connect starts the transport's line handler, resets all protocol state,
// queues the hello (M110 N0; the M115 firmware-info query follows once
// handleOk sees the firmware's first ok), and
// starts the receive dispatch; the send loop runs for the lifetime of the
// connection on its own goroutine.
func (e *Engine) Connect() error {
	if e.State().Operational() {
		return ErrAlreadyConnected
	}
	e.setState(StateConnecting)

	e.flags = NewFlags()
	e.lineHistory.Clear()
	e.sendToken = NewSendToken(0)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.transport.SetLineHandler(e.onLine)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sendLoop(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runTimers(ctx)
	}()

	e.sendToken.Set(false)
	hello := ToCommand(e.flavor().Commands.Hello())
	e.enqueueSend(hello, "", nil)

	e.emit(EventConnected, nil)
	return nil
}

// Disconnect tears down the send/receive goroutines and closes the
// transport.
func (e *Engine) Disconnect() error {
	if !e.State().Operational() {
		return ErrNotConnected
	}
	if e.cancel != nil {
		e.cancel()
	}
	// The send loop may be parked in sendToken.Wait, which knows nothing of
	// the context; a throwaway token lets it reach the cancellation check.
	e.sendToken.Set(false)
	e.wg.Wait()
	err := e.transport.Close()
	e.setState(StateDisconnected)
	e.emit(EventDisconnected, nil)
	return err
}

// onLine is the transport's push callback, run on the transport's own
// read goroutine (T1, spec.md 4.I). An empty line is EOF.
func (e *Engine) onLine(line string) {
	if line == "" {
		e.fatalError("transport EOF")
		return
	}
	e.dispatcher.Feed(line)
}

// SendCommands enqueues one or more lines. callback, if non-nil, is
// invoked once the corresponding write completes (or fails). While an
// exclusive job is PROCESSING the lines park on the command queue and are
// only delivered once the job pauses or ends; tag a command TagForce to
// jump that hold.
func (e *Engine) SendCommands(lines []string, callback func(error)) {
	for _, line := range lines {
		e.enqueueSend(ToCommand(line), "", callback)
	}
}

// enqueueInternal is the engine's own send entry point for protocol
// housekeeping commands (pollers, tickles, busy/autoreport intervals),
// which bypass the exclusive-job command-queue hold.
func (e *Engine) enqueueInternal(line string, dedupType string) {
	e.enqueueSend(ToCommand(line).WithTags(TagForce), dedupType, nil)
}

func (e *Engine) enqueueSend(cmd Command, dedupType string, callback func(error)) {
	result := e.pipeline.Run(cmd, PhaseQueuing)
	if result.Drop {
		return
	}
	for _, out := range result.Commands {
		// Emergency-class commands skip the queues entirely once the firmware
		// has advertised its emergency parser (M112 never reaches this point;
		// its queuing handler owns the full stop sequence).
		if out.Kind == KindGcode && e.flavor().Config.EmergencyCommands[out.Gcode.Code()] &&
			e.flags.Capability("EMERGENCY_PARSER") {
			e.sendEmergency(out)
			continue
		}
		q := e.pipeline.Run(out, PhaseQueued)
		if q.Drop {
			continue
		}
		for _, qc := range q.Commands {
			item := NewCommandItem(qc, dedupType, callback)
			if e.holdOnCommandQueue(qc) {
				_ = e.commandQueue.Put(item)
			} else {
				_ = e.sendQueue.Put(item)
			}
		}
	}
}

// holdOnCommandQueue implements spec.md invariant 5: while an exclusive
// job is PROCESSING, only job lines, forced commands and emergency
// commands go straight to the send queue; everything else parks on the
// command queue until the job pauses or finishes.
func (e *Engine) holdOnCommandQueue(cmd Command) bool {
	if e.State() != StateProcessing {
		return false
	}
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()
	if job == nil || job.Parallel() {
		return false
	}
	if cmd.HasTag(TagSourceJob) || cmd.HasTag(TagForce) {
		return false
	}
	if cmd.Kind == KindGcode && e.flavor().Config.EmergencyCommands[cmd.Gcode.Code()] {
		return false
	}
	return true
}

// refreshTimeout bumps the communication-timeout deadline, called on
// every received line (spec.md 4.E's on_comm_any).
func (e *Engine) refreshTimeout() {
	e.flags.SetTimeoutConsecutive(0)
	e.flags.SetTimeoutEscalated(false)
}

func (e *Engine) timeoutConsecutiveSnapshot() int {
	return e.flags.TimeoutConsecutive()
}

// simulateOk injects a synthetic ok as though the firmware had sent one,
// used by the resend-ok watchdog and the on_comm_any missing-ok detector.
func (e *Engine) simulateOk() {
	e.handleOk()
}

// handleOk implements _on_comm_ok / _on_comm_wait (spec.md 4.E): reset
// long-running/heatup bookkeeping, restore any saved tool, set the send
// token, and either service the next resend line or let the send loop
// continue.
func (e *Engine) handleOk() {
	if e.flags.ConsumeIgnoreOk() {
		return
	}

	e.flags.SetLongRunning(false)
	e.flags.RestoreFormerTool()
	if e.flags.Heating() {
		e.flags.SetHeating(false)
	}
	e.refreshTimeout()

	if e.State() == StateConnecting {
		e.setState(StateConnected)
		e.enqueueInternal(e.flavor().Commands.GetFirmwareInfo(), "")
	}

	active, _, _ := e.flags.ResendState()
	if active {
		e.sendQueue.SetResendActive(true)
	}

	e.sendToken.Set(false)
}

// handleResend implements _on_comm_resend (spec.md 4.E).
func (e *Engine) handleResend(lineNumber int) {
	current := e.flags.CurrentLineNumber()
	active, requested, count := e.flags.ResendState()

	// No resend pending and the printer asks for the line we haven't sent
	// yet: it got N-1 twice (a timeout-driven re-send of the previous line
	// after it had already acknowledged it) and is merely confused. Ignore.
	if !active && lineNumber == current {
		return
	}

	// A line-number error followed by requests for lines from before the
	// window we're already servicing means the firmware is echoing stale
	// resend requests; count and ignore them until the arithmetic says
	// they must be fresh.
	lastCommunicationError := e.flags.ConsumeLastCommunicationError()
	if lastCommunicationError == "linenumber" && active && lineNumber == requested &&
		count < current-lineNumber-1 {
		e.flags.IncrementResendCount()
		e.logf("ignoring resend request for line %d, originates from lines sent before the active window", lineNumber)
		return
	}

	if !e.lineHistory.Contains(lineNumber) {
		if e.State().Busy() {
			e.mu.Lock()
			e.job = nil
			e.mu.Unlock()
			e.handleError("resend requested for a line outside history")
		}
		return
	}

	e.logf("resend requested: line %d, current line %d", lineNumber, current)
	e.flags.BeginResend(lineNumber)
	e.sendQueue.SetResendActive(true)
	e.enqueueResendLine(lineNumber)

	switch e.flavor().Config.TriggerOkAfterResend {
	case "always":
		e.simulateOk()
	case "detect":
		e.armResendOkWatchdog()
	}
}

// enqueueResendLine puts lineNumber's recorded text back onto the send
// queue as a resend-targeted item, so writeOne's resend-priority lookup
// (Queue.nextIndexLocked) has something to find. Without this, BeginResend
// only flips bookkeeping and the actual replayed line is never written.
func (e *Engine) enqueueResendLine(lineNumber int) {
	text, ok := e.lineHistory.Get(lineNumber)
	if !ok {
		e.handleError("resend requested for a line outside history")
		e.flags.ClearResend()
		e.sendQueue.SetResendActive(false)
		return
	}
	_ = e.sendQueue.Put(NewResendItem(lineNumber, text, nil))
}

func (e *Engine) armResendOkWatchdog() {
	e.resendOkTimer.Stop()
	e.resendOkTimer = time.AfterFunc(DefaultResendOkTimeout, e.simulateOk)
}

// handleStart implements _on_comm_start: the firmware's boot banner.
// During the handshake it completes the connection; any later it means
// the firmware reset underneath us and lost all protocol state, so the
// engine resets its own (spec.md 4.E "start", 8 scenario 6).
func (e *Engine) handleStart() {
	state := e.State()
	if state == StateConnecting {
		e.setState(StateConnected)
		e.enqueueInternal(e.flavor().Commands.GetFirmwareInfo(), "")
		return
	}
	if !state.Operational() {
		return
	}
	e.logf("printer sent 'start' while connected, assuming an external reset and resyncing")
	idle := state == StateConnected
	if !idle {
		// The printer lost the job along with everything else; there is no
		// point capturing a pause/cancel position from a freshly booted
		// firmware, so the job is dropped without the usual capture round.
		e.mu.Lock()
		e.job = nil
		e.mu.Unlock()
		e.emit(EventJobCancelled, map[string]interface{}{"reason": "firmware reset"})
	}
	e.externalReset()
	e.emit(EventReset, map[string]interface{}{"idle": idle})
}

// externalReset re-synchronises the engine with a firmware that just
// rebooted: both queues are drained, the clear-to-send gate and line
// numbering are zeroed, the flavor reverts to Generic for
// re-identification, the hello/line-number handshake is replayed, and any
// autoreport/busy intervals the firmware had been given are re-armed
// (their capability flags survive the reset on our side).
func (e *Engine) externalReset() {
	e.sendQueue.BlockedDo(func(q *Queue) { q.Drain() })
	e.commandQueue.BlockedDo(func(q *Queue) { q.Drain() })
	e.sendQueue.SetResendActive(false)
	e.sendToken.Clear(true)
	e.flags.ResetLineNumber(0)
	e.flags.ClearResend()
	e.lineHistory.Clear()
	e.SetFlavor(Generic)
	e.flags.SetFirmwareIdentified(false)
	e.setState(StateConnected)

	commands := e.flavor().Commands
	e.enqueueInternal(commands.Hello(), "")
	e.enqueueInternal(commands.SetLine(0), "")
	if e.flags.TempAutoreporting() {
		e.enqueueInternal(commands.AutoreportTemperature(int(DefaultTemperatureAutoreportInterval/time.Second)), "")
	}
	if e.flags.SDStatusAutoreport() {
		e.enqueueInternal(commands.AutoreportSDStatus(int(DefaultSDStatusAutoreportInterval/time.Second)), "")
	}
	if e.flags.BusyDetected() {
		interval := int(DefaultBusyCommunicationTimeout/time.Second) - 1
		if interval < 1 {
			interval = 1
		}
		e.enqueueInternal(commands.BusyProtocolInterval(interval), "")
	}
	e.sendToken.Set(false)
}

// handleTimeout implements _on_comm_timeout's consecutive-timeout
// escalation (spec.md 4.E/8): the ceiling is chosen per-state (long/
// printing/idle); a ceiling of 0 disables that category entirely. Below
// the ceiling, nothing happens but the counter climbing. On reaching it,
// the engine takes one corrective nudge (retry the active resend, declare
// a stalled heatup finished, tickle an in-progress job with M105, or
// release a blocked token) and resets the counter to give the nudge a
// chance to work. If the ceiling is reached again before any traffic
// arrives to reset it (refreshTimeout clears the escalated flag), the
// nudge evidently didn't help and the connection is fatally torn down.
func (e *Engine) handleTimeout() {
	n := e.flags.IncrementTimeoutConsecutive()
	ceiling, _ := timeoutCeiling(e.flavor().Config.MaxConsecutiveTimeouts, e.State(), e.flags.LongRunning())
	if ceiling == 0 {
		return
	}
	if n < ceiling {
		return
	}
	e.flags.SetTimeoutConsecutive(0)

	if e.flags.LongRunning() {
		return
	}
	if e.flags.TimeoutEscalated() {
		e.fatalError("too many consecutive communication timeouts")
		return
	}
	e.flags.SetTimeoutEscalated(true)
	e.logf("communication timeout, trying to trigger a response from the printer")

	if active, lineNumber, _ := e.flags.ResendState(); active {
		e.enqueueResendLine(lineNumber)
		e.sendToken.Set(false)
		return
	}
	if e.flags.Heating() {
		e.flags.SetHeating(false)
		return
	}
	if e.State().Processing() {
		e.enqueueInternal(e.flavor().Commands.GetTemperature(), "tickle")
		e.sendToken.Set(false)
		return
	}
	if e.sendToken.Blocked() {
		e.sendToken.Set(false)
	}
}

func (e *Engine) applyTemperature(args Args) {
	tools, _ := args["tools"].(map[int]TempReading)
	bed, _ := args["bed"].(*TempReading)
	chamber, _ := args["chamber"].(*TempReading)
	maxTool, _ := args["max_tool"].(int)

	cfg := e.flavor().Config
	if cfg.DetectExternalHeatups && !e.flags.Heating() && e.targetRaised(tools, bed, chamber) {
		// A target climbed without us having issued a heat command: someone
		// used the printer's own controls. Treat it as a regular heatup so
		// the timeout ceilings soften accordingly.
		e.flags.SetHeating(true)
		e.flags.SetHeatingStart(e.now())
	}

	extruderCount, hasHeatedBed, hasHeatedChamber := e.heaterProfile()
	if extruderCount-1 > maxTool {
		maxTool = extruderCount - 1
	}

	currentTool := e.flags.CurrentTool()
	if current, ok := tools[currentTool]; ok {
		for tool := 0; tool <= maxTool; tool++ {
			reading, ok := tools[tool]
			if !ok {
				if !cfg.SharedNozzle {
					continue
				}
				// One physical sensor feeds every nominal extruder.
				reading = current
			}
			e.lastTemperature.SetTool(tool, reading.Actual, reading.Target)
		}
	} else {
		for tool, reading := range tools {
			e.lastTemperature.SetTool(tool, reading.Actual, reading.Target)
		}
	}
	if bed != nil && hasHeatedBed {
		e.lastTemperature.SetBed(bed.Actual, bed.Target)
	}
	if chamber != nil && (hasHeatedChamber || e.flags.Capability("CHAMBER_TEMP")) {
		e.lastTemperature.SetChamber(chamber.Actual, chamber.Target)
	}
	e.emit(EventTemperature, nil)
}

// targetRaised reports whether any reported target exceeds the last-known
// target for the same heater, the external-heatup heuristic.
func (e *Engine) targetRaised(tools map[int]TempReading, bed, chamber *TempReading) bool {
	raised := func(known *float64, reading *TempReading) bool {
		if reading == nil || reading.Target == nil || *reading.Target <= 0 {
			return false
		}
		return known == nil || *reading.Target > *known
	}
	for tool, reading := range tools {
		r := reading
		_, known := e.lastTemperature.Tool(tool)
		if raised(known, &r) {
			return true
		}
	}
	if _, known := e.lastTemperature.Bed(); raised(known, bed) {
		return true
	}
	if _, known := e.lastTemperature.Chamber(); raised(known, chamber) {
		return true
	}
	return false
}

func (e *Engine) applyPosition(args Args) {
	pos := &PositionRecord{Valid: true}
	if v, ok := args["X"].(float64); ok {
		pos.X = &v
	}
	if v, ok := args["Y"].(float64); ok {
		pos.Y = &v
	}
	if v, ok := args["Z"].(float64); ok {
		pos.Z = &v
	}
	if v, ok := args["E"].(float64); ok {
		pos.E = &v
	}
	if v, ok := args["F"].(float64); ok {
		pos.F = &v
	}
	extra := make(map[string]float64)
	for k, v := range args {
		if k == "X" || k == "Y" || k == "Z" || k == "E" || k == "F" {
			continue
		}
		if f, ok := v.(float64); ok {
			extra[k] = f
		}
	}
	if len(extra) > 0 {
		pos.Extra = extra
	}
	e.mu.Lock()
	e.lastPosition = pos
	e.mu.Unlock()
	e.recordPauseOrCancelPosition()
	e.emit(EventPosition, nil)
}

func (e *Engine) applyFirmwareInfo(info map[string]string) {
	e.flags.SetFirmwareIdentified(true)
	if name := info["FIRMWARE_NAME"]; name != "" {
		if f := IdentifyFlavor(name, info); f != nil {
			e.SetFlavor(f)
		}
	}
	e.emit(EventFirmwareInfo, map[string]interface{}{"info": info})
}

func (e *Engine) handleError(reason string) {
	e.logf("protocol error: %s", reason)
	e.setState(StateError)
	e.emit(EventError, map[string]interface{}{"reason": reason})
}

// fatalError is handleError's escalation to a full disconnect (spec.md
// 4.E/7): SD-card errors, policy="disconnect" error lines and the
// consecutive-timeout ceiling all funnel through here. If the flavor says
// send_m112, an emergency stop is issued first so the firmware stops
// moving even though the host is about to give up on it. The actual
// teardown runs on its own goroutine since fatalError is typically called
// from the receive goroutine (T1), and Disconnect blocks waiting for the
// send loop and timers (T2 and friends) to exit.
func (e *Engine) fatalError(reason string) {
	if e.flavor().Config.SendM112 {
		_ = e.transport.Write([]byte(e.flavor().Commands.EmergencyStop() + "\n"))
	}
	e.handleError(reason)
	go func() {
		_ = e.Disconnect()
	}()
}

// forcePaused / forceResumed apply a firmware-reported pause/resume action
// command (spec.md 4.E's //action:paused //action:resumed) as a direct
// state transition rather than routing through Pause/Resume, since the
// firmware has already made the change on its own; replaying the local
// pause/resume scripts here would be redundant ("local_handling=false").
func (e *Engine) forcePaused() error {
	if e.State() != StateProcessing && e.State() != StatePausing {
		return nil
	}
	e.setState(StatePaused)
	e.emit(EventJobPaused, nil)
	return nil
}

func (e *Engine) forceResumed() error {
	if e.State() != StatePaused && e.State() != StateResuming {
		return nil
	}
	e.setState(StateProcessing)
	e.emit(EventJobResumed, nil)
	return nil
}

// LastTemperature returns the live temperature record (safe for
// concurrent reads via its own locking).
func (e *Engine) LastTemperature() *TemperatureRecord { return e.lastTemperature }

// LastPosition returns the most recently reported position snapshot.
func (e *Engine) LastPosition() *PositionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &PositionRecord{}
	p.CopyFrom(e.lastPosition)
	return p
}

// SDStatus returns the live SD card status record.
func (e *Engine) SDStatus() *SDStatusRecord { return e.sdStatus }

// PausePosition returns the position captured during the most recent
// pause, or nil if none was recorded (no pause yet, or the position query
// timed out).
func (e *Engine) PausePosition() *PositionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pausePosition == nil {
		return nil
	}
	p := &PositionRecord{}
	p.CopyFrom(e.pausePosition)
	return p
}

// CancelPosition is PausePosition's counterpart for the most recent
// cancel.
func (e *Engine) CancelPosition() *PositionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelPosition == nil {
		return nil
	}
	p := &PositionRecord{}
	p.CopyFrom(e.cancelPosition)
	return p
}
