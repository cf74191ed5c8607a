package reprap

import (
	"context"
	"fmt"
	"time"

	"github.com/solderline/reprapd/gcode"
)

// sendLoop is Component H (spec.md 4.H): T2, the single goroutine that
// owns writing to the transport. It waits for the send token, pulls the
// next queue item honouring resend priority, applies the checksum/
// line-number policy, writes, and only then clears the token (unless the
// item is an un-acked fire-and-forget line). Grounded on downlink.go's
// handleTraffic send-side half and dfa-downlink.go's WaitingForWritten
// state, collapsed into one blocking loop instead of a state enum because
// Go's goroutine-per-role model makes the states implicit call stack
// frames rather than data.
func (e *Engine) sendLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.sendToken.Wait()

		if until, dwelling := e.flags.DwellingUntil(); dwelling && e.flavor().Config.BlockWhileDwelling {
			if d := time.Until(until); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return
				}
			}
			e.flags.SetDwellingUntil(time.Time{})
		}

		e.pumpJob()
		e.drainCommandQueue()

		item, err := e.sendQueue.Get(ctx)
		if err != nil {
			return
		}

		if item.Marker != nil {
			e.serviceMarker(item.Marker)
			continue
		}

		if item.Target == "resend" {
			// Resend replays skip the sending phase entirely: the line goes
			// out byte-for-byte as first recorded (spec.md 4.G step 4).
			e.writeOne(item, *item.Command)
			continue
		}

		e.serviceCommand(item)
	}
}

// drainCommandQueue promotes held-back manual commands to the send queue
// whenever no exclusive job is actively PROCESSING (they accumulate there
// via holdOnCommandQueue during one).
func (e *Engine) drainCommandQueue() {
	if e.State() == StateProcessing {
		return
	}
	for {
		item, ok := e.commandQueue.TryGet()
		if !ok {
			return
		}
		_ = e.sendQueue.Put(item)
	}
}

func (e *Engine) serviceMarker(m *Marker) {
	if m.Kind == MarkerSendQueue && m.Callback != nil {
		m.Callback()
	}
	e.emit(EventSendQueueMarker, map[string]interface{}{"name": m.Name})
}

// serviceCommand runs the sending phase for one command and writes what it
// yields via writeOne, which clears the token after each line the firmware
// is expected to ack and leaves it alone for fire-and-forget lines.
func (e *Engine) serviceCommand(item *QueueItem) {
	cmd := *item.Command

	result := e.pipeline.Run(cmd, PhaseSending)
	if result.Drop {
		e.finishItem(item, nil)
		return
	}
	for _, out := range result.Commands {
		e.writeOne(item, out)
	}
}

func (e *Engine) writeOne(item *QueueItem, cmd Command) {
	if cmd.IsEmpty() {
		e.finishItem(item, nil)
		return
	}

	// At-commands never reach the wire (spec.md 4.G step 6): their queuing-
	// phase handler already drove the pause/cancel/resume transition, so
	// here there is nothing left to do but let the loop move on without
	// consuming a token slot.
	if cmd.Kind == KindAtCommand {
		e.finishItem(item, nil)
		return
	}

	flavor := e.flavor()
	isResend := item.Target == "resend"

	var wire string
	if isResend {
		// The replayed line keeps its original number; history already
		// has it, so no bookkeeping beyond the resend cursor.
		wire = gcode.AddLineAndHash(item.LineNumber, cmd.Line())
	} else if e.wantsChecksum(flavor, cmd) {
		lineNumber := e.flags.NextLineNumber()
		e.lineHistory.Append(lineNumber, cmd.Line())
		wire = gcode.AddLineAndHash(lineNumber, cmd.Line())
	} else {
		wire = cmd.Line()
	}

	if err := e.transport.Write([]byte(wire + "\n")); err != nil {
		e.handleError(fmt.Sprintf("write failed: %v", err))
		e.finishItem(item, err)
		return
	}

	if isResend {
		if next, stillActive := e.flags.AdvanceResend(); stillActive {
			e.enqueueResendLine(next)
		} else {
			e.sendQueue.SetResendActive(false)
		}
	} else {
		e.pipeline.Run(cmd, PhaseSent)
		if cmd.Kind == KindGcode && flavor.Config.LongRunningCommands[cmd.Gcode.Code()] {
			e.flags.SetLongRunning(true)
		}
	}

	// Consume a token slot iff the firmware is expected to ack this line
	// (spec.md 4.G step 9): G-code commands always do; other commands only
	// if the flavor says so. Otherwise leave the token alone so the next
	// loop iteration's Wait() falls straight through instead of deadlocking
	// on an ok that will never come.
	requiresAck := cmd.Kind == KindGcode || isResend || flavor.Config.UnknownRequiresAck
	if requiresAck {
		e.sendToken.Clear(false)
	}

	e.finishItem(item, nil)
}

// wantsChecksum implements the checksum policy of spec.md 4.H: nothing is
// checksummed over a transport with its own integrity; otherwise a
// command in checksum_requiring_commands always is, and any G-code (or
// anything at all, with unknown_with_checksum) is whenever checksums are
// currently enabled.
func (e *Engine) wantsChecksum(f *Flavor, cmd Command) bool {
	if e.transport.MessageIntegrity() {
		return false
	}
	if cmd.Kind == KindGcode && f.Config.ChecksumRequiringCommands[cmd.Gcode.Code()] {
		return true
	}
	if cmd.Kind != KindGcode && !f.Config.UnknownWithChecksum {
		return false
	}
	switch f.Config.SendChecksum {
	case "always":
		return true
	case "never":
		return false
	default: // "printing"
		return e.State().Processing() || !e.flags.FirmwareIdentified()
	}
}

func (e *Engine) finishItem(item *QueueItem, err error) {
	if item.Callback != nil {
		item.Callback(err)
	}
}

// sendEmergency bypasses the send queue entirely for emergency-class
// commands, per spec.md 4.H: an emergency command is always numbered and
// checksummed (wantsChecksum is not consulted) and consumes a line number
// so a later resend can be satisfied, but it skips token/queue gating
// altogether.
func (e *Engine) sendEmergency(cmd Command) {
	lineNumber := e.flags.NextLineNumber()
	wire := gcode.AddLineAndHash(lineNumber, cmd.Line())
	e.lineHistory.Append(lineNumber, cmd.Line())
	_ = e.transport.Write([]byte(wire + "\n"))
	e.flags.IgnoreOk()
	e.sendToken.Set(true)
}

// emergencyStop implements the M112-queuing intercept of spec.md 4.F:
// the stop command itself goes out twice (once bare, once numbered and
// checksummed so a resend can still be satisfied for it), every heater
// the printer profile configures is force-zeroed, the E_STOP event
// fires, and the connection
// is torn down as a fatal error. The disconnect runs on its own
// goroutine because this method can itself be invoked from the send
// loop's goroutine (an M112 arriving from the active job), and
// Disconnect blocks on that same goroutine's exit.
func (e *Engine) emergencyStop(cmd Command) {
	_ = e.transport.Write([]byte(cmd.Line() + "\n"))
	e.sendEmergency(cmd)

	// No idea whether the M112 won; force every configured heater off just
	// in case. The printer profile decides what exists, not whatever
	// temperature reports happened to arrive so far.
	extruderCount, hasHeatedBed, _ := e.heaterProfile()
	if extruderCount > 1 && !e.flavor().Config.SharedNozzle {
		for tool := 0; tool < extruderCount; tool++ {
			e.sendEmergency(ToCommand(fmt.Sprintf("M104 T%d S0", tool)))
		}
	} else {
		e.sendEmergency(ToCommand("M104 S0"))
	}
	if hasHeatedBed {
		e.sendEmergency(ToCommand("M140 S0"))
	}

	e.emit(EventEStop, nil)

	go func() {
		e.handleError("emergency stop (M112)")
		_ = e.Disconnect()
	}()
}

// armDwell is called from the pipeline's G4 sending handler.
func (e *Engine) armDwell(seconds float64) {
	e.flags.SetDwellingUntil(e.now().Add(time.Duration(seconds * float64(time.Second))))
}

// pumpJob feeds one job line onto the send queue when idle: the send
// queue is empty, the protocol is PROCESSING, and a job is active. This is
// the "Job Coordinator pulls lines on demand from the Send Loop" behaviour
// from spec.md 4.J, expressed here instead of as a separate goroutine
// since T2 already blocks waiting for queue space anyway.
func (e *Engine) pumpJob() {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()
	if job == nil || !job.Active() || e.State() != StateProcessing {
		return
	}
	if e.sendQueue.Len() > 0 {
		return
	}
	line, ok := job.GetNext()
	if !ok {
		e.finishJob()
		return
	}
	cmd := ToCommand(line).WithTags(TagSourceJob, TagSourceFile)
	e.enqueueSend(cmd, "", nil)
}

func (e *Engine) finishJob() {
	e.mu.Lock()
	e.job = nil
	e.mu.Unlock()
	e.setState(StateFinishing)
	e.sendQueue.Put(NewMarkerItem(NewSendQueueMarker("job-finished", func() {
		e.setState(StateConnected)
		e.emit(EventJobDone, nil)
	})))
}
