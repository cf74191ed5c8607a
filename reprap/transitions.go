package reprap

import "time"

// This file implements the job-lifecycle side of the protocol state
// machine (spec.md 4.I): STARTING->PROCESSING, PROCESSING<->PAUSING/
// PAUSED<->RESUMING, {PROCESSING,PAUSED}->CANCELLING->CONNECTED,
// PROCESSING->FINISHING->CONNECTED (the FINISHING half lives in
// sendloop.go's finishJob, reached when the Job runs dry rather than by
// user request). Every transition that must wait for "everything
// currently queued" uses a Send Queue Marker enqueued at the tail so
// ordering is guaranteed without extra locking, per spec.md 4.I.

// StartJob begins streaming job's lines once the engine is CONNECTED.
func (e *Engine) StartJob(job Job) error {
	if e.State() != StateConnected {
		return ErrNoJobActive
	}
	e.mu.Lock()
	if e.job != nil {
		e.mu.Unlock()
		return ErrJobAlreadyActive
	}
	e.job = job
	e.pausePositionRecorded = false
	e.cancelPositionRecorded = false
	e.pausePosition = nil
	e.cancelPosition = nil
	e.mu.Unlock()

	e.setState(StateStarting)
	// Line numbering restarts with the job so a mid-print resend window
	// can never reach back into a previous session's lines.
	e.enqueueInternal(e.flavor().Commands.SetLine(0), "")
	e.sendQueue.Put(NewMarkerItem(NewSendQueueMarker("job-started", func() {
		e.setState(StateProcessing)
		e.emit(EventJobStarted, nil)
	})))
	return nil
}

// Pause requests a pause: once every line already queued has been sent,
// the state flips to PAUSED and the job stops being pumped.
func (e *Engine) Pause() error {
	if e.State() != StateProcessing {
		return ErrNoJobActive
	}
	e.setState(StatePausing)
	if e.flavor().Config.LogPositionOnPause {
		e.enqueueInternal(e.flavor().Commands.FinishMoving(), "")
		e.enqueueInternal(e.flavor().Commands.GetPosition(), "")
		e.armPositionWait()
	}
	e.sendQueue.Put(NewMarkerItem(NewSendQueueMarker("job-paused", func() {
		// Guarded: a Resume may have already moved the state on past
		// PAUSING (e.g. via a firmware //action:resumed) by the time this
		// marker is reached, and swallowing that would re-pause a job the
		// user already resumed.
		if e.State() != StatePausing {
			return
		}
		e.setState(StatePaused)
		e.emit(EventJobPaused, nil)
	})))
	return nil
}

// Resume requests a resume from PAUSED back to PROCESSING.
func (e *Engine) Resume() error {
	if e.State() != StatePaused {
		return ErrNoJobActive
	}
	e.setState(StateResuming)
	e.sendQueue.Put(NewMarkerItem(NewSendQueueMarker("job-resumed", func() {
		e.setState(StateProcessing)
		e.emit(EventJobResumed, nil)
	})))
	return nil
}

// Cancel requests a cancel from either PROCESSING or PAUSED; the job is
// dropped immediately (no more lines are pumped) but already-queued sends
// still drain before the state settles back to CONNECTED.
func (e *Engine) Cancel() error {
	state := e.State()
	if state != StateProcessing && state != StatePaused {
		return ErrNoJobActive
	}
	e.mu.Lock()
	e.job = nil
	e.mu.Unlock()

	e.setState(StateCancelling)
	// Drop everything still queued from the job itself first; the
	// abort-heatup and finish-moving/get-position capture pair enqueued
	// below must survive, so they come after the drain.
	e.sendQueue.BlockedDo(func(q *Queue) {
		q.Drain()
	})
	if e.flavor().Config.HeatupAbortable && e.flags.Heating() {
		e.enqueueInternal(e.flavor().Commands.AbortHeatup(), "")
	}
	if e.flavor().Config.LogPositionOnCancel {
		e.enqueueInternal(e.flavor().Commands.FinishMoving(), "")
		e.enqueueInternal(e.flavor().Commands.GetPosition(), "")
		e.armPositionWait()
	}
	e.sendQueue.Put(NewMarkerItem(NewSendQueueMarker("job-cancelled", func() {
		e.setState(StateConnected)
		e.emit(EventJobCancelled, nil)
	})))
	return nil
}

// armPositionWait starts the watchdog that caps how long a pause/cancel
// waits for the firmware's position reply; if it fires first, the
// transition proceeds without a captured position.
func (e *Engine) armPositionWait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionWaitTimer.Stop()
	e.positionWaitTimer = time.AfterFunc(DefaultPositionWaitTimeout, e.positionWaitExpired)
}

func (e *Engine) positionWaitExpired() {
	state := e.State()
	e.mu.Lock()
	switch state {
	case StatePausing:
		e.pausePositionRecorded = true
	case StateCancelling:
		e.cancelPositionRecorded = true
	}
	e.mu.Unlock()
	e.emit(EventPosition, map[string]interface{}{"timed_out": true})
}

// recordPauseOrCancelPosition is invoked from applyPosition when a
// position reply arrives while a pause or cancel is in flight, snapshotting
// position and temperature for the job coordinator to resume from later.
func (e *Engine) recordPauseOrCancelPosition() {
	state := e.State()
	e.mu.Lock()
	defer e.mu.Unlock()
	switch state {
	case StatePausing:
		if !e.pausePositionRecorded {
			e.pausePositionRecorded = true
			e.pausePosition = &PositionRecord{}
			e.pausePosition.CopyFrom(e.lastPosition)
			e.pauseTemperature.CopyFrom(e.lastTemperature)
			e.positionWaitTimer.Stop()
		}
	case StateCancelling:
		if !e.cancelPositionRecorded {
			e.cancelPositionRecorded = true
			e.cancelPosition = &PositionRecord{}
			e.cancelPosition.CopyFrom(e.lastPosition)
			e.cancelTemperature.CopyFrom(e.lastTemperature)
			e.positionWaitTimer.Stop()
		}
	}
}
