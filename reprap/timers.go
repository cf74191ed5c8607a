package reprap

import (
	"context"
	"time"
)

// Default intervals, named the way spec.md 4.K names them.
const (
	DefaultTemperatureIdleInterval       = 5 * time.Second
	DefaultTemperaturePrintingInterval   = 5 * time.Second
	DefaultTemperatureTargetSetInterval  = 2 * time.Second
	DefaultTemperatureAutoreportInterval = 2 * time.Second
	DefaultSDStatusPollInterval          = 2 * time.Second
	DefaultSDStatusAutoreportInterval    = time.Second
	DefaultResendOkTimeout               = 500 * time.Millisecond
	DefaultPositionWaitTimeout           = 10 * time.Second
	DefaultBusyCommunicationTimeout      = 10 * time.Second
	DefaultCommunicationTimeout          = 2 * time.Second
)

// runTimers drives the temperature and SD status pollers and the
// communication-timeout watchdog (Component K, spec.md 4.K): each fires on
// its own short-lived tick, mirroring downlink.go's separation between the
// traffic goroutine and callers that merely push requests onto reqCh. The
// comm-timeout tick runs at the one-second granularity _on_comm_timeout's
// ceiling tables are expressed in (timeoutCeiling's window return): unlike
// OctoPrint's blocking-read-with-timeout model, this engine's Transport
// pushes lines asynchronously, so "no read within the window" is emulated
// as "no refreshTimeout() call reset the counter before this tick fired".
func (e *Engine) runTimers(ctx context.Context) {
	tempTimer := time.NewTimer(e.temperatureInterval())
	sdTicker := time.NewTicker(DefaultSDStatusPollInterval)
	commTicker := time.NewTicker(time.Second)
	defer tempTimer.Stop()
	defer sdTicker.Stop()
	defer commTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tempTimer.C:
			e.pollTemperature()
			tempTimer.Reset(e.temperatureInterval())
		case <-sdTicker.C:
			e.pollSDStatus()
		case <-commTicker.C:
			e.handleTimeout()
		}
	}
}

// temperatureInterval is the temperature poller's interval function
// (spec.md 4.J): faster whenever any heater is commanded hot, the
// printing cadence while a job runs, the lazy idle cadence otherwise.
func (e *Engine) temperatureInterval() time.Duration {
	if e.State().Processing() {
		return DefaultTemperaturePrintingInterval
	}
	if e.lastTemperature.AnyTargetAbove(25) {
		return DefaultTemperatureTargetSetInterval
	}
	return DefaultTemperatureIdleInterval
}

// canSend is spec.md 4.J's can_send(): operational, not mid-heatup, not
// dwelling, and not running a long-running command — the gate both
// pollers consult before adding more traffic to a firmware that's already
// busy with something that won't ack for a while.
func (e *Engine) canSend() bool {
	if !e.State().Operational() || e.flags.Heating() || e.flags.LongRunning() {
		return false
	}
	if _, dwelling := e.flags.DwellingUntil(); dwelling {
		return false
	}
	return true
}

// pollTemperature enqueues a temperature query, but only if the firmware
// hasn't promised to autoreport and no poll is already outstanding
// (Queue's type dedup handles the latter).
func (e *Engine) pollTemperature() {
	if !e.canSend() || e.flags.TempAutoreporting() {
		return
	}
	e.enqueueInternal(e.flavor().Commands.GetTemperature(), "temperature-poll")
}

// pollSDStatus enqueues an SD status query while the engine is processing
// a job (of any source) and the firmware doesn't autoreport it.
func (e *Engine) pollSDStatus() {
	if !e.canSend() || !e.State().Processing() || e.flags.SDStatusAutoreport() {
		return
	}
	e.enqueueInternal(e.flavor().Commands.SDStatus(), "sd-status-poll")
}
