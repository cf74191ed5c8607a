package reprap

import (
	"strings"
	"time"
)

// Hook is a receiving-side line filter: it may rewrite or drop (return "")
// a line before matching. Hooks run in registration order.
type Hook func(line string) string

// Dispatcher decodes raw transport lines, runs the receiving hook chain,
// then walks MessageNames against the active Flavor's matchers in fixed
// precedence, invoking the matching handler. It is Component F (spec.md
// 4.E), grounded on the _on_comm_* / _on_message_* dispatch table in
// octoprint.comm.protocol.reprap and on the single-goroutine traffic
// handler shape of downlink.go's handleTraffic.
type Dispatcher struct {
	engine        *Engine
	receivingHook []Hook

	handlers map[string]func(line, lower string, args Args)
	anyHook  func(line, lower string)
}

// NewDispatcher wires a Dispatcher to engine and installs the fixed
// on_* handler table (spec.md 4.E).
func NewDispatcher(engine *Engine) *Dispatcher {
	d := &Dispatcher{engine: engine}
	d.handlers = map[string]func(line, lower string, args Args){
		"comm_ok":                     d.onOk,
		"comm_wait":                   d.onWait,
		"comm_resend":                 d.onResend,
		"comm_start":                  d.onStart,
		"comm_busy":                   d.onBusy,
		"comm_action_command":         d.onActionCommand,
		"comm_timeout":                d.onTimeout,
		"message_temperature":         d.onTemperature,
		"message_position":            d.onPosition,
		"message_firmware_info":       d.onFirmwareInfo,
		"message_firmware_capability": d.onFirmwareCapability,
		"message_sd_init_ok":          d.onSDInitOk,
		"message_sd_init_fail":        d.onSDInitFail,
		"message_sd_begin_file_list":  d.onSDBeginFileList,
		"message_sd_end_file_list":    d.onSDEndFileList,
		"message_sd_entry":            d.onSDEntry,
		"message_sd_file_opened":      d.onSDFileOpened,
		"message_sd_done_printing":    d.onSDDonePrinting,
		"message_sd_printing_byte":    d.onSDPrintingByte,
		"error_communication":         d.onErrorCommunication,
		"error_sdcard":                d.onError,
		"error_generic":               d.onError,
	}
	d.anyHook = d.onCommAny
	return d
}

// AddReceivingHook appends a receiving-side line filter.
func (d *Dispatcher) AddReceivingHook(h Hook) {
	d.receivingHook = append(d.receivingHook, h)
}

// Feed is called once per decoded transport line (already UTF-8 decoded,
// NUL-stripped and whitespace-trimmed by the transport). An empty line
// here means EOF and is handled by the caller (Engine), not Feed.
func (d *Dispatcher) Feed(line string) {
	for _, h := range d.receivingHook {
		line = h(line)
		if line == "" {
			return
		}
	}
	lower := strings.ToLower(line)

	d.anyHook(line, lower)

	for _, name := range MessageNames {
		matcher, ok := d.engine.flavor().Matchers[name]
		if !ok {
			continue
		}
		res := matcher(line, lower, d.engine.State(), d.engine.flags)
		if !res.Matched {
			continue
		}
		var args Args
		if parser, ok := d.engine.flavor().Parsers[name]; ok {
			parsed, pok := parser(line, lower, d.engine.State(), d.engine.flags)
			if !pok {
				if res.Continue {
					continue
				}
				return
			}
			args = parsed
		}
		if before, ok := d.engine.flavor().Before[name]; ok {
			before(args)
		}
		if handler, ok := d.handlers[name]; ok {
			handler(line, lower, args)
		}
		if after, ok := d.engine.flavor().After[name]; ok {
			after(args, true)
		}
		if !res.Continue {
			return
		}
	}
}

// onCommAny refreshes the communication timeout and detects a resend whose
// synthetic ok never arrived — i.e. the resend-ok watchdog's job done
// inline when real traffic shows up first.
func (d *Dispatcher) onCommAny(line, lower string) {
	d.engine.refreshTimeout()
	if d.engine.resendOkTimer.Stop() {
		// A real line arrived before the watchdog fired; if it wasn't
		// itself an ok, the watchdog's synthetic-ok job still needs doing.
		if lower != "ok" && !strings.HasPrefix(lower, "ok ") {
			d.engine.simulateOk()
		}
	}
}

func (d *Dispatcher) onOk(line, lower string, args Args) {
	d.engine.handleOk()
}

func (d *Dispatcher) onWait(line, lower string, args Args) {
	d.engine.handleOk()
}

func (d *Dispatcher) onResend(line, lower string, args Args) {
	n, _ := args["lineno"].(int)
	d.engine.handleResend(n)
}

func (d *Dispatcher) onStart(line, lower string, args Args) {
	d.engine.handleStart()
}

// onBusy implements spec.md 4.E's busy protocol opt-in: the first busy
// line raises the transport's read timeout to the busy-communication value
// and tells the firmware to keep sending busy lines at that new cadence;
// subsequent busy lines just refresh the timeout like any other traffic.
func (d *Dispatcher) onBusy(line, lower string, args Args) {
	d.engine.refreshTimeout()
	// A busy line is an acknowledgement-class keepalive (spec.md 4.B): the
	// firmware is alive and the host may keep a line in flight.
	d.engine.sendToken.Set(false)
	if d.engine.flags.BusyDetected() {
		return
	}
	d.engine.flags.SetBusyDetected(true)
	d.engine.logf("printer supports the busy protocol, adjusting timeouts and busy interval")
	busyTimeout := DefaultBusyCommunicationTimeout
	d.engine.transport.SetTimeout(busyTimeout)
	interval := int(busyTimeout/time.Second) - 1
	if interval < 1 {
		interval = 1
	}
	d.engine.enqueueInternal(d.engine.flavor().Commands.BusyProtocolInterval(interval), "")
}

// onActionCommand maps the firmware-reported //action: verbs to the
// matching state-machine transition (spec.md 4.E). "paused"/"resumed" are
// the firmware reporting a state change it already made on its own, so the
// transition is applied without replaying the local pause/resume scripts.
func (d *Dispatcher) onActionCommand(line, lower string, args Args) {
	rest := strings.TrimPrefix(line, "//action:")
	verb := strings.ToLower(strings.TrimSpace(rest))
	switch verb {
	case "cancel":
		_ = d.engine.Cancel()
	case "pause":
		_ = d.engine.Pause()
	case "paused":
		_ = d.engine.forcePaused()
	case "resume":
		_ = d.engine.Resume()
	case "resumed":
		_ = d.engine.forceResumed()
	case "disconnect":
		go d.engine.Disconnect()
	}
	d.engine.emit(EventActionCommand, map[string]interface{}{"line": rest})
}

func (d *Dispatcher) onTimeout(line, lower string, args Args) {
	d.engine.handleTimeout()
}

func (d *Dispatcher) onTemperature(line, lower string, args Args) {
	d.engine.applyTemperature(args)
}

func (d *Dispatcher) onPosition(line, lower string, args Args) {
	d.engine.applyPosition(args)
}

func (d *Dispatcher) onFirmwareInfo(line, lower string, args Args) {
	info, _ := args["info"].(map[string]string)
	d.engine.applyFirmwareInfo(info)
}

// onFirmwareCapability records a reported Cap: line and, for the three
// capabilities the engine itself acts on, re-arms the matching autoreport/
// emergency behaviour (spec.md 4.E): AUTOREPORT_TEMP/AUTOREPORT_SD_STATUS
// make the firmware push M105/M27-equivalent lines on its own so the
// pollers in timers.go back off, and EMERGENCY_PARSER lets emergency
// commands bypass the send queue entirely.
func (d *Dispatcher) onFirmwareCapability(line, lower string, args Args) {
	name, _ := args["capability"].(string)
	enabled, _ := args["enabled"].(bool)
	if name == "" {
		return
	}
	d.engine.flags.SetCapability(name, enabled)
	if !enabled {
		return
	}
	switch name {
	case "AUTOREPORT_TEMP":
		d.engine.enqueueInternal(d.engine.flavor().Commands.AutoreportTemperature(int(DefaultTemperatureAutoreportInterval/time.Second)), "")
	case "AUTOREPORT_SD_STATUS":
		d.engine.enqueueInternal(d.engine.flavor().Commands.AutoreportSDStatus(int(DefaultSDStatusAutoreportInterval/time.Second)), "")
	}
}

// onErrorCommunication records a checksum/line-number complaint. These
// lines precede a Resend: request and feed its stale-echo suppression;
// they are never fatal on their own.
func (d *Dispatcher) onErrorCommunication(line, lower string, args Args) {
	kind, _ := args["error_type"].(string)
	d.engine.flags.SetLastCommunicationError(kind)
}

// onError routes an unmatched error_* line through the firmware_errors
// policy (spec.md 4.E/7): SD-card errors always disconnect regardless of
// policy, "cancel" drops the active job but stays connected, "ignore" just
// logs via the error event, and "disconnect" (the default) is fatal.
func (d *Dispatcher) onError(line, lower string, args Args) {
	if strings.Contains(lower, "sd") {
		d.engine.fatalError(line)
		return
	}
	switch d.engine.flavor().Config.FirmwareErrors {
	case "cancel":
		d.engine.emit(EventError, map[string]interface{}{"reason": line})
		if d.engine.State().Processing() {
			_ = d.engine.Cancel()
		}
		// The error line stands in for the ok the firmware won't send for
		// the command it just rejected; without this the send loop would
		// wait on a token nothing will ever set again.
		d.engine.sendToken.Set(false)
	case "ignore":
		d.engine.emit(EventError, map[string]interface{}{"reason": line})
		d.engine.sendToken.Set(false)
	default:
		d.engine.fatalError(line)
	}
}

func (d *Dispatcher) onSDInitOk(line, lower string, args Args) {
	d.engine.sdStatus.setAvailable(true)
	d.engine.emit(EventSDStatus, nil)
}

func (d *Dispatcher) onSDInitFail(line, lower string, args Args) {
	d.engine.sdStatus.setAvailable(false)
	d.engine.emit(EventSDStatus, nil)
}

func (d *Dispatcher) onSDBeginFileList(line, lower string, args Args) {
	d.engine.flags.SetSDListing(true)
	d.engine.sdStatus.beginFileList()
}

func (d *Dispatcher) onSDEndFileList(line, lower string, args Args) {
	d.engine.flags.SetSDListing(false)
	d.engine.emit(EventSDStatus, nil)
}

func (d *Dispatcher) onSDEntry(line, lower string, args Args) {
	name, _ := args["name"].(string)
	if name != "" {
		d.engine.sdStatus.addEntry(name)
	}
}

func (d *Dispatcher) onSDFileOpened(line, lower string, args Args) {
	name, _ := args["name"].(string)
	d.engine.sdStatus.setSelected(name)
	d.engine.emit(EventSDStatus, nil)
}

func (d *Dispatcher) onSDDonePrinting(line, lower string, args Args) {
	d.engine.sdStatus.setDonePrinting()
	d.engine.emit(EventSDStatus, nil)
}

func (d *Dispatcher) onSDPrintingByte(line, lower string, args Args) {
	pos, _ := args["pos"].(int64)
	total, _ := args["total"].(int64)
	d.engine.sdStatus.setProgress(pos, total)
	d.engine.emit(EventSDStatus, nil)
}

// timeoutCeiling returns the per-state consecutive-timeout ceiling used by
// Engine.handleTimeout, grounded on _on_comm_timeout's long/printing/idle
// selection and configurable per Flavor via max_consecutive_timeouts
// (spec.md 6); 0 disables that category entirely.
func timeoutCeiling(cfg MaxConsecutiveTimeouts, state State, longRunning bool) (ceiling int, window time.Duration) {
	switch {
	case longRunning:
		return cfg.Long, time.Second
	case state.Processing():
		return cfg.Printing, time.Second
	default:
		return cfg.Idle, time.Second
	}
}
