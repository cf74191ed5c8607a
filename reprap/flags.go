package reprap

import (
	"sync"
	"sync/atomic"
	"time"
)

// Flags is the engine's internal-flags dictionary (spec.md 3), collapsed
// into a typed struct per the design notes in spec.md 9: the handful of
// flags read across the receive/send thread boundary for advisory gating
// are atomics, everything else is a plain field owned by the protocol
// state machine goroutine and guarded by Flags.mu when another goroutine
// (a timer, mostly) needs to read it.
type Flags struct {
	// Cross-thread advisory flags. The correctness contract is that any
	// gating decision made from these is ultimately reconciled through the
	// SendToken (e.g. a heatup->ok transition always also Sets the token),
	// so these never need to be read under the same lock as the token.
	heating             atomic.Bool
	busyDetected        atomic.Bool
	longRunningCommand  atomic.Bool
	dwellingUntilUnixNs atomic.Int64 // 0 means "not dwelling"
	firmwareIdentified  atomic.Bool
	tempAutoreporting   atomic.Bool
	sdStatusAutoreport  atomic.Bool
	sdListing           atomic.Bool

	mu sync.Mutex

	currentLineNumber int
	resendActive      bool
	resendLineNumber  int
	resendCount       int
	resendWindows     int

	heatingStart time.Time
	heatingLost  bool

	firmwareCapabilities map[string]bool

	currentTool int
	formerTool  *int
	currentF    float64
	currentZ    float64

	ignoreOk int

	timeout            time.Time
	okTimeout          time.Duration
	timeoutConsecutive int
	timeoutEscalated   bool

	lastCommunicationError string
}

// NewFlags returns a Flags struct ready for a fresh connection. The line
// number counter starts at 1: line 0 is reserved for the M110 N0
// handshake, which resets the counter itself.
func NewFlags() *Flags {
	return &Flags{
		currentLineNumber:    1,
		firmwareCapabilities: make(map[string]bool),
	}
}

func (f *Flags) Heating() bool            { return f.heating.Load() }
func (f *Flags) SetHeating(v bool)        { f.heating.Store(v) }
func (f *Flags) BusyDetected() bool       { return f.busyDetected.Load() }
func (f *Flags) SetBusyDetected(v bool)   { f.busyDetected.Store(v) }
func (f *Flags) LongRunning() bool        { return f.longRunningCommand.Load() }
func (f *Flags) SetLongRunning(v bool)    { f.longRunningCommand.Store(v) }
func (f *Flags) FirmwareIdentified() bool { return f.firmwareIdentified.Load() }
func (f *Flags) SetFirmwareIdentified(v bool) {
	f.firmwareIdentified.Store(v)
}
func (f *Flags) TempAutoreporting() bool     { return f.tempAutoreporting.Load() }
func (f *Flags) SetTempAutoreporting(v bool) { f.tempAutoreporting.Store(v) }
func (f *Flags) SDStatusAutoreport() bool    { return f.sdStatusAutoreport.Load() }
func (f *Flags) SetSDStatusAutoreport(v bool) {
	f.sdStatusAutoreport.Store(v)
}

// SDListing reports whether a "Begin file list"/"End file list" block is
// currently open, the condition under which bare entry lines should be
// recognised as SD card filenames rather than left undispatched.
func (f *Flags) SDListing() bool     { return f.sdListing.Load() }
func (f *Flags) SetSDListing(v bool) { f.sdListing.Store(v) }

// DwellingUntil returns the instant dwelling ends, and whether a dwell is
// currently active.
func (f *Flags) DwellingUntil() (time.Time, bool) {
	ns := f.dwellingUntilUnixNs.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// SetDwellingUntil arms a dwell window; a zero time clears it.
func (f *Flags) SetDwellingUntil(t time.Time) {
	if t.IsZero() {
		f.dwellingUntilUnixNs.Store(0)
		return
	}
	f.dwellingUntilUnixNs.Store(t.UnixNano())
}

// CurrentLineNumber returns the number the next numbered line will be
// sent under (monotonic since the last M110/external reset).
func (f *Flags) CurrentLineNumber() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentLineNumber
}

// NextLineNumber hands out the line number for the line about to be
// written and advances the counter past it.
func (f *Flags) NextLineNumber() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.currentLineNumber
	f.currentLineNumber++
	return n
}

// ResetLineNumber sets the current line number directly, used by M110 and
// external reset. Per spec.md invariant 4, this is the only way the
// counter may decrease.
func (f *Flags) ResetLineNumber(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentLineNumber = n
}

// BeginResend records an active resend window starting at lineNumber. The
// per-window echo counter resets; IncrementResendCount bumps it when an
// echoed request from before this window is ignored.
func (f *Flags) BeginResend(lineNumber int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendActive = true
	f.resendLineNumber = lineNumber
	f.resendCount = 0
	f.resendWindows++
}

// IncrementResendCount bumps the active window's ignored-echo counter and
// returns the new value.
func (f *Flags) IncrementResendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCount++
	return f.resendCount
}

// ResendWindows reports how many resend windows have been entered since
// connect, for metrics.
func (f *Flags) ResendWindows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendWindows
}

// AdvanceResend moves the resend cursor forward by one line, clearing the
// resend-active flag once it has caught up with the current line number.
func (f *Flags) AdvanceResend() (next int, stillActive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resendActive {
		return 0, false
	}
	f.resendLineNumber++
	if f.resendLineNumber >= f.currentLineNumber {
		f.resendActive = false
		return 0, false
	}
	return f.resendLineNumber, true
}

// ResendState reports whether a resend is active and, if so, the next
// line number it expects to (re)send.
func (f *Flags) ResendState() (active bool, lineNumber, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendActive, f.resendLineNumber, f.resendCount
}

// ClearResend cancels any active resend window (used on full reset).
func (f *Flags) ClearResend() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendActive = false
	f.resendLineNumber = 0
}

// SetCapability records a firmware capability flag (e.g. "AUTOREPORT_TEMP").
func (f *Flags) SetCapability(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firmwareCapabilities[name] = enabled
}

// Capability reports a firmware capability flag's last reported value.
func (f *Flags) Capability(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firmwareCapabilities[name]
}

// SetCurrentTool / CurrentTool track T<n> tool-change bookkeeping,
// including the former_tool save/restore used around M109/M190 heatups
// issued against a non-active tool.
func (f *Flags) SetCurrentTool(tool int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentTool = tool
}

func (f *Flags) CurrentTool() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTool
}

func (f *Flags) SaveFormerTool() {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.currentTool
	f.formerTool = &t
}

// RestoreFormerTool restores currentTool from formerTool if one was saved,
// clearing the saved value either way.
func (f *Flags) RestoreFormerTool() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.formerTool != nil {
		f.currentTool = *f.formerTool
		f.formerTool = nil
	}
}

func (f *Flags) SetCurrentF(feedrate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentF = feedrate
}

func (f *Flags) SetCurrentZ(z float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentZ = z
}

func (f *Flags) CurrentZF() (z, feedrate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentZ, f.currentF
}

// IgnoreOk increments the drop-next-ok counter, consumed by the receive
// path to swallow spurious OKs after an emergency send (sendEmergency).
func (f *Flags) IgnoreOk() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoreOk++
}

// ConsumeIgnoreOk reports whether an ok should be dropped, decrementing
// the counter if so.
func (f *Flags) ConsumeIgnoreOk() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ignoreOk > 0 {
		f.ignoreOk--
		return true
	}
	return false
}

func (f *Flags) SetHeatingStart(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heatingStart = t
	f.heatingLost = false
}

func (f *Flags) HeatingStart() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heatingStart
}

func (f *Flags) SetLastCommunicationError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCommunicationError = kind
}

func (f *Flags) LastCommunicationError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCommunicationError
}

// ConsumeLastCommunicationError returns the recorded communication error
// kind and clears it; the resend handler reads it exactly once per
// request.
func (f *Flags) ConsumeLastCommunicationError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := f.lastCommunicationError
	f.lastCommunicationError = ""
	return kind
}

func (f *Flags) SetTimeoutConsecutive(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeoutConsecutive = n
}

func (f *Flags) IncrementTimeoutConsecutive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeoutConsecutive++
	return f.timeoutConsecutive
}

func (f *Flags) TimeoutConsecutive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeoutConsecutive
}

// TimeoutEscalated / SetTimeoutEscalated track whether the one corrective
// nudge handleTimeout takes on reaching its ceiling has already been tried
// since the last real traffic; a second ceiling hit with it still set is
// what promotes the timeout to a fatal disconnect.
func (f *Flags) TimeoutEscalated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeoutEscalated
}

func (f *Flags) SetTimeoutEscalated(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeoutEscalated = v
}

func (f *Flags) ResendCursor() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendLineNumber
}
