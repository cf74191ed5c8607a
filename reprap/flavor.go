package reprap

// Args carries a message handler's parsed arguments (e.g. {"lineno": 17}
// for a resend, {"tools": ..., "bed": ..., "chamber": ..., "max_tool": ...}
// for a temperature line).
type Args map[string]interface{}

// MatchResult is what a Flavor matcher returns: whether the line matched
// this message name, and whether the dispatcher should keep trying other
// matchers afterwards regardless (Continue=true — "matched but allow
// further matchers too"). The default behaviour modelled by Continue=false
// is "stop after first match".
type MatchResult struct {
	Matched  bool
	Continue bool
}

// Matcher decides whether line (and its lower-cased form) represents the
// named message, given the engine's current protocol state and advisory
// flags.
type Matcher func(line, lowerLine string, state State, flags *Flags) MatchResult

// Parser extracts structured arguments from a line already confirmed to
// match a message name. Returning ok=false aborts handling of this line
// for this message name (as if the parser itself didn't match).
type Parser func(line, lowerLine string, state State, flags *Flags) (args Args, ok bool)

// CommandSet is the set of command literals a Flavor must be able to
// produce. Every field is a function because several commands are
// parameterised (an interval, a tool index, a temperature).
type CommandSet struct {
	Hello                 func() string
	SetLine               func(n int) string
	GetFirmwareInfo       func() string
	GetTemperature        func() string
	GetPosition           func() string
	FinishMoving          func() string
	EmergencyStop         func() string
	AbortHeatup           func() string
	AutoreportTemperature func(intervalSeconds int) string
	AutoreportSDStatus    func(intervalSeconds int) string
	BusyProtocolInterval  func(intervalSeconds int) string
	SetExtruderTemp       func(tool int, celsius float64, wait bool) string
	SetBedTemp            func(celsius float64, wait bool) string
	SetChamberTemp        func(celsius float64, wait bool) string
	Home                  func(axes string) string
	Move                  func(params map[byte]float64) string
	SetTool               func(tool int) string

	SDInit       func() string
	SDRefresh    func() string
	SDSelect     func(name string) string
	SDStart      func() string
	SDPause      func() string
	SDResume     func() string
	SDStatus     func() string
	SDBeginWrite func(name string) string
	SDEndWrite   func(name string) string
	SDDelete     func(name string) string
	SDSetPos     func(pos int64) string
}

// Config is the overridable behaviour bag described in spec.md 4.D/6.
type Config struct {
	SendChecksum          string // "always" | "printing" | "never"
	TriggerOkAfterResend  string // "always" | "detect" | "never"
	UnknownRequiresAck    bool
	UnknownWithChecksum   bool
	BlockWhileDwelling    bool
	HeatupAbortable       bool
	SDRelativePath        bool
	SDAlwaysAvailable     bool
	DetectExternalHeatups bool
	// SharedNozzle signals that every extruder reports through one physical
	// sensor (spec.md 8): a temperature line carrying only a bare "T:"
	// reading (no per-tool "T0:"/"T1:" tokens) is replicated to every
	// configured extruder slot rather than just the current tool.
	SharedNozzle bool

	BlockedCommands           map[string]bool
	ChecksumRequiringCommands map[string]bool
	LongRunningCommands       map[string]bool
	AsynchronousCommands      map[string]bool
	PausingCommands           map[string]bool
	EmergencyCommands         map[string]bool

	// LogPositionOnPause / LogPositionOnCancel control whether the engine
	// issues a finish-moving + get-position round to capture where the head
	// was before the state settles (spec.md 6).
	LogPositionOnPause  bool
	LogPositionOnCancel bool

	// FirmwareErrors is the policy an unhandled error_* line is resolved
	// with (spec.md 6/7): "disconnect", "cancel" or "ignore".
	FirmwareErrors string
	// SendM112 controls whether M112 is written before a fatal-error
	// disconnect (spec.md 6's send_m112).
	SendM112 bool
	// MaxConsecutiveTimeouts is the per-state ceiling table consulted by
	// Engine.handleTimeout; 0 in any field disables that category.
	MaxConsecutiveTimeouts MaxConsecutiveTimeouts
}

// MaxConsecutiveTimeouts is spec.md 6's idle/printing/long ceiling triple.
type MaxConsecutiveTimeouts struct {
	Idle     int
	Printing int
	Long     int
}

// MessageNames is the fixed precedence the Receive Dispatcher walks: every
// comm_* name, then every message_* name, then every error_* name. A Flavor need not implement
// every one of these (a missing Matcher just never matches).
var MessageNames = []string{
	"comm_ok",
	"comm_wait",
	"comm_resend",
	"comm_start",
	"comm_busy",
	"comm_action_command",
	"comm_timeout",

	"message_temperature",
	"message_position",
	"message_firmware_info",
	"message_firmware_capability",
	"message_sd_init_ok",
	"message_sd_init_fail",
	"message_sd_begin_file_list",
	"message_sd_end_file_list",
	"message_sd_entry",
	"message_sd_file_opened",
	"message_sd_done_printing",
	"message_sd_printing_byte",

	"error_communication",
	"error_sdcard",
	"error_generic",
}

// Flavor is a capability object describing one firmware dialect: the
// literal commands to send it, the matchers/parsers that turn its replies
// into named messages, and the behaviour-bag defaults appropriate for it.
// Flavor is a value (not an interface) by design: spec.md 9 calls for "a
// trait/interface with explicitly enumerated methods" and a declared list
// of message kinds; a struct of named function fields gives exactly that
// enumeration while making firmware hot-swap (spec.md 4.E,
// message_firmware_info) a plain pointer replacement instead of a dynamic
// dispatch through an interface satisfied by many small types.
type Flavor struct {
	Name       string
	Commands   CommandSet
	Matchers   map[string]Matcher
	Parsers    map[string]Parser
	Before     map[string]func(Args)
	After      map[string]func(args Args, handled bool)
	Identifier func(firmwareName string, info map[string]string) bool
	Config     Config
}

// WithOverrides returns a derived Flavor sharing everything except the
// Config fields listed as non-zero in overrides, which replace the
// defaults. Command literals, matchers and parsers are untouched.
func (f *Flavor) WithOverrides(overrides Config) *Flavor {
	derived := *f
	derived.Config = mergeConfig(f.Config, overrides)
	return &derived
}

func mergeConfig(base, over Config) Config {
	out := base
	if over.SendChecksum != "" {
		out.SendChecksum = over.SendChecksum
	}
	if over.TriggerOkAfterResend != "" {
		out.TriggerOkAfterResend = over.TriggerOkAfterResend
	}
	out.UnknownRequiresAck = orBool(base.UnknownRequiresAck, over.UnknownRequiresAck)
	out.UnknownWithChecksum = orBool(base.UnknownWithChecksum, over.UnknownWithChecksum)
	out.BlockWhileDwelling = orBool(base.BlockWhileDwelling, over.BlockWhileDwelling)
	out.HeatupAbortable = orBool(base.HeatupAbortable, over.HeatupAbortable)
	out.SDRelativePath = orBool(base.SDRelativePath, over.SDRelativePath)
	out.SDAlwaysAvailable = orBool(base.SDAlwaysAvailable, over.SDAlwaysAvailable)
	out.DetectExternalHeatups = orBool(base.DetectExternalHeatups, over.DetectExternalHeatups)
	out.SharedNozzle = orBool(base.SharedNozzle, over.SharedNozzle)
	out.LogPositionOnPause = orBool(base.LogPositionOnPause, over.LogPositionOnPause)
	out.LogPositionOnCancel = orBool(base.LogPositionOnCancel, over.LogPositionOnCancel)
	if over.BlockedCommands != nil {
		out.BlockedCommands = over.BlockedCommands
	}
	if over.ChecksumRequiringCommands != nil {
		out.ChecksumRequiringCommands = over.ChecksumRequiringCommands
	}
	if over.LongRunningCommands != nil {
		out.LongRunningCommands = over.LongRunningCommands
	}
	if over.AsynchronousCommands != nil {
		out.AsynchronousCommands = over.AsynchronousCommands
	}
	if over.PausingCommands != nil {
		out.PausingCommands = over.PausingCommands
	}
	if over.EmergencyCommands != nil {
		out.EmergencyCommands = over.EmergencyCommands
	}
	if over.FirmwareErrors != "" {
		out.FirmwareErrors = over.FirmwareErrors
	}
	out.SendM112 = orBool(base.SendM112, over.SendM112)
	if over.MaxConsecutiveTimeouts != (MaxConsecutiveTimeouts{}) {
		out.MaxConsecutiveTimeouts = over.MaxConsecutiveTimeouts
	}
	return out
}

// orBool is a tiny helper for the "override wins if the caller bothered to
// set it" merge above. Since Config's bools don't carry a presence bit,
// overrides can only turn a flag on relative to the base; turning one off
// via WithOverrides requires constructing a full replacement Config.
func orBool(base, over bool) bool {
	return base || over
}

// knownFlavors is the registry IdentifyFlavor consults, populated by this
// package's init with the flavors it ships. Callers can still force a
// Flavor unconditionally via Engine.SetFlavor.
var knownFlavors = []*Flavor{Generic}

// RegisterFlavor adds f to the set IdentifyFlavor searches. Intended for
// callers outside this package that define their own firmware flavors.
func RegisterFlavor(f *Flavor) {
	knownFlavors = append(knownFlavors, f)
}

// IdentifyFlavor returns the first registered Flavor whose Identifier
// claims firmwareName/info, or nil if none does (in which case the
// engine keeps whatever Flavor is already active).
func IdentifyFlavor(firmwareName string, info map[string]string) *Flavor {
	for _, f := range knownFlavors {
		if f.Identifier != nil && f.Identifier(firmwareName, info) {
			return f
		}
	}
	return nil
}
