package reprap

import "sync"

// tempPair is (actual, target); either half may be unset (nil).
type tempPair struct {
	actual *float64
	target *float64
}

func mergeTempPair(current tempPair, actual, target *float64) tempPair {
	if actual == nil && target == nil {
		return current
	}
	out := current
	if actual != nil {
		out.actual = actual
	}
	if target != nil {
		out.target = target
	}
	return out
}

// TempReading is one heater's reported (actual, target) pair; either half
// may be absent (nil) on a partial report.
type TempReading struct {
	Actual *float64
	Target *float64
}

// TemperatureRecord is a typed snapshot of last-known thermal state: one
// pair per tool, plus bed and chamber. Setting actual alone preserves
// target and vice versa, mirroring
// octoprint.comm.protocol.reprap.util.TemperatureRecord.
type TemperatureRecord struct {
	mu      sync.Mutex
	tools   map[int]tempPair
	bed     tempPair
	chamber tempPair
}

// NewTemperatureRecord returns an empty record.
func NewTemperatureRecord() *TemperatureRecord {
	return &TemperatureRecord{tools: make(map[int]tempPair)}
}

// SetTool updates tool's actual and/or target reading. A nil argument
// leaves that half of the pair untouched.
func (r *TemperatureRecord) SetTool(tool int, actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool] = mergeTempPair(r.tools[tool], actual, target)
}

// SetBed updates the bed reading.
func (r *TemperatureRecord) SetBed(actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bed = mergeTempPair(r.bed, actual, target)
}

// SetChamber updates the chamber reading.
func (r *TemperatureRecord) SetChamber(actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chamber = mergeTempPair(r.chamber, actual, target)
}

// Tool returns tool's last-known (actual, target), each possibly nil.
func (r *TemperatureRecord) Tool(tool int) (actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.tools[tool]
	return p.actual, p.target
}

// Bed returns the bed's last-known (actual, target).
func (r *TemperatureRecord) Bed() (actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bed.actual, r.bed.target
}

// Chamber returns the chamber's last-known (actual, target).
func (r *TemperatureRecord) Chamber() (actual, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chamber.actual, r.chamber.target
}

// Tools returns the set of tool indices with at least one recorded reading.
func (r *TemperatureRecord) Tools() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.tools))
	for t := range r.tools {
		out = append(out, t)
	}
	return out
}

// AnyTargetAbove reports whether any heater's last-known target exceeds
// threshold, used to pick the faster temperature poll interval while a
// heater is commanded hot.
func (r *TemperatureRecord) AnyTargetAbove(threshold float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.tools {
		if p.target != nil && *p.target > threshold {
			return true
		}
	}
	if r.bed.target != nil && *r.bed.target > threshold {
		return true
	}
	if r.chamber.target != nil && *r.chamber.target > threshold {
		return true
	}
	return false
}

// CopyFrom replaces r's contents with other's, used when snapshotting the
// live record into pause/cancel position-capture state.
func (r *TemperatureRecord) CopyFrom(other *TemperatureRecord) {
	other.mu.Lock()
	tools := make(map[int]tempPair, len(other.tools))
	for k, v := range other.tools {
		tools[k] = v
	}
	bed, chamber := other.bed, other.chamber
	other.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = tools
	r.bed = bed
	r.chamber = chamber
}

// SDStatusRecord is a typed snapshot of the SD card message family (spec.md
// 4's SD command literals and autoreporting capability; the receive-side
// parsing is a supplemented feature per SPEC_FULL.md 4.1, grounded on
// octoprint.comm.protocol.reprap.util.comm_helpers' SD state tracking).
type SDStatusRecord struct {
	mu sync.Mutex

	available bool
	files     []string
	selected  string
	printing  bool
	bytePos   int64
	byteTotal int64
}

// NewSDStatusRecord returns an empty record.
func NewSDStatusRecord() *SDStatusRecord { return &SDStatusRecord{} }

func (r *SDStatusRecord) setAvailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = v
}

func (r *SDStatusRecord) beginFileList() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = nil
}

func (r *SDStatusRecord) addEntry(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, name)
}

func (r *SDStatusRecord) setSelected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = name
	r.printing = false
	r.bytePos, r.byteTotal = 0, 0
}

func (r *SDStatusRecord) setDonePrinting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printing = false
	r.bytePos = r.byteTotal
}

func (r *SDStatusRecord) setProgress(pos, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printing = true
	r.bytePos, r.byteTotal = pos, total
}

// Available reports whether the card has been seen to initialise.
func (r *SDStatusRecord) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Files returns the most recently listed SD card filenames.
func (r *SDStatusRecord) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}

// Selected returns the filename most recently opened via M23/SDSelect, if
// any.
func (r *SDStatusRecord) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Progress reports whether an SD print is under way and, if so, the last
// reported byte position and total.
func (r *SDStatusRecord) Progress() (printing bool, pos, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.printing, r.bytePos, r.byteTotal
}

// PositionRecord is the kinematic snapshot reported by M114: the six
// canonical axes plus arbitrary per-extruder e<n> slots (multi-extruder
// firmwares report E0/E1/... instead of a single E). Valid gates whether
// downstream consumers (pause/cancel position capture) should trust it.
type PositionRecord struct {
	X, Y, Z, E, F *float64
	T             *int
	Extra         map[string]float64 // "e0", "e1", ... beyond the canonical E
	Valid         bool
}

// CopyFrom deep-copies other into r.
func (p *PositionRecord) CopyFrom(other *PositionRecord) {
	*p = *other
	if other.Extra != nil {
		p.Extra = make(map[string]float64, len(other.Extra))
		for k, v := range other.Extra {
			p.Extra[k] = v
		}
	}
}
