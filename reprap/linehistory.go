package reprap

import "sync"

// LineHistory is a bounded, ordered mapping from line number to the
// textual line sent under it. It is the resend fast path: when the
// firmware asks to resend line k, the send loop looks k up here rather
// than re-deriving it. Capacity is mandatory; append evicts the oldest
// entry once the history grows past it, mirroring
// octoprint.comm.protocol.reprap.util.LineHistory and the `hist` map kept
// by hand in the teacher's RealDownlink.handleTraffic.
type LineHistory struct {
	mu     sync.Mutex
	max    int
	order  []int
	byLine map[int]string
}

// NewLineHistory returns a LineHistory that keeps at most max entries.
func NewLineHistory(max int) *LineHistory {
	if max <= 0 {
		max = 50
	}
	return &LineHistory{max: max, byLine: make(map[int]string)}
}

// Append records line under lineNumber, evicting the oldest entry if the
// history is now over capacity.
func (h *LineHistory) Append(lineNumber int, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.byLine[lineNumber]; !exists {
		h.order = append(h.order, lineNumber)
	}
	h.byLine[lineNumber] = line
	for len(h.order) > h.max {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.byLine, oldest)
	}
}

// Contains reports whether lineNumber is still tracked.
func (h *LineHistory) Contains(lineNumber int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.byLine[lineNumber]
	return ok
}

// Get returns the line recorded under lineNumber, or ok=false if it has
// been evicted or was never recorded (an "untracked" line number).
func (h *LineHistory) Get(lineNumber int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	line, ok := h.byLine[lineNumber]
	return line, ok
}

// Clear empties the history, used on M110 and on external reset.
func (h *LineHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.byLine = make(map[int]string)
}

// Len reports how many lines are currently tracked.
func (h *LineHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Lines returns the tracked lines in insertion order. Mostly useful for
// tests and debugging.
func (h *LineHistory) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.order))
	for i, n := range h.order {
		out[i] = h.byLine[n]
	}
	return out
}
