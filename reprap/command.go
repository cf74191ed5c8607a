package reprap

import (
	"fmt"
	"strings"

	"github.com/solderline/reprapd/gcode"
)

// Kind distinguishes the three shapes a Command can take.
type Kind int

const (
	KindGcode Kind = iota
	KindAtCommand
	KindText
)

// Command is the value type that flows through the queues and the command
// pipeline. It is immutable from the caller's perspective: WithType and
// WithTags return a modified copy, they never mutate the receiver.
type Command struct {
	Kind Kind

	// Populated when Kind == KindGcode.
	Gcode *gcode.Command

	// Populated when Kind == KindAtCommand.
	AtName   string
	AtParams string

	// Populated when Kind == KindText (and also set for KindGcode/
	// KindAtCommand; Line() still renders KindGcode from the parsed Gcode).
	line string

	// Type is the deduplication key used by Queues. Empty disables dedup.
	Type string

	tags map[string]struct{}
}

// NewTextCommand wraps a line that isn't a recognised G-code or @-command.
func NewTextCommand(line string) Command {
	return Command{Kind: KindText, line: line}
}

// NewAtCommand builds an @-command, e.g. "@pause".
func NewAtCommand(name, params string) Command {
	line := "@" + name
	if params != "" {
		line += " " + params
	}
	return Command{Kind: KindAtCommand, AtName: name, AtParams: params, line: line}
}

// ToCommand parses line into the most specific Command it can: an
// @-command if it starts with '@', a Gcode command if it tokenises as one,
// and a plain Text command as the fallback. This mirrors OctoPrint's
// `to_command` helper, including the property that parsing an already
// rendered Command is stable: ToCommand(cmd.Line()) re-derives the same
// shape.
func ToCommand(line string) Command {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "@") {
		rest := strings.TrimSpace(trimmed[1:])
		name := rest
		params := ""
		if idx := strings.IndexAny(rest, " \t"); idx >= 0 {
			name = rest[:idx]
			params = strings.TrimSpace(rest[idx+1:])
		}
		return NewAtCommand(name, params)
	}
	if g, err := gcode.Parse(trimmed); err == nil {
		return Command{Kind: KindGcode, Gcode: g, line: trimmed}
	}
	return NewTextCommand(trimmed)
}

// Code returns the G-code code ("G28", "M104", ...) for a Gcode command,
// the @-command name for an AtCommand, and "" for a Text command.
func (c Command) Code() string {
	switch c.Kind {
	case KindGcode:
		return c.Gcode.Code()
	case KindAtCommand:
		return "@" + c.AtName
	default:
		return ""
	}
}

// Line renders the command back to wire text.
func (c Command) Line() string {
	switch c.Kind {
	case KindGcode:
		return c.Gcode.String()
	default:
		return c.line
	}
}

// String implements fmt.Stringer for logging.
func (c Command) String() string {
	return fmt.Sprintf("Command{%s tags=%v type=%q}", c.Line(), c.TagSlice(), c.Type)
}

// IsEmpty reports whether the rendered line is empty once stripped, the
// condition under which the send loop silently drops a rewritten command.
func (c Command) IsEmpty() bool {
	return strings.TrimSpace(c.Line()) == ""
}

// WithGcode returns a copy of c carrying g as its parsed form, used by
// sending-phase rewrites such as the temperature-offset adjustment.
func (c Command) WithGcode(g *gcode.Command) Command {
	c.Gcode = g
	c.line = g.String()
	return c
}

// WithType returns a copy of c with the dedup type changed.
func (c Command) WithType(t string) Command {
	c.Type = t
	return c
}

// WithTags returns a copy of c with the given tags unioned into its tag set.
func (c Command) WithTags(tags ...string) Command {
	merged := make(map[string]struct{}, len(c.tags)+len(tags))
	for t := range c.tags {
		merged[t] = struct{}{}
	}
	for _, t := range tags {
		merged[t] = struct{}{}
	}
	c.tags = merged
	return c
}

// HasTag reports whether tag is present on c.
func (c Command) HasTag(tag string) bool {
	_, ok := c.tags[tag]
	return ok
}

// TagSlice returns the tag set as a sorted-free slice, mostly for logging
// and tests; do not rely on ordering.
func (c Command) TagSlice() []string {
	out := make([]string, 0, len(c.tags))
	for t := range c.tags {
		out = append(out, t)
	}
	return out
}

// Provenance tags used throughout the engine.
const (
	TagSourceFile    = "source:file"
	TagSourceJob     = "source:job"
	TagSourceRewrite = "source:rewrite"
	TagForce         = "force"
)

// MarkerKind distinguishes plain barriers from callback-carrying markers.
type MarkerKind int

const (
	MarkerPlain MarkerKind = iota
	MarkerSendQueue
)

// Marker is a non-command sentinel that can be enqueued alongside Commands.
// A plain Marker is just a FIFO barrier; a Send Queue Marker additionally
// carries a callback that the send loop runs, on its own goroutine, once
// the marker is reached (used to sequence state transitions like "flip to
// PAUSED after everything currently queued has been sent").
type Marker struct {
	Kind     MarkerKind
	Name     string
	Callback func()
}

// NewBarrier returns a plain barrier marker.
func NewBarrier(name string) *Marker {
	return &Marker{Kind: MarkerPlain, Name: name}
}

// NewSendQueueMarker returns a marker whose callback runs on the send loop
// goroutine when the marker is dequeued.
func NewSendQueueMarker(name string, callback func()) *Marker {
	return &Marker{Kind: MarkerSendQueue, Name: name, Callback: callback}
}
