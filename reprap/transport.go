package reprap

import "time"

// Transport is the byte-pipe contract the engine drives (spec.md 6). A
// concrete transport (serial port, TCP socket, test double) pushes
// decoded lines to the registered callback from its own read goroutine
// and accepts raw line writes from the send loop.
type Transport interface {
	// Write sends one already-framed line (checksum and line number, if
	// any, already applied) plus its terminator.
	Write(line []byte) error

	// SetLineHandler registers the callback invoked with each decoded,
	// stripped line the transport receives. An empty string signals EOF.
	SetLineHandler(func(line string))

	// MessageIntegrity reports whether the transport guarantees in-order,
	// uncorrupted delivery (e.g. a loopback test double) — when true the
	// Flavor's checksum requirement can be relaxed to "never" regardless
	// of configuration, mirroring spec.md 6's integrity note.
	MessageIntegrity() bool

	// Timeout returns the current read/write timeout. The engine adjusts it
	// via SetTimeout when the busy protocol is detected; the communication-
	// timeout tick runs at a fixed one-second period and does not read it.
	Timeout() time.Duration
	SetTimeout(time.Duration)

	// Active reports whether the underlying connection is open.
	Active() bool

	// Close releases the underlying connection.
	Close() error
}
