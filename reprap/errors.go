package reprap

import "errors"

// Sentinel errors mirroring spec.md 7's transport/protocol exception
// taxonomy.
var (
	ErrTimeoutTransport  = errors.New("reprap: transport timed out")
	ErrEOFTransport      = errors.New("reprap: transport reached EOF")
	ErrNotConnected      = errors.New("reprap: not connected")
	ErrAlreadyConnected  = errors.New("reprap: already connected")
	ErrAlreadyConnecting = errors.New("reprap: connection already in progress")
	ErrNoJobActive       = errors.New("reprap: no job active")
	ErrJobAlreadyActive  = errors.New("reprap: a job is already active")
	ErrEmergencyStop     = errors.New("reprap: emergency stop issued")
	ErrUnknownLineNumber = errors.New("reprap: resend requested for a line outside history")
)
