package reprap

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/samofly/serial"
)

// ErrPrinterDeviceNotFound is returned by FindTTYDev when none of the
// candidate device nodes exist.
var ErrPrinterDeviceNotFound = errors.New("reprap: printer device not found; is it turned off?")

// FindTTYDev scans the short, fixed list of device nodes a directly
// attached printer is likely to show up under. Grounded on
// downlink.go's findTTYDev: the original agent ran on a small fleet of
// known Raspberry Pi hosts where this list was exhaustive in practice.
func FindTTYDev() (string, error) {
	for _, dev := range []string{
		"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2",
		"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2",
	} {
		if _, err := os.Stat(dev); err == nil {
			return dev, nil
		}
	}
	return "", ErrPrinterDeviceNotFound
}

// SerialTransport is a Transport backed by a real serial port, grounded on
// downlink.go's RealDownlink: that type mixed the byte pipe with the
// send/ack state machine the rest of this package now owns, so only the
// connection-management and line-framing half is kept here — opening the
// device, running a scanner goroutine that pushes stripped lines to the
// engine, and a write path guarded by its own mutex so the send loop and
// the emergency fast path can both call it safely.
type SerialTransport struct {
	dev      string
	baudRate int

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	active  bool
	timeout time.Duration

	handlerMu sync.Mutex
	handler   func(string)
}

// NewSerialTransport opens dev at baudRate and starts the line-reader
// goroutine. Pass "" for dev to have it probed via FindTTYDev.
func NewSerialTransport(dev string, baudRate int) (*SerialTransport, error) {
	if dev == "" {
		found, err := FindTTYDev()
		if err != nil {
			return nil, err
		}
		dev = found
	}
	conn, err := serial.Open(dev, baudRate)
	if err != nil {
		return nil, err
	}
	t := &SerialTransport{
		dev:      dev,
		baudRate: baudRate,
		conn:     conn,
		active:   true,
		timeout:  10 * time.Second,
	}
	go t.readLoop(conn)
	return t, nil
}

func (t *SerialTransport) readLoop(conn io.Reader) {
	in := bufio.NewScanner(conn)
	for in.Scan() {
		line := strings.Trim(in.Text(), "\x00\r\n \t")
		t.push(line)
	}
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	t.push("")
}

func (t *SerialTransport) push(line string) {
	t.handlerMu.Lock()
	h := t.handler
	t.handlerMu.Unlock()
	if h != nil {
		h(line)
	}
}

// Write implements Transport.
func (t *SerialTransport) Write(line []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	_, err := conn.Write(line)
	return err
}

// SetLineHandler implements Transport.
func (t *SerialTransport) SetLineHandler(h func(string)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handler = h
}

// MessageIntegrity implements Transport: a raw serial link offers none.
func (t *SerialTransport) MessageIntegrity() bool { return false }

// Timeout implements Transport.
func (t *SerialTransport) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// SetTimeout implements Transport.
func (t *SerialTransport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Active implements Transport.
func (t *SerialTransport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Close implements Transport.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.active = false
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
