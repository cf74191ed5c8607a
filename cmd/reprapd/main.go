// Command reprapd drives a 3D printer over a serial connection using the
// reprap protocol engine. It is a thin CLI shell around reprap.Engine,
// grounded on main.go's flag-parsing style in the teacher agent (the
// cloud-reporting and LCD-preview half of that binary is out of scope
// here; see DESIGN.md).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/solderline/reprapd/reprap"
)

var (
	ttyDev    = flag.String("dev", "", "Serial device to connect to the printer, such as /dev/ttyUSB0 or /dev/ttyACM0; empty probes the usual locations")
	baudRate  = flag.Int("rate", 115200, "Baud rate")
	gcodePath = flag.String("gcode", "", "G-code file to print once connected; if empty, reprapd just connects and reports events")
)

func failf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	transport, err := reprap.NewSerialTransport(*ttyDev, *baudRate)
	if err != nil {
		failf("failed to open serial connection: %v", err)
	}

	engine := reprap.NewEngine(transport)
	engine.SetLogger(log.Printf)
	engine.AddListener(func(kind reprap.EventKind, payload map[string]interface{}) {
		log.Printf("event %s: %v", kind, payload)
	})

	if err := engine.Connect(); err != nil {
		failf("failed to connect: %v", err)
	}

	if *gcodePath != "" {
		f, err := os.Open(*gcodePath)
		if err != nil {
			failf("failed to open %s: %v", *gcodePath, err)
		}
		defer f.Close()
		job := reprap.NewFileJob(f, 0)

		// Wait for the handshake to settle before handing off a job; a
		// production caller would instead gate this on an EventConnected
		// (or firmware-identified) listener callback.
		time.Sleep(2 * time.Second)
		if err := engine.StartJob(job); err != nil {
			failf("failed to start job: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	if err := engine.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
}
