package reprap

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Job is the pull-based source of print lines consumed by the send loop
// when idle and a job is active (Component J, spec.md 4). Implementations
// decide their own notion of "position" (byte offset, line index, ...).
type Job interface {
	// GetNext returns the next line to send, or ok=false when exhausted.
	GetNext() (line string, ok bool)
	Pos() int64
	ReadLines() int64
	ActualLines() int64
	Parallel() bool // true if this job may interleave with manual commands
	Exclusive() bool
	Active() bool
}

// FileJob is a Job reading gcode lines from an in-memory or streamed
// source, grounded on Executor.ExecuteGcode's sequential line-driver
// shape in the original agent, generalised from "run this whole file
// now" into "hand me one line whenever you're idle".
type FileJob struct {
	mu         sync.Mutex
	scanner    *bufio.Scanner
	pos        int64
	readLines  int64
	totalLines int64
	active     bool
	parallel   bool
}

// NewFileJob wraps r as a Job. totalLines, if known in advance, enables
// progress reporting; pass 0 if unknown.
func NewFileJob(r io.Reader, totalLines int64) *FileJob {
	return &FileJob{
		scanner:    bufio.NewScanner(r),
		totalLines: totalLines,
		active:     true,
	}
}

func (j *FileJob) GetNext() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for j.scanner.Scan() {
		line := strings.TrimSpace(j.scanner.Text())
		j.pos += int64(len(line)) + 1
		j.readLines++
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		return line, true
	}
	j.active = false
	return "", false
}

func (j *FileJob) Pos() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pos
}

func (j *FileJob) ReadLines() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readLines
}

func (j *FileJob) ActualLines() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalLines
}

func (j *FileJob) Parallel() bool { return j.parallel }
func (j *FileJob) Exclusive() bool { return !j.parallel }

func (j *FileJob) Active() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

// Cancel marks the job inactive without reading further lines.
func (j *FileJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = false
}
