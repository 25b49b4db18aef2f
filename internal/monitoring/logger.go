// Package monitoring holds the process-wide log streams shared by the lidar
// section packages.
//
// Three streams exist:
//   - ops: lifecycle events, device failures, actionable warnings
//   - diag: per-run diagnostics such as filter changes and run summaries
//   - trace: per-section telemetry, far too chatty for production
package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   = newLogger("[sections] ", os.Stderr)
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger("[sections] ", w.Ops)
	diagLogger = newLogger("[sections] ", w.Diag)
	traceLogger = newLogger("[sections] ", w.Trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func printf(l *log.Logger, format string, args ...interface{}) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	printf(l, format, args...)
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	printf(l, format, args...)
}

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	printf(l, format, args...)
}

// TraceEnabled reports whether the trace stream has a writer, so hot paths
// can skip formatting work entirely.
func TraceEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return traceLogger != nil
}

// StreamLogger adapts a stream function such as Opsf to the Printf and
// Println logger interface used by paho.
type StreamLogger func(format string, args ...interface{})

func (f StreamLogger) Printf(format string, v ...interface{}) { f(format, v...) }

func (f StreamLogger) Println(v ...interface{}) {
	f("%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
