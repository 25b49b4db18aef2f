package sections

import (
	"fmt"
	"time"

	"github.com/banshee-data/lidar.sections/internal/monitoring"
	"github.com/banshee-data/lidar.sections/internal/timeutil"
)

// Event is handed to the continuation for each completed section. Time is
// the receive time of the raw data that produced the point closing the
// section.
type Event struct {
	Time    time.Time `json:"time"`
	Section Section   `json:"section"`
}

// Continuation is called once per completed section on the polling
// goroutine. It may call SetFilter or Device on h. Returning false stops Run.
type Continuation[D Driver] func(h *Harness[D], ev Event) bool

// Option configures a Harness.
type Option func(*harnessOptions)

type harnessOptions struct {
	clock timeutil.Clock
	label string
}

// WithClock replaces the wall clock used for stall detection.
func WithClock(c timeutil.Clock) Option {
	return func(o *harnessOptions) { o.clock = c }
}

// WithLabel names the harness in log lines. Open uses the device key.
func WithLabel(label string) Option {
	return func(o *harnessOptions) { o.label = label }
}

// Harness owns one device handle and turns its points into sections.
// A Harness is not safe for concurrent use.
type Harness[D Driver] struct {
	device       D
	clock        timeutil.Clock
	label        string
	parseTimeout time.Duration

	// received is the time of the last successful Receive; anchor is the
	// start of the current stall window.
	received time.Time
	anchor   time.Time

	collector *Collector
	filter    Filter
	stats     Stats
	err       error
}

// Open asks m for the device at key and wraps it in a Harness. If the model
// declines, the error wraps ErrDeviceUnavailable.
func Open[D Driver](m Model[D], key string, opts ...Option) (*Harness[D], error) {
	device, err := m.Open(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, key, err)
	}
	opts = append([]Option{WithLabel(key)}, opts...)
	return New(device, m.ParseTimeout(), m.MaxDir(), opts...), nil
}

// New wraps an already open device.
func New[D Driver](device D, parseTimeout time.Duration, maxDir uint16, opts ...Option) *Harness[D] {
	o := harnessOptions{clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	now := o.clock.Now()
	return &Harness[D]{
		device:       device,
		clock:        o.clock,
		label:        o.label,
		parseTimeout: parseTimeout,
		received:     now,
		anchor:       now,
		collector:    NewCollectorForTurn(maxDir),
		filter:       AcceptAll,
	}
}

// SetFilter replaces the active filter. It applies from the next parsed
// point. A nil filter accepts everything.
func (h *Harness[D]) SetFilter(f Filter) {
	if f == nil {
		f = AcceptAll
	}
	h.filter = f
}

// Device exposes the owned handle for device-specific control.
func (h *Harness[D]) Device() D { return h.device }

// Stats returns a copy of the harness counters.
func (h *Harness[D]) Stats() Stats { return h.stats }

// Err returns the Receive error that ended the last Run, if any.
func (h *Harness[D]) Err() error { return h.err }

// Close closes the device.
func (h *Harness[D]) Close() error { return h.device.Close() }

// Run polls the device until cont returns false or the device stalls or
// fails. Each call starts a fresh stall window.
func (h *Harness[D]) Run(cont Continuation[D]) Outcome {
	h.stats.Runs++
	h.err = nil
	h.received = h.clock.Now()
	h.anchor = h.received

	for {
		if p, ok := h.device.Parse(); ok {
			h.anchor = h.received
			h.stats.Points++
			if p.Len != 0 && !h.filter(p) {
				p.Len = 0
				h.stats.Demoted++
			}
			s, done := h.collector.Push(p)
			if !done {
				continue
			}
			h.stats.Sections++
			if monitoring.TraceEnabled() {
				monitoring.Tracef("%s: sector %d closed with %d points", h.label, s.Sector, len(s.Points))
			}
			if !cont(h, Event{Time: h.anchor, Section: s}) {
				return h.finish(Stopped)
			}
		} else if h.received.After(h.anchor.Add(h.parseTimeout)) {
			monitoring.Opsf("%s: no point decoded for %v, device stalled", h.label, h.received.Sub(h.anchor))
			return h.finish(Stalled)
		} else if err := h.device.Receive(); err == nil {
			h.received = h.clock.Now()
			h.stats.Receives++
		} else {
			h.err = err
			monitoring.Opsf("%s: receive failed: %v", h.label, err)
			return h.finish(ReceiveFailed)
		}
	}
}

func (h *Harness[D]) finish(o Outcome) Outcome {
	h.stats.LastOutcome = o
	monitoring.Diagf("%s: run ended: %s (points=%d sections=%d demoted=%d)",
		h.label, o, h.stats.Points, h.stats.Sections, h.stats.Demoted)
	return o
}
