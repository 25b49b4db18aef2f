// Package supervisor keeps one sweep harness running per device key. It
// opens devices within the model's open timeout, fans completed sections
// out to sinks, applies filter changes between sections and reopens a
// device after it stalls or fails.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
	"github.com/banshee-data/lidar.sections/internal/timeutil"
)

// ErrNoDevices is returned by Run when the model enumerates no keys.
var ErrNoDevices = errors.New("no device keys")

// DefaultBackoff is the pause between a failed run and the next open.
const DefaultBackoff = 2 * time.Second

// Record is one completed section as delivered to sinks.
type Record struct {
	Key   string         `json:"key"`
	RunID string         `json:"run_id"`
	Event sections.Event `json:"event"`
}

// Sink receives completed sections. HandleSection is called on the polling
// goroutine of the device, so it must not block for long. An error is
// logged and does not stop the run.
type Sink interface {
	HandleSection(ctx context.Context, rec Record) error
}

// RunObserver is implemented by sinks that track run boundaries.
type RunObserver interface {
	RunStarted(ctx context.Context, key, runID string, at time.Time) error
	RunEnded(ctx context.Context, key, runID string, at time.Time, outcome sections.Outcome, st sections.Stats) error
}

// DeviceStatus describes one supervised key.
type DeviceStatus struct {
	Key          string           `json:"key"`
	RunID        string           `json:"run_id,omitempty"`
	Open         bool             `json:"open"`
	Opens        int              `json:"opens"`
	OpenFailures int              `json:"open_failures"`
	LastOutcome  sections.Outcome `json:"last_outcome"`
	LastError    string           `json:"last_error,omitempty"`
	LastSection  time.Time        `json:"last_section"`
	Stats        sections.Stats   `json:"stats"`
}

// Option configures a Supervisor.
type Option func(*options)

type options struct {
	clock      timeutil.Clock
	backoff    time.Duration
	maxOpens   int
	newRunID   func() string
	harnessOps []sections.Option
}

// WithClock replaces the clock used for open timeouts, backoff and stall
// detection.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithBackoff sets the pause before reopening a device.
func WithBackoff(d time.Duration) Option {
	return func(o *options) { o.backoff = d }
}

// WithMaxOpens stops supervising a key after n open attempts. Zero means
// no limit.
func WithMaxOpens(n int) Option {
	return func(o *options) { o.maxOpens = n }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(f func() string) Option {
	return func(o *options) { o.newRunID = f }
}

// Supervisor runs harnesses for every key of one model.
type Supervisor[D sections.Driver] struct {
	model sections.Model[D]
	sinks []Sink
	opts  options

	mu      sync.Mutex
	keys    []string
	filter  sections.Filter
	pending map[string]chan sections.Filter
	status  map[string]*DeviceStatus
}

// New creates a supervisor for model m that forwards sections to sinks.
func New[D sections.Driver](m sections.Model[D], sinks []Sink, opts ...Option) *Supervisor[D] {
	o := options{
		clock:    timeutil.RealClock{},
		backoff:  DefaultBackoff,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.harnessOps = append(o.harnessOps, sections.WithClock(o.clock))
	return &Supervisor[D]{
		model:   m,
		sinks:   sinks,
		opts:    o,
		filter:  sections.AcceptAll,
		pending: make(map[string]chan sections.Filter),
		status:  make(map[string]*DeviceStatus),
	}
}

// SetFilter sends f to every running harness. Each harness applies it from
// the next parsed point on; harnesses opened later start with it.
func (s *Supervisor[D]) SetFilter(f sections.Filter) {
	if f == nil {
		f = sections.AcceptAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	for _, ch := range s.pending {
		replace(ch, f)
	}
}

// replace leaves f as the only queued filter in ch.
func replace(ch chan sections.Filter, f sections.Filter) {
	select {
	case <-ch:
	default:
	}
	ch <- f
}

// Status returns a snapshot of every supervised key, in the order they
// were enumerated.
func (s *Supervisor[D]) Status() []DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceStatus, 0, len(s.status))
	for _, key := range s.keys {
		out = append(out, *s.status[key])
	}
	return out
}

// Run supervises every key until ctx is cancelled or every key has used
// up its open attempts.
//
// A running harness notices cancellation when its next section completes or
// when it stalls. A device that stays inside one sector therefore delays
// shutdown by up to the model's ParseTimeout plus one Receive.
func (s *Supervisor[D]) Run(ctx context.Context) error {
	keys := s.model.Keys()
	if len(keys) == 0 {
		return ErrNoDevices
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		s.register(key)
		g.Go(func() error {
			s.watch(ctx, key)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor[D]) register(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[key]; !ok {
		s.status[key] = &DeviceStatus{Key: key}
		s.keys = append(s.keys, key)
	}
	if _, ok := s.pending[key]; !ok {
		s.pending[key] = make(chan sections.Filter, 1)
	}
}

func (s *Supervisor[D]) update(key string, fn func(*DeviceStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.status[key])
}

// watch keeps key open until ctx is done or the open budget runs out.
func (s *Supervisor[D]) watch(ctx context.Context, key string) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		h, err := s.open(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			monitoring.Opsf("%s: open attempt %d failed: %v", key, attempt, err)
			s.update(key, func(st *DeviceStatus) {
				st.OpenFailures++
				st.LastError = err.Error()
			})
		} else {
			s.runOnce(ctx, key, h)
			if err := h.Close(); err != nil {
				monitoring.Diagf("%s: close: %v", key, err)
			}
		}

		if s.opts.maxOpens > 0 && attempt >= s.opts.maxOpens {
			monitoring.Diagf("%s: giving up after %d opens", key, attempt)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.opts.clock.After(s.opts.backoff):
		}
	}
}

// open asks the model for key, giving up after the model's open timeout.
// A handle that arrives after the timeout is closed.
func (s *Supervisor[D]) open(ctx context.Context, key string) (*sections.Harness[D], error) {
	type result struct {
		h   *sections.Harness[D]
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := sections.Open(s.model, key, s.opts.harnessOps...)
		done <- result{h, err}
	}()

	abandon := func() {
		go func() {
			if r := <-done; r.err == nil {
				monitoring.Diagf("%s: closing handle that opened after the timeout", key)
				r.h.Close()
			}
		}()
	}

	timeout := s.model.OpenTimeout()
	select {
	case r := <-done:
		return r.h, r.err
	case <-s.opts.clock.After(timeout):
		abandon()
		return nil, fmt.Errorf("%w: %s: open timed out after %v", sections.ErrDeviceUnavailable, key, timeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// runOnce runs h until it stops, stalls or fails and reports the run to
// observers.
func (s *Supervisor[D]) runOnce(ctx context.Context, key string, h *sections.Harness[D]) sections.Outcome {
	runID := s.opts.newRunID()
	started := s.opts.clock.Now()

	s.mu.Lock()
	current := s.filter
	filters := s.pending[key]
	select {
	case <-filters:
	default:
	}
	st := s.status[key]
	st.RunID = runID
	st.Open = true
	st.Opens++
	st.LastError = ""
	s.mu.Unlock()

	// Harness and filter live on this goroutine; commands queued by
	// SetFilter are picked up before the next point is judged.
	h.SetFilter(func(p sections.Point) bool {
		select {
		case f := <-filters:
			current = f
			monitoring.Diagf("%s: filter replaced", key)
		default:
		}
		return current(p)
	})

	monitoring.Opsf("%s: run %s started", key, runID)
	for _, sink := range s.sinks {
		if obs, ok := sink.(RunObserver); ok {
			if err := obs.RunStarted(ctx, key, runID, started); err != nil {
				monitoring.Opsf("%s: run start not recorded: %v", key, err)
			}
		}
	}

	outcome := h.Run(func(h *sections.Harness[D], ev sections.Event) bool {
		rec := Record{Key: key, RunID: runID, Event: ev}
		for _, sink := range s.sinks {
			if err := sink.HandleSection(ctx, rec); err != nil {
				monitoring.Diagf("%s: sink: %v", key, err)
			}
		}
		stats := h.Stats()
		s.update(key, func(st *DeviceStatus) {
			st.LastSection = ev.Time
			st.Stats = stats
		})
		return ctx.Err() == nil
	})

	stats := h.Stats()
	var lastErr string
	if err := h.Err(); err != nil {
		lastErr = err.Error()
	}
	s.update(key, func(st *DeviceStatus) {
		st.Open = false
		st.LastOutcome = outcome
		st.Stats = stats
		if lastErr != "" {
			st.LastError = lastErr
		}
	})

	ended := s.opts.clock.Now()
	for _, sink := range s.sinks {
		if obs, ok := sink.(RunObserver); ok {
			if err := obs.RunEnded(context.WithoutCancel(ctx), key, runID, ended, outcome, stats); err != nil {
				monitoring.Opsf("%s: run end not recorded: %v", key, err)
			}
		}
	}
	monitoring.Opsf("%s: run %s ended: %s", key, runID, outcome)
	return outcome
}
