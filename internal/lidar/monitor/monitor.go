// Package monitor keeps the latest sweep of every device in memory and
// serves it on the debug mux as JSON, an ECharts scatter and a PNG plot.
package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/supervisor"
)

// Sweep is the most recent section of every sector of one device.
type Sweep struct {
	Key       string                                 `json:"key"`
	RunID     string                                 `json:"run_id"`
	Updated   time.Time                              `json:"updated"`
	Sections  [sections.SectorCount]sections.Section `json:"sections"`
	Summaries [sections.SectorCount]sections.Summary `json:"summaries"`
	Filled    [sections.SectorCount]bool             `json:"filled"`
}

// Points returns every point of the sweep in sector order.
func (s *Sweep) Points() []sections.Point {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Points)
	}
	out := make([]sections.Point, 0, n)
	for _, sec := range s.Sections {
		out = append(out, sec.Points...)
	}
	return out
}

// Monitor is a supervisor.Sink holding the latest sweep per device.
type Monitor struct {
	maxDir uint16
	stats  *SectionStats

	mu     sync.RWMutex
	sweeps map[string]*Sweep
}

var _ supervisor.Sink = (*Monitor)(nil)

// New creates a Monitor for devices reporting maxDir units per turn.
func New(maxDir uint16) *Monitor {
	if maxDir == 0 {
		maxDir = 1
	}
	return &Monitor{
		maxDir: maxDir,
		stats:  NewSectionStats(),
		sweeps: make(map[string]*Sweep),
	}
}

// HandleSection stores rec as the latest section of its sector.
func (m *Monitor) HandleSection(_ context.Context, rec supervisor.Record) error {
	sec := rec.Event.Section
	sum := sections.Summarise(sec)
	m.stats.AddSection(len(sec.Points))

	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.sweeps[rec.Key]
	if !ok || sw.RunID != rec.RunID {
		sw = &Sweep{Key: rec.Key, RunID: rec.RunID}
		m.sweeps[rec.Key] = sw
	}
	i := int(sec.Sector) % sections.SectorCount
	sw.Sections[i] = sec
	sw.Summaries[i] = sum
	sw.Filled[i] = true
	sw.Updated = rec.Event.Time
	return nil
}

// Keys returns the devices seen so far, sorted.
func (m *Monitor) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sweeps))
	for k := range m.sweeps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the latest sweep of key. An empty key picks
// the first device.
func (m *Monitor) Snapshot(key string) (Sweep, bool) {
	if key == "" {
		keys := m.Keys()
		if len(keys) == 0 {
			return Sweep{}, false
		}
		key = keys[0]
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sw, ok := m.sweeps[key]
	if !ok {
		return Sweep{}, false
	}
	// Section point slices are never written after emission, so a shallow
	// copy is a stable snapshot.
	return *sw, true
}

// Stats returns the rate counters.
func (m *Monitor) Stats() *SectionStats { return m.stats }

// XY converts p to cartesian coordinates in range units, with Dir 0 on
// the positive X axis.
func (m *Monitor) XY(p sections.Point) (x, y float64) {
	theta := float64(p.Dir) * 2 * math.Pi / float64(m.maxDir)
	return float64(p.Len) * math.Cos(theta), float64(p.Len) * math.Sin(theta)
}
