package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

// StatsSnapshot is one logging interval of section throughput.
type StatsSnapshot struct {
	SectionsPerSec float64   `json:"sections_per_sec"`
	PointsPerSec   float64   `json:"points_per_sec"`
	EmptySections  int64     `json:"empty_sections"`
	Timestamp      time.Time `json:"timestamp"`
}

// SectionStats counts sections and points with thread-safe operations.
type SectionStats struct {
	mu             sync.Mutex
	sectionCount   int64
	pointCount     int64
	emptyCount     int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewSectionStats creates a new SectionStats.
func NewSectionStats() *SectionStats {
	now := time.Now()
	return &SectionStats{
		lastReset: now,
		startTime: now,
	}
}

// AddSection counts one section of n points.
func (ss *SectionStats) AddSection(n int) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sectionCount++
	ss.pointCount += int64(n)
	if n == 0 {
		ss.emptyCount++
	}
}

// GetAndReset returns current counts and resets them.
func (ss *SectionStats) GetAndReset() (sections, points, empty int64, duration time.Duration) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ss.lastReset)
	sections, points, empty = ss.sectionCount, ss.pointCount, ss.emptyCount
	ss.sectionCount, ss.pointCount, ss.emptyCount = 0, 0, 0
	ss.lastReset = now
	return
}

// LogStats logs the rates since the last call and stores them for the web
// interface.
func (ss *SectionStats) LogStats() {
	sections, points, empty, duration := ss.GetAndReset()
	if sections == 0 || duration <= 0 {
		return
	}
	snap := &StatsSnapshot{
		SectionsPerSec: float64(sections) / duration.Seconds(),
		PointsPerSec:   float64(points) / duration.Seconds(),
		EmptySections:  empty,
		Timestamp:      time.Now(),
	}
	ss.mu.Lock()
	ss.latestSnapshot = snap
	ss.mu.Unlock()

	msg := fmt.Sprintf("section stats (/sec): %.1f sections, %s points",
		snap.SectionsPerSec, FormatWithCommas(int64(snap.PointsPerSec)))
	if empty > 0 {
		msg += fmt.Sprintf(", %d empty", empty)
	}
	monitoring.Diagf("%s", msg)
}

// Start logs stats every interval until ctx is done.
func (ss *SectionStats) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ss.LogStats()
			}
		}
	}()
}

// GetUptime returns the time since the stats were created.
func (ss *SectionStats) GetUptime() time.Duration {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return time.Since(ss.startTime)
}

// GetLatestSnapshot returns a copy of the most recent snapshot, or nil.
func (ss *SectionStats) GetLatestSnapshot() *StatsSnapshot {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.latestSnapshot == nil {
		return nil
	}
	snapshot := *ss.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
