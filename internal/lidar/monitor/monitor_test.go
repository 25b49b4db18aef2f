package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/supervisor"
)

var t0 = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func record(key, run string, sector uint8, points ...sections.Point) supervisor.Record {
	return supervisor.Record{
		Key:   key,
		RunID: run,
		Event: sections.Event{Time: t0.Add(time.Duration(sector) * time.Millisecond), Section: sections.Section{Sector: sector, Points: points}},
	}
}

func TestMonitor_LatestPerSector(t *testing.T) {
	m := New(800)
	ctx := context.Background()
	m.HandleSection(ctx, record("b", "r1", 0, sections.Point{Len: 10, Dir: 10}))
	m.HandleSection(ctx, record("a", "r1", 2, sections.Point{Len: 20, Dir: 250}))
	m.HandleSection(ctx, record("a", "r1", 2, sections.Point{Len: 30, Dir: 260}, sections.Point{Len: 50, Dir: 270}))

	if diff := cmp.Diff([]string{"a", "b"}, m.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	sw, ok := m.Snapshot("a")
	if !ok {
		t.Fatal("Snapshot(a) missing")
	}
	if !sw.Filled[2] || sw.Filled[0] {
		t.Errorf("Filled = %v", sw.Filled)
	}
	want := []sections.Point{{Len: 30, Dir: 260}, {Len: 50, Dir: 270}}
	if diff := cmp.Diff(want, sw.Points()); diff != "" {
		t.Errorf("Points() mismatch (-want +got):\n%s", diff)
	}
	if sw.Summaries[2].MaxLen != 50 || sw.Summaries[2].Count != 2 {
		t.Errorf("summary = %+v", sw.Summaries[2])
	}

	if first, _ := m.Snapshot(""); first.Key != "a" {
		t.Errorf("Snapshot(\"\") picked %q, want a", first.Key)
	}
}

func TestMonitor_NewRunResetsSweep(t *testing.T) {
	m := New(800)
	ctx := context.Background()
	m.HandleSection(ctx, record("a", "r1", 1, sections.Point{Len: 1, Dir: 150}))
	m.HandleSection(ctx, record("a", "r2", 3, sections.Point{Len: 2, Dir: 350}))

	sw, _ := m.Snapshot("a")
	if sw.RunID != "r2" || sw.Filled[1] || !sw.Filled[3] {
		t.Errorf("sweep after new run = %+v", sw)
	}
}

func TestMonitor_XY(t *testing.T) {
	m := New(36000)
	tests := []struct {
		p    sections.Point
		x, y float64
	}{
		{sections.Point{Len: 100, Dir: 0}, 100, 0},
		{sections.Point{Len: 100, Dir: 9000}, 0, 100},
		{sections.Point{Len: 50, Dir: 18000}, -50, 0},
	}
	for _, tt := range tests {
		x, y := m.XY(tt.p)
		if math.Abs(x-tt.x) > 1e-9 || math.Abs(y-tt.y) > 1e-9 {
			t.Errorf("XY(%+v) = (%v, %v), want (%v, %v)", tt.p, x, y, tt.x, tt.y)
		}
	}
}

func TestSectionStats(t *testing.T) {
	ss := NewSectionStats()
	ss.AddSection(3)
	ss.AddSection(0)

	time.Sleep(time.Millisecond)
	ss.LogStats()
	snap := ss.GetLatestSnapshot()
	if snap == nil {
		t.Fatal("no snapshot after LogStats")
	}
	if snap.EmptySections != 1 || snap.SectionsPerSec <= 0 {
		t.Errorf("snapshot = %+v", snap)
	}

	secs, points, empty, _ := ss.GetAndReset()
	if secs != 0 || points != 0 || empty != 0 {
		t.Errorf("counters not reset: %d %d %d", secs, points, empty)
	}
}

func TestFormatWithCommas(t *testing.T) {
	tests := map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"}
	for n, want := range tests {
		if got := FormatWithCommas(n); got != want {
			t.Errorf("FormatWithCommas(%d) = %q, want %q", n, got, want)
		}
	}
}

func serve(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestAttachRoutes(t *testing.T) {
	m := New(800)
	mux := http.NewServeMux()
	m.AttachRoutes(mux, func() any { return []string{"lidar0"} })

	if w := serve(mux, "/debug/sweep"); w.Code != http.StatusNotFound {
		t.Errorf("empty monitor sweep: status %d, want 404", w.Code)
	}

	m.HandleSection(context.Background(), record("lidar0", "r1", 0,
		sections.Point{Len: 100, Dir: 10}, sections.Point{Len: 120, Dir: 60}))

	w := serve(mux, "/debug/sweep?key=lidar0")
	if w.Code != http.StatusOK {
		t.Fatalf("sweep: status %d", w.Code)
	}
	var sw Sweep
	if err := json.Unmarshal(w.Body.Bytes(), &sw); err != nil {
		t.Fatalf("decode sweep: %v", err)
	}
	if len(sw.Sections[0].Points) != 2 {
		t.Errorf("decoded sweep has %d points in sector 0", len(sw.Sections[0].Points))
	}

	w = serve(mux, "/debug/sweep-polar?key=lidar0")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "echarts") {
		t.Errorf("sweep-polar: status %d", w.Code)
	}

	w = serve(mux, "/debug/sweep.png?key=lidar0")
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("sweep.png: status %d, content type %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = serve(mux, "/debug/devices")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "lidar0") {
		t.Errorf("devices: status %d body %q", w.Code, w.Body.String())
	}

	if w := serve(mux, "/debug/section-stats"); w.Code != http.StatusOK {
		t.Errorf("section-stats: status %d", w.Code)
	}
}
