package sections

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func pts(length uint16, dirs ...uint16) []Point {
	out := make([]Point, len(dirs))
	for i, d := range dirs {
		out[i] = Point{Len: length, Dir: d}
	}
	return out
}

func pushAll(c *Collector, points []Point) []Section {
	var got []Section
	for _, p := range points {
		if s, ok := c.Push(p); ok {
			got = append(got, s)
		}
	}
	return got
}

func TestCollector_BoundaryExactness(t *testing.T) {
	c := NewCollector(100)
	input := pts(10, 0, 0, 1, 1, 100, 100)

	for i, p := range input {
		s, ok := c.Push(p)
		if i != 4 {
			if ok {
				t.Fatalf("push %d (dir=%d) emitted sector %d, want nothing", i, p.Dir, s.Sector)
			}
			continue
		}
		if !ok {
			t.Fatalf("push %d (dir=%d) emitted nothing, want sector 0", i, p.Dir)
		}
		want := Section{Sector: 0, Points: input[:4]}
		if diff := cmp.Diff(want, s); diff != "" {
			t.Errorf("emitted section mismatch (-want +got):\n%s", diff)
		}
	}

	if c.Sector() != 1 {
		t.Errorf("Sector() = %d, want 1", c.Sector())
	}
	if c.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", c.Pending())
	}
}

func TestCollector_InvalidPointsMarkBoundaries(t *testing.T) {
	c := NewCollector(100)
	input := []Point{
		{Len: 5, Dir: 10},
		{Len: 0, Dir: 20},  // stays out of sector 0
		{Len: 0, Dir: 150}, // closes sector 0, not stored in sector 1
		{Len: 7, Dir: 160},
		{Len: 0, Dir: 250}, // closes sector 1
	}

	got := pushAll(c, input)
	want := []Section{
		{Sector: 0, Points: []Point{{Len: 5, Dir: 10}}},
		{Sector: 1, Points: []Point{{Len: 7, Dir: 160}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCollector_EmptySectionsStillEmitted(t *testing.T) {
	c := NewCollector(100)
	got := pushAll(c, pts(0, 50, 150, 250, 350))

	want := []Section{{Sector: 0}, {Sector: 1}, {Sector: 2}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_TransitionPointStartsNewSector(t *testing.T) {
	c := NewCollector(100)
	c.Push(Point{Len: 1, Dir: 0})
	s, ok := c.Push(Point{Len: 2, Dir: 100})
	if !ok {
		t.Fatal("expected transition")
	}
	if len(s.Points) != 1 || s.Points[0].Len != 1 {
		t.Errorf("emitted points = %v, want only the first point", s.Points)
	}
	s, ok = c.Push(Point{Len: 3, Dir: 200})
	if !ok {
		t.Fatal("expected second transition")
	}
	if diff := cmp.Diff([]Point{{Len: 2, Dir: 100}}, s.Points); diff != "" {
		t.Errorf("second section points mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_EmittedSnapshotIsIndependent(t *testing.T) {
	c := NewCollector(100)
	pushAll(c, pts(9, 0, 1, 2))
	s, ok := c.Push(Point{Len: 9, Dir: 100})
	if !ok {
		t.Fatal("expected transition")
	}
	snapshot := append([]Point(nil), s.Points...)

	// Fill the next sector well past the old capacity.
	for i := 0; i < 200; i++ {
		c.Push(Point{Len: 1, Dir: 101})
	}
	if diff := cmp.Diff(snapshot, s.Points); diff != "" {
		t.Errorf("emitted section changed after later pushes (-want +got):\n%s", diff)
	}
}

func TestCollector_WrapAround(t *testing.T) {
	c := NewCollectorForTurn(800)
	if c.Width() != 100 {
		t.Fatalf("Width() = %d, want 100", c.Width())
	}

	var stream []Point
	for rev := 0; rev < 2; rev++ {
		for dir := uint16(0); dir < 800; dir += 25 {
			stream = append(stream, Point{Len: 1, Dir: dir})
		}
	}
	stream = append(stream, Point{Len: 1, Dir: 0})

	got := pushAll(c, stream)
	if len(got) != 2*SectorCount {
		t.Fatalf("emitted %d sections, want %d", len(got), 2*SectorCount)
	}
	for i, s := range got {
		if want := uint8(i % SectorCount); s.Sector != want {
			t.Errorf("section %d sector = %d, want %d", i, s.Sector, want)
		}
		if len(s.Points) != 4 {
			t.Errorf("section %d has %d points, want 4", i, len(s.Points))
		}
	}
}

func TestCollector_ZeroWidth(t *testing.T) {
	c := NewCollectorForTurn(7)
	if c.Width() != 1 {
		t.Errorf("Width() = %d, want 1", c.Width())
	}
	if _, ok := c.Push(Point{Len: 1, Dir: 3}); !ok {
		t.Error("dir 3 with width 1 should leave sector 0")
	}
}

func TestCapacityHint(t *testing.T) {
	tests := []struct {
		width uint16
		want  int
	}{
		{1, minCapacityHint},
		{100, minCapacityHint},
		{4500, 562},
		{65535, maxCapacityHint},
	}
	for _, tt := range tests {
		if got := capacityHint(tt.width); got != tt.want {
			t.Errorf("capacityHint(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}
