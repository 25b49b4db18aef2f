package sections

// SectorCount is the number of fixed angular sectors in one revolution.
const SectorCount = 8

// Point is one raw range reading. Dir is in device units, MaxDir units per
// revolution. A zero Len means there is no valid reading at Dir.
type Point struct {
	Len uint16 `json:"len"`
	Dir uint16 `json:"dir"`
}

// Valid reports whether p carries a reading.
func (p Point) Valid() bool { return p.Len != 0 }

// Section is the ordered set of valid points observed while the device was
// inside one sector. Points may be empty.
type Section struct {
	Sector uint8   `json:"sector"`
	Points []Point `json:"points"`
}

// Filter decides whether a valid point is kept. Rejected points are demoted
// to Len 0 rather than dropped, so they still mark sector boundaries.
// Filters must be pure and cheap: they run on the polling goroutine.
type Filter func(Point) bool

// AcceptAll is the default Filter.
func AcceptAll(Point) bool { return true }

// LengthWindow accepts points with min <= Len <= max. A zero max means no
// upper bound.
func LengthWindow(min, max uint16) Filter {
	return func(p Point) bool {
		if p.Len < min {
			return false
		}
		return max == 0 || p.Len <= max
	}
}

// DirWindow accepts points with from <= Dir < to. When from > to the window
// wraps through zero.
func DirWindow(from, to uint16) Filter {
	if from <= to {
		return func(p Point) bool { return p.Dir >= from && p.Dir < to }
	}
	return func(p Point) bool { return p.Dir >= from || p.Dir < to }
}

// All accepts a point only if every filter accepts it. Nil filters are
// skipped.
func All(filters ...Filter) Filter {
	active := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return AcceptAll
	}
	return func(p Point) bool {
		for _, f := range active {
			if !f(p) {
				return false
			}
		}
		return true
	}
}
