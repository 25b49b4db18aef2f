package sections

const (
	minCapacityHint = 16
	maxCapacityHint = 1024
)

// Collector buckets a point stream into sectors of a fixed angular width and
// emits a sector's points when a point arrives from a different sector.
//
// Boundary detection uses Dir only, so demoted points (Len 0) still close a
// sector even though they are never stored.
type Collector struct {
	width   uint16
	current uint8
	buffer  []Point
}

// NewCollector returns a Collector for sectors width units wide. A zero width
// is treated as 1.
func NewCollector(width uint16) *Collector {
	if width == 0 {
		width = 1
	}
	return &Collector{
		width:  width,
		buffer: make([]Point, 0, capacityHint(width)),
	}
}

// NewCollectorForTurn returns a Collector splitting maxDir units into
// SectorCount sectors.
func NewCollectorForTurn(maxDir uint16) *Collector {
	return NewCollector(maxDir / SectorCount)
}

func capacityHint(width uint16) int {
	hint := int(width) / 8
	if hint < minCapacityHint {
		return minCapacityHint
	}
	if hint > maxCapacityHint {
		return maxCapacityHint
	}
	return hint
}

// Width returns the sector width in device units.
func (c *Collector) Width() uint16 { return c.width }

// Sector returns the sector currently being filled.
func (c *Collector) Sector() uint8 { return c.current }

// Pending returns the number of points buffered for the current sector.
func (c *Collector) Pending() int { return len(c.buffer) }

// Push adds p. When p belongs to a different sector than the one being
// filled, the finished sector is returned with ok set and p starts the new
// sector. The returned slice is never touched by the Collector again.
func (c *Collector) Push(p Point) (s Section, ok bool) {
	i := uint8(p.Dir / c.width)
	if i != c.current {
		s = Section{Sector: c.current, Points: c.buffer}
		ok = true

		// Keep the capacity the last sector needed.
		size := cap(c.buffer)
		if size < capacityHint(c.width) {
			size = capacityHint(c.width)
		}
		c.current = i
		c.buffer = make([]Point, 0, size)
	}
	if p.Valid() {
		c.buffer = append(c.buffer, p)
	}
	return s, ok
}
