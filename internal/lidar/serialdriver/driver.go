// Package serialdriver reads LD06/LD19-class lidar sensors over a serial port.
package serialdriver

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

const (
	// DefaultReadTimeout bounds each Receive so a silent sensor shows up as
	// a stall instead of blocking forever.
	DefaultReadTimeout = 100 * time.Millisecond

	readChunk = 512
	// maxBuffered caps unparsed bytes kept while hunting for a header.
	maxBuffered = 64 * FrameSize
)

// ErrPortClosed is returned by Receive after Close.
var ErrPortClosed = errors.New("serial port closed")

// FrameStats counts decoder activity.
type FrameStats struct {
	Bytes       int64 `json:"bytes"`
	Frames      int64 `json:"frames"`
	BadChecksum int64 `json:"bad_checksum"`
	Skipped     int64 `json:"skipped"`
}

// Driver is one open sensor.
type Driver struct {
	path    string
	port    SerialPorter
	closed  bool
	scratch []byte
	buf     []byte

	pending [PointsPerFrame]sections.Point
	next    int
	npend   int

	speed uint16
	stats FrameStats
}

func newDriver(path string, port SerialPorter) *Driver {
	return &Driver{
		path:    path,
		port:    port,
		scratch: make([]byte, readChunk),
		buf:     make([]byte, 0, 4*FrameSize),
	}
}

// Receive reads whatever the port has, waiting at most the port's read
// timeout.
func (d *Driver) Receive() error {
	if d.closed {
		return ErrPortClosed
	}
	n, err := d.port.Read(d.scratch)
	if err != nil {
		return fmt.Errorf("read %s: %w", d.path, err)
	}
	if n == 0 {
		return nil
	}
	d.stats.Bytes += int64(n)
	if len(d.buf)+n > maxBuffered {
		drop := len(d.buf) + n - maxBuffered
		if drop > len(d.buf) {
			drop = len(d.buf)
		}
		d.stats.Skipped += int64(drop)
		d.buf = append(d.buf[:0], d.buf[drop:]...)
	}
	d.buf = append(d.buf, d.scratch[:n]...)
	return nil
}

// Parse returns the next buffered point, decoding a new frame when the
// previous one is used up.
func (d *Driver) Parse() (sections.Point, bool) {
	if d.next < d.npend {
		p := d.pending[d.next]
		d.next++
		return p, true
	}
	if !d.decodeNext() {
		return sections.Point{}, false
	}
	d.next = 1
	return d.pending[0], true
}

func (d *Driver) decodeNext() bool {
	off := 0
	defer func() {
		if off > 0 {
			d.buf = append(d.buf[:0], d.buf[off:]...)
		}
	}()

	for len(d.buf)-off >= FrameSize {
		if d.buf[off] != FrameHeader || d.buf[off+1] != FrameVerLen {
			off++
			d.stats.Skipped++
			continue
		}
		f, err := DecodeFrame(d.buf[off:])
		if err != nil {
			d.stats.BadChecksum++
			off++
			d.stats.Skipped++
			continue
		}
		off += FrameSize
		d.stats.Frames++
		d.speed = f.Speed
		d.pending = f.Points()
		d.npend = PointsPerFrame
		return true
	}
	return false
}

// Speed returns the motor speed reported by the last frame, in degrees per
// second.
func (d *Driver) Speed() uint16 { return d.speed }

// Stats returns the decoder counters.
func (d *Driver) Stats() FrameStats { return d.stats }

// Path returns the port the driver was opened on.
func (d *Driver) Path() string { return d.path }

// Close closes the port. Further Receive calls fail.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	monitoring.Diagf("%s: closing (frames=%d bad_checksum=%d skipped=%d)",
		d.path, d.stats.Frames, d.stats.BadChecksum, d.stats.Skipped)
	return d.port.Close()
}

// Model opens serial sensors. The zero value uses real ports and default
// options.
type Model struct {
	Options     PortOptions
	Factory     SerialPortFactory
	ReadTimeout time.Duration

	// Enumerate lists candidate ports; nil uses ListPorts.
	Enumerate func() ([]string, error)
}

var _ sections.Model[*Driver] = Model{}

// Keys lists the serial ports present on this host.
func (m Model) Keys() []string {
	enumerate := m.Enumerate
	if enumerate == nil {
		enumerate = ListPorts
	}
	ports, err := enumerate()
	if err != nil {
		monitoring.Opsf("serial port enumeration failed: %v", err)
		return nil
	}
	return ports
}

func (Model) OpenTimeout() time.Duration  { return 3 * time.Second }
func (Model) ParseTimeout() time.Duration { return time.Second }
func (Model) MaxDir() uint16              { return MaxDir }

// Open opens the port at key.
func (m Model) Open(key string) (*Driver, error) {
	factory := m.Factory
	if factory == nil {
		factory = NewRealSerialPortFactory()
	}
	port, err := factory.Open(key, m.Options)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	timeout := m.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", key, err)
		}
	} else {
		monitoring.Opsf("%s: port has no read timeout, a silent sensor will block", key)
	}

	monitoring.Diagf("%s: opened", key)
	return newDriver(key, port), nil
}
