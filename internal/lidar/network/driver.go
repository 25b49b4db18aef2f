// Package network reads lidar points from UDP datagrams, live or replayed
// from a capture file.
package network

import (
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

const (
	// DefaultAddr is the listen address used when a Model has none.
	DefaultAddr = ":2369"

	// DefaultReadDeadline bounds each Receive.
	DefaultReadDeadline = 100 * time.Millisecond

	// DefaultRcvBuf is the socket receive buffer requested on open.
	DefaultRcvBuf = 4 << 20
)

// PacketStats counts datagram activity for one driver.
type PacketStats struct {
	Datagrams     int64 `json:"datagrams"`
	Bytes         int64 `json:"bytes"`
	Points        int64 `json:"points"`
	TrailingBytes int64 `json:"trailing_bytes"`
	Timeouts      int64 `json:"timeouts"`
}

// pointQueue holds decoded points waiting to be parsed.
type pointQueue struct {
	points []sections.Point
	head   int
}

func (q *pointQueue) pop() (sections.Point, bool) {
	if q.head >= len(q.points) {
		return sections.Point{}, false
	}
	p := q.points[q.head]
	q.head++
	return p, true
}

// appendPayload decodes payload onto the queue, reusing storage once the
// queue has been drained.
func (q *pointQueue) appendPayload(payload []byte) (added, dropped int) {
	if q.head >= len(q.points) {
		q.points = q.points[:0]
		q.head = 0
	}
	before := len(q.points)
	q.points, dropped = DecodeDatagram(q.points, payload)
	return len(q.points) - before, dropped
}

// Driver is one listening socket.
type Driver struct {
	addr      string
	sock      UDPSocket
	deadline  time.Duration
	buf       []byte
	queue     pointQueue
	forwarder *PacketForwarder
	stats     PacketStats
}

// Receive waits up to the read deadline for one datagram. A deadline expiry
// is not an error: the harness decides when silence becomes a stall.
func (d *Driver) Receive() error {
	if err := d.sock.SetReadDeadline(time.Now().Add(d.deadline)); err != nil {
		return fmt.Errorf("set read deadline on %s: %w", d.addr, err)
	}
	n, _, err := d.sock.ReadFromUDP(d.buf)
	if err != nil {
		if isTimeout(err) {
			d.stats.Timeouts++
			return nil
		}
		return fmt.Errorf("read %s: %w", d.addr, err)
	}

	payload := d.buf[:n]
	if d.forwarder != nil {
		d.forwarder.ForwardAsync(payload)
	}
	added, dropped := d.queue.appendPayload(payload)
	d.stats.Datagrams++
	d.stats.Bytes += int64(n)
	d.stats.Points += int64(added)
	d.stats.TrailingBytes += int64(dropped)
	return nil
}

// Parse pops the next decoded point.
func (d *Driver) Parse() (sections.Point, bool) { return d.queue.pop() }

// Stats returns the datagram counters.
func (d *Driver) Stats() PacketStats { return d.stats }

// Addr returns the listen address.
func (d *Driver) Addr() string { return d.addr }

// Close closes the socket.
func (d *Driver) Close() error {
	monitoring.Diagf("%s: closing (datagrams=%d points=%d trailing_bytes=%d)",
		d.addr, d.stats.Datagrams, d.stats.Points, d.stats.TrailingBytes)
	return d.sock.Close()
}

// Model listens for point datagrams. Keys are listen addresses.
type Model struct {
	Addrs        []string
	RcvBuf       int
	ReadDeadline time.Duration
	Factory      UDPSocketFactory
	Forwarder    *PacketForwarder
}

var _ sections.Model[*Driver] = Model{}

// Keys returns the configured listen addresses.
func (m Model) Keys() []string {
	if len(m.Addrs) == 0 {
		return []string{DefaultAddr}
	}
	return m.Addrs
}

func (Model) OpenTimeout() time.Duration  { return time.Second }
func (Model) ParseTimeout() time.Duration { return 500 * time.Millisecond }
func (Model) MaxDir() uint16              { return MaxDir }

// Open binds the address in key.
func (m Model) Open(key string) (*Driver, error) {
	laddr, err := net.ResolveUDPAddr("udp", key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %q: %w", key, err)
	}
	factory := m.Factory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	sock, err := factory.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", key, err)
	}

	rcvBuf := m.RcvBuf
	if rcvBuf <= 0 {
		rcvBuf = DefaultRcvBuf
	}
	if err := sock.SetReadBuffer(rcvBuf); err != nil {
		monitoring.Opsf("warning: failed to set UDP receive buffer size to %d: %v", rcvBuf, err)
	}

	deadline := m.ReadDeadline
	if deadline <= 0 {
		deadline = DefaultReadDeadline
	}
	monitoring.Diagf("UDP listener started on %s with receive buffer %d bytes", key, rcvBuf)
	return &Driver{
		addr:      key,
		sock:      sock,
		deadline:  deadline,
		buf:       make([]byte, MaxDatagram),
		forwarder: m.Forwarder,
	}, nil
}
