package network

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

// ErrReplayDone is returned by ReplayDriver.Receive at the end of the capture.
var ErrReplayDone = errors.New("end of capture")

// ReplayDriver feeds datagrams from a capture file through the same decoder
// as the live Driver.
type ReplayDriver struct {
	file     string
	reader   PCAPReader
	queue    pointQueue
	captured time.Time
	stats    PacketStats
}

// Receive reads the next UDP payload from the capture.
func (d *ReplayDriver) Receive() error {
	pkt, err := d.reader.NextPacket()
	if errors.Is(err, io.EOF) {
		monitoring.Diagf("%s: replay complete (%d datagrams, %d points)", d.file, d.stats.Datagrams, d.stats.Points)
		return fmt.Errorf("%s: %w", d.file, ErrReplayDone)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", d.file, err)
	}
	d.captured = pkt.Timestamp
	added, dropped := d.queue.appendPayload(pkt.Data)
	d.stats.Datagrams++
	d.stats.Bytes += int64(len(pkt.Data))
	d.stats.Points += int64(added)
	d.stats.TrailingBytes += int64(dropped)
	return nil
}

// Parse pops the next decoded point.
func (d *ReplayDriver) Parse() (sections.Point, bool) { return d.queue.pop() }

// CaptureTime returns the capture timestamp of the last datagram read.
func (d *ReplayDriver) CaptureTime() time.Time { return d.captured }

// Stats returns the datagram counters.
func (d *ReplayDriver) Stats() PacketStats { return d.stats }

// Close closes the capture file.
func (d *ReplayDriver) Close() error {
	d.reader.Close()
	return nil
}

// ReplayModel opens capture files. Keys are file paths.
type ReplayModel struct {
	Files []string

	// UDPPort restricts the replay to one destination port when non-zero.
	UDPPort int

	// NewReader overrides the capture reader; nil uses libpcap when built
	// with the pcap tag.
	NewReader func() PCAPReader
}

var _ sections.Model[*ReplayDriver] = ReplayModel{}

// Keys returns the configured capture files.
func (m ReplayModel) Keys() []string { return m.Files }

func (ReplayModel) OpenTimeout() time.Duration  { return time.Second }
func (ReplayModel) ParseTimeout() time.Duration { return 500 * time.Millisecond }
func (ReplayModel) MaxDir() uint16              { return MaxDir }

// Open opens the capture file at key.
func (m ReplayModel) Open(key string) (*ReplayDriver, error) {
	newReader := m.NewReader
	if newReader == nil {
		newReader = newPCAPReader
	}
	r := newReader()
	if err := r.Open(key); err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", key, err)
	}
	if m.UDPPort > 0 {
		filter := fmt.Sprintf("udp port %d", m.UDPPort)
		if err := r.SetBPFFilter(filter); err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
		}
		monitoring.Diagf("PCAP BPF filter set: %s", filter)
	}
	return &ReplayDriver{file: key, reader: r}, nil
}
