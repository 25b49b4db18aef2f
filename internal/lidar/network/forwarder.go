package network

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

// PacketForwarder copies received datagrams to another address, for example
// a desktop viewer, without blocking the receive path.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	logInterval time.Duration
	address     string
	dropped     atomic.Int64
	forwarded   atomic.Int64
}

// NewPacketForwarder dials address over UDP.
func NewPacketForwarder(address string, logInterval time.Duration) (*PacketForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return newPacketForwarder(conn, address, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, logInterval time.Duration) *PacketForwarder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		logInterval: logInterval,
		address:     address,
	}
}

// Start runs the forwarding goroutine until ctx is done.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet := <-f.channel:
				if _, err := f.conn.Write(packet); err != nil {
					failed++
					lastError = err
					continue
				}
				f.forwarded.Add(1)
			case <-ticker.C:
				if failed > 0 {
					monitoring.Opsf("dropped %d forwarded packets to %s (latest: %v)", failed, f.address, lastError)
					failed = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Opsf("forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet. When the queue is full the packet is
// dropped.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns the number of packets dropped because the queue was full.
func (f *PacketForwarder) Dropped() int64 { return f.dropped.Load() }

// Forwarded returns the number of packets written.
func (f *PacketForwarder) Forwarded() int64 { return f.forwarded.Load() }

// Close closes the connection. Start's goroutine exits with its context.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}
