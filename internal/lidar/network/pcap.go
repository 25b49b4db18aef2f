//go:build pcap
// +build pcap

package network

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// gopacketReader reads UDP payloads with libpcap. Only available when
// building with the 'pcap' build tag.
type gopacketReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

func newPCAPReader() PCAPReader { return &gopacketReader{} }

func (r *gopacketReader) Open(filename string) error {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return err
	}
	r.handle = handle
	r.source = gopacket.NewPacketSource(handle, handle.LinkType())
	return nil
}

func (r *gopacketReader) SetBPFFilter(filter string) error {
	if r.handle == nil {
		return errors.New("pcap reader not open")
	}
	return r.handle.SetBPFFilter(filter)
}

// NextPacket skips packets without a UDP payload.
func (r *gopacketReader) NextPacket() (*PCAPPacket, error) {
	for {
		packet, err := r.source.NextPacket()
		if err != nil {
			return nil, err
		}
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		return &PCAPPacket{Data: udp.Payload, Timestamp: packet.Metadata().Timestamp}, nil
	}
}

func (r *gopacketReader) Close() {
	if r.handle != nil {
		r.handle.Close()
	}
}
