package network

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

func TestReplayModel_Open(t *testing.T) {
	reader := NewMockPCAPReader(nil)
	m := ReplayModel{Files: []string{"sweep.pcap"}, UDPPort: 2369, NewReader: func() PCAPReader { return reader }}

	d, err := m.Open("sweep.pcap")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if reader.OpenedFile != "sweep.pcap" {
		t.Errorf("OpenedFile = %q", reader.OpenedFile)
	}
	if reader.AppliedFilter != "udp port 2369" {
		t.Errorf("AppliedFilter = %q", reader.AppliedFilter)
	}
}

func TestReplayModel_OpenErrors(t *testing.T) {
	tests := []struct {
		name       string
		reader     *MockPCAPReader
		port       int
		wantClosed bool
	}{
		{name: "open fails", reader: &MockPCAPReader{OpenError: errors.New("no such file")}},
		{name: "filter fails", reader: &MockPCAPReader{FilterError: errors.New("bad filter")}, port: 2369, wantClosed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ReplayModel{UDPPort: tt.port, NewReader: func() PCAPReader { return tt.reader }}
			_, err := sections.Open[*ReplayDriver](m, "sweep.pcap")
			if !errors.Is(err, sections.ErrDeviceUnavailable) {
				t.Errorf("Open() error = %v, want ErrDeviceUnavailable", err)
			}
			if tt.reader.Closed != tt.wantClosed {
				t.Errorf("Closed = %v, want %v", tt.reader.Closed, tt.wantClosed)
			}
		})
	}
}

func TestReplayDriver_Run(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var packets []PCAPPacket
	for i, payload := range sweepDatagrams(20, 40) {
		packets = append(packets, PCAPPacket{Data: payload, Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}
	reader := NewMockPCAPReader(packets)
	m := ReplayModel{NewReader: func() PCAPReader { return reader }}

	h, err := sections.Open[*ReplayDriver](m, "sweep.pcap")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	var sectors []uint8
	outcome := h.Run(func(_ *sections.Harness[*ReplayDriver], ev sections.Event) bool {
		sectors = append(sectors, ev.Section.Sector)
		return true
	})

	// The final sector has no following point to close it.
	if outcome != sections.ReceiveFailed {
		t.Fatalf("Run() = %v, want receive_failed", outcome)
	}
	if !errors.Is(h.Err(), ErrReplayDone) {
		t.Errorf("Err() = %v, want ErrReplayDone", h.Err())
	}
	if diff := cmp.Diff([]uint8{0, 1, 2, 3, 4, 5, 6}, sectors); diff != "" {
		t.Errorf("sectors mismatch (-want +got):\n%s", diff)
	}

	d := h.Device()
	if got, want := d.CaptureTime(), packets[len(packets)-1].Timestamp; !got.Equal(want) {
		t.Errorf("CaptureTime() = %v, want %v", got, want)
	}
	if st := d.Stats(); st.Datagrams != int64(len(packets)) || st.Points != 160 {
		t.Errorf("Stats() = %+v", st)
	}
}
