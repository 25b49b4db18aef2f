package serialdriver

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

func openTestDriver(t *testing.T, port *TestableSerialPort) *Driver {
	t.Helper()
	m := Model{Factory: NewMockSerialPortFactory(port)}
	d, err := m.Open("/dev/ttyTEST0")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return d
}

func drain(d *Driver) []sections.Point {
	var out []sections.Point
	for {
		p, ok := d.Parse()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func TestModel_Open(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)
	m := Model{
		Options:     PortOptions{BaudRate: 115200},
		Factory:     factory,
		ReadTimeout: 20 * time.Millisecond,
	}

	d, err := m.Open("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if d.Path() != "/dev/ttyUSB0" {
		t.Errorf("Path() = %q", d.Path())
	}
	if port.ReadTimeout != 20*time.Millisecond {
		t.Errorf("read timeout = %v, want 20ms", port.ReadTimeout)
	}
	want := []MockOpenCall{{Path: "/dev/ttyUSB0", Opts: PortOptions{BaudRate: 115200}}}
	if diff := cmp.Diff(want, factory.OpenCalls); diff != "" {
		t.Errorf("open calls mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_OpenFailure(t *testing.T) {
	factory := NewMockSerialPortFactory(nil)
	factory.Error = errors.New("permission denied")

	_, err := sections.Open[*Driver](Model{Factory: factory}, "/dev/ttyUSB1")
	if !errors.Is(err, sections.ErrDeviceUnavailable) {
		t.Errorf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestModel_Parameters(t *testing.T) {
	m := Model{}
	if m.MaxDir() != 36000 {
		t.Errorf("MaxDir() = %d", m.MaxDir())
	}
	if m.ParseTimeout() != time.Second || m.OpenTimeout() != 3*time.Second {
		t.Errorf("timeouts = %v/%v", m.ParseTimeout(), m.OpenTimeout())
	}
}

func TestModel_Keys(t *testing.T) {
	m := Model{Enumerate: func() ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil
	}}
	if diff := cmp.Diff([]string{"/dev/ttyUSB0", "/dev/ttyACM0"}, m.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	m.Enumerate = func() ([]string, error) { return nil, errors.New("no udev") }
	if keys := m.Keys(); keys != nil {
		t.Errorf("Keys() = %v on enumeration error, want nil", keys)
	}
}

func TestDriver_ParseAcrossChunkedReads(t *testing.T) {
	port := NewTestableSerialPort()
	port.ChunkSize = 7
	port.AddReadData([]byte{0x00, 0x54, 0x13}) // line noise, including a lone header byte
	port.AddReadData(EncodeFrame(testFrame(0, 880, 100)))
	d := openTestDriver(t, port)

	var got []sections.Point
	for i := 0; i < 20; i++ {
		if err := d.Receive(); err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		got = append(got, drain(d)...)
	}

	if len(got) != PointsPerFrame {
		t.Fatalf("parsed %d points, want %d", len(got), PointsPerFrame)
	}
	if got[0] != (sections.Point{Len: 100, Dir: 0}) || got[11] != (sections.Point{Len: 111, Dir: 880}) {
		t.Errorf("points = %+v", got)
	}
	stats := d.Stats()
	if stats.Frames != 1 || stats.Skipped != 3 {
		t.Errorf("Stats() = %+v, want 1 frame and 3 skipped bytes", stats)
	}
	if d.Speed() != 3600 {
		t.Errorf("Speed() = %d, want 3600", d.Speed())
	}
}

func TestDriver_SkipsCorruptFrame(t *testing.T) {
	bad := EncodeFrame(testFrame(0, 880, 100))
	bad[20] ^= 0x01

	port := NewTestableSerialPort()
	port.AddReadData(bad)
	port.AddReadData(EncodeFrame(testFrame(900, 1780, 300)))
	d := openTestDriver(t, port)

	for i := 0; i < 4; i++ {
		if err := d.Receive(); err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
	}
	got := drain(d)
	if len(got) != PointsPerFrame || got[0].Dir != 900 {
		t.Fatalf("parsed %d points starting at %+v, want the second frame only", len(got), got)
	}
	if d.Stats().BadChecksum != 1 {
		t.Errorf("BadChecksum = %d, want 1", d.Stats().BadChecksum)
	}
}

func TestDriver_ReceiveErrors(t *testing.T) {
	port := NewTestableSerialPort()
	d := openTestDriver(t, port)

	if err := d.Receive(); err != nil {
		t.Fatalf("Receive() on quiet port error = %v, want nil", err)
	}

	unplugged := errors.New("device disconnected")
	port.SetReadError(unplugged)
	if err := d.Receive(); !errors.Is(err, unplugged) {
		t.Errorf("Receive() error = %v, want %v", err, unplugged)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.Closed {
		t.Error("Close() did not close the port")
	}
	if err := d.Receive(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Receive() after Close error = %v, want ErrPortClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDriver_HarnessSections(t *testing.T) {
	port := NewTestableSerialPort()
	// One revolution: 40 frames of 900 units, 5 frames per 4500-unit sector.
	for k := 0; k < 40; k++ {
		start := uint16(k * 900)
		port.AddReadData(EncodeFrame(testFrame(start, start+880, 1000)))
	}
	m := Model{Factory: NewMockSerialPortFactory(port)}
	h, err := sections.Open[*Driver](m, "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	var got []sections.Section
	outcome := h.Run(func(_ *sections.Harness[*Driver], ev sections.Event) bool {
		got = append(got, ev.Section)
		return ev.Section.Sector < 6
	})
	if outcome != sections.Stopped {
		t.Fatalf("Run() = %v, want stopped", outcome)
	}
	if len(got) != 7 {
		t.Fatalf("got %d sections, want 7", len(got))
	}
	for i, s := range got {
		if int(s.Sector) != i {
			t.Errorf("section %d has sector %d", i, s.Sector)
		}
		if len(s.Points) != 5*PointsPerFrame {
			t.Errorf("sector %d has %d points, want %d", s.Sector, len(s.Points), 5*PointsPerFrame)
		}
	}
}
