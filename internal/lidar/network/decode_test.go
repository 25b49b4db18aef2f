package network

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

func TestDatagramRoundTrip(t *testing.T) {
	points := []sections.Point{{Len: 1200, Dir: 0}, {Len: 0, Dir: 4500}, {Len: 65535, Dir: 35999}}
	payload := EncodeDatagram(points)
	if len(payload) != 3*PointSize {
		t.Fatalf("payload is %d bytes, want %d", len(payload), 3*PointSize)
	}

	got, dropped := DecodeDatagram(nil, payload)
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDatagram_TrailingBytes(t *testing.T) {
	payload := append(EncodeDatagram([]sections.Point{{Len: 7, Dir: 9}}), 0xAA, 0xBB, 0xCC)
	prefix := []sections.Point{{Len: 1, Dir: 1}}

	got, dropped := DecodeDatagram(prefix, payload)
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	want := []sections.Point{{Len: 1, Dir: 1}, {Len: 7, Dir: 9}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDatagram_LittleEndianLayout(t *testing.T) {
	got, _ := DecodeDatagram(nil, []byte{0x10, 0x27, 0x2C, 0x01})
	if want := (sections.Point{Dir: 10000, Len: 300}); got[0] != want {
		t.Errorf("decoded %+v, want %+v", got[0], want)
	}
}
