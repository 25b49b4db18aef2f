package network

import (
	"encoding/binary"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

const (
	// MaxDir is the number of direction units per revolution in datagrams,
	// hundredths of a degree.
	MaxDir = 36000

	// PointSize is the encoded size of one point: dir then len, both
	// little-endian uint16.
	PointSize = 4

	// MaxDatagram is the largest payload read in one Receive.
	MaxDatagram = 2048
)

// DecodeDatagram appends the points in payload to dst. Trailing bytes that do
// not form a whole point are ignored and reported in dropped.
func DecodeDatagram(dst []sections.Point, payload []byte) (out []sections.Point, dropped int) {
	n := len(payload) / PointSize
	for i := 0; i < n; i++ {
		b := payload[i*PointSize:]
		dst = append(dst, sections.Point{
			Dir: binary.LittleEndian.Uint16(b),
			Len: binary.LittleEndian.Uint16(b[2:]),
		})
	}
	return dst, len(payload) - n*PointSize
}

// EncodeDatagram is the inverse of DecodeDatagram.
func EncodeDatagram(points []sections.Point) []byte {
	b := make([]byte, len(points)*PointSize)
	for i, p := range points {
		binary.LittleEndian.PutUint16(b[i*PointSize:], p.Dir)
		binary.LittleEndian.PutUint16(b[i*PointSize+2:], p.Len)
	}
	return b
}
