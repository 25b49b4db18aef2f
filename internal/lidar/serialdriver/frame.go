package serialdriver

import (
	"encoding/binary"
	"errors"

	"github.com/sigurn/crc8"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

// Frame layout, little endian:
//
//	0      header 0x54
//	1      ver/len 0x2C
//	2..3   motor speed, degrees per second
//	4..5   start angle, 0.01 degree
//	6..41  12 x (distance mm uint16, intensity uint8)
//	42..43 end angle, 0.01 degree
//	44..45 timestamp, ms
//	46     CRC-8 over bytes 0..45
const (
	FrameHeader    = 0x54
	FrameVerLen    = 0x2C
	FrameSize      = 47
	PointsPerFrame = 12

	// MaxDir is the number of angle units in one revolution.
	MaxDir = 36000

	pointOffset = 6
	pointSize   = 3
)

var (
	ErrShortFrame  = errors.New("frame too short")
	ErrBadHeader   = errors.New("bad frame header")
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

// Frame is one decoded sensor packet.
type Frame struct {
	Speed      uint16
	StartAngle uint16
	EndAngle   uint16
	Timestamp  uint16
	Distances  [PointsPerFrame]uint16
	Intensity  [PointsPerFrame]uint8
}

var crcTable = crc8.MakeTable(crc8.Params{
	Poly: 0x4D,
	Name: "CRC-8/LD06",
})

// Checksum returns the frame CRC-8 of b.
func Checksum(b []byte) uint8 { return crc8.Checksum(b, crcTable) }

// DecodeFrame decodes the first FrameSize bytes of b.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) < FrameSize {
		return f, ErrShortFrame
	}
	if b[0] != FrameHeader || b[1] != FrameVerLen {
		return f, ErrBadHeader
	}
	if Checksum(b[:FrameSize-1]) != b[FrameSize-1] {
		return f, ErrBadChecksum
	}

	f.Speed = binary.LittleEndian.Uint16(b[2:])
	f.StartAngle = binary.LittleEndian.Uint16(b[4:])
	for i := 0; i < PointsPerFrame; i++ {
		off := pointOffset + i*pointSize
		f.Distances[i] = binary.LittleEndian.Uint16(b[off:])
		f.Intensity[i] = b[off+2]
	}
	f.EndAngle = binary.LittleEndian.Uint16(b[42:])
	f.Timestamp = binary.LittleEndian.Uint16(b[44:])
	return f, nil
}

// EncodeFrame is the inverse of DecodeFrame. It is used by replay tooling and
// tests.
func EncodeFrame(f Frame) []byte {
	b := make([]byte, FrameSize)
	b[0] = FrameHeader
	b[1] = FrameVerLen
	binary.LittleEndian.PutUint16(b[2:], f.Speed)
	binary.LittleEndian.PutUint16(b[4:], f.StartAngle)
	for i := 0; i < PointsPerFrame; i++ {
		off := pointOffset + i*pointSize
		binary.LittleEndian.PutUint16(b[off:], f.Distances[i])
		b[off+2] = f.Intensity[i]
	}
	binary.LittleEndian.PutUint16(b[42:], f.EndAngle)
	binary.LittleEndian.PutUint16(b[44:], f.Timestamp)
	b[FrameSize-1] = Checksum(b[:FrameSize-1])
	return b
}

// Points spreads the frame's samples evenly between its start and end
// angles, wrapping at MaxDir.
func (f Frame) Points() [PointsPerFrame]sections.Point {
	span := (int(f.EndAngle) - int(f.StartAngle) + MaxDir) % MaxDir
	var out [PointsPerFrame]sections.Point
	for i := range out {
		dir := (int(f.StartAngle) + span*i/(PointsPerFrame-1)) % MaxDir
		out[i] = sections.Point{Len: f.Distances[i], Dir: uint16(dir)}
	}
	return out
}
