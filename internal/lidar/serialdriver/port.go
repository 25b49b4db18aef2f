package serialdriver

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the minimal port surface the driver needs.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that can bound a Read.
// go.bug.st/serial ports return (0, nil) when the timeout expires.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory opens ports by path.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// RealSerialPortFactory opens ports with go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory creates a new RealSerialPortFactory.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the serial port at path.
func (f *RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// ListPorts enumerates serial ports on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
