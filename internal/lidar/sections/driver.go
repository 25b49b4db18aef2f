package sections

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when a Model declines to open a key.
var ErrDeviceUnavailable = errors.New("lidar device unavailable")

// Driver is a live handle to one device.
type Driver interface {
	// Receive pulls more raw bytes into the driver's buffer. It may block
	// for a device-defined time. A nil error means the device is alive,
	// even if nothing new arrived; any error means the device is gone.
	Receive() error

	// Parse decodes one point from the buffer. ok is false when the buffer
	// holds no complete point, which is not an error.
	Parse() (p Point, ok bool)

	// Close releases the device.
	Close() error
}

// Model describes one device family: how to find devices, how to open them,
// and the fixed parameters every device of the family shares.
type Model[D Driver] interface {
	// Keys lists the identifiers of the devices currently present.
	Keys() []string

	// OpenTimeout bounds how long Open may take before the caller gives up.
	OpenTimeout() time.Duration

	// ParseTimeout bounds how long raw data may arrive without a point
	// being decoded before the device is considered stalled.
	ParseTimeout() time.Duration

	// MaxDir is the number of direction units in one revolution.
	MaxDir() uint16

	// Open returns a live handle for key.
	Open(key string) (D, error)
}
