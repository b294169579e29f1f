package serialsrc

import (
	"io"
	"time"
)

// Porter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real detector hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// PortMode defines serial port configuration parameters.
type PortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultPortMode returns the default mode for POI detector units.
func DefaultPortMode() *PortMode {
	return &PortMode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// PortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type PortFactory interface {
	// Open opens a serial port at the specified path with the given mode.
	Open(path string, mode *PortMode) (Porter, error)
}

// PortOpener is a function type for opening serial ports.
// This allows for easier testing by replacing the opener function.
type PortOpener func(path string, mode *PortMode) (Porter, error)

// TimeoutPorter extends Porter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutPorter interface {
	Porter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}
