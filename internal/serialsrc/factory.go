package serialsrc

import (
	"go.bug.st/serial"
)

// NewRealMux creates a Mux instance backed by a real serial port at the given
// path using the provided serial options.
func NewRealMux(path string, opts PortOptions) (*Mux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewMux[serial.Port](port), nil
}

// RealPortFactory implements PortFactory using go.bug.st/serial devices.
type RealPortFactory struct{}

// NewRealPortFactory creates a factory that opens real serial ports.
func NewRealPortFactory() *RealPortFactory {
	return &RealPortFactory{}
}

// Open opens the serial device at path. A nil mode uses DefaultPortMode.
func (f *RealPortFactory) Open(path string, mode *PortMode) (Porter, error) {
	if mode == nil {
		mode = DefaultPortMode()
	}

	serialMode := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   convertParity(mode.Parity),
		StopBits: convertStopBits(mode.StopBits),
	}

	return serial.Open(path, serialMode)
}

func convertParity(p Parity) serial.Parity {
	switch p {
	case OddParity:
		return serial.OddParity
	case EvenParity:
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func convertStopBits(s StopBits) serial.StopBits {
	if s == TwoStopBits {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
