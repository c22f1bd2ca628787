package serial

import (
	"io"
)

// Port is the byte stream to the bridge firmware.
// Implementations:
// - Native serial (github.com/tarm/serial)
// - net.Pipe or similar in tests
type Port interface {
	io.ReadWriteCloser

	// Flush discards data not yet transmitted or read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it, real UARTs need it to match the firmware.
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the settings used by the RP2040 bridge firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}

// applyDefaults fills zero fields from DefaultConfig
func (c *Config) applyDefaults() {
	def := DefaultConfig(c.Device)
	if c.Baud == 0 {
		c.Baud = def.Baud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
}
