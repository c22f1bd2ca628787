package core

// SPIBusID identifies a hardware SPI bus configuration
type SPIBusID uint8

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

const (
	Mode0 SPIMode = 0
	Mode1 SPIMode = 1
	Mode2 SPIMode = 2
	Mode3 SPIMode = 3
)

// Valid reports whether m is one of the four standard modes
func (m SPIMode) Valid() bool {
	return m <= Mode3
}

// IdleHigh reports the clock idle level (CPOL)
func (m SPIMode) IdleHigh() bool {
	return m == Mode2 || m == Mode3
}

// BitOrder selects which end of each byte is shifted out first
type BitOrder uint8

const (
	MSBFirst BitOrder = 0
	LSBFirst BitOrder = 1
)

// DefaultRate is the bus frequency used when a hardware config leaves Rate at zero
const DefaultRate = 1000000

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	BusID    SPIBusID // Hardware bus identifier (ignored for software buses)
	Mode     SPIMode  // SPI mode (0-3)
	Rate     uint32   // Clock rate in Hz
	BitOrder BitOrder // Bit order within each byte
}

// DefaultSPIConfig returns 1MHz, MSB first, mode 0 on bus 0
func DefaultSPIConfig() SPIConfig {
	return SPIConfig{
		BusID:    0,
		Mode:     Mode0,
		Rate:     DefaultRate,
		BitOrder: MSBFirst,
	}
}

// SPIDriver is the abstract hardware SPI interface that core code uses.
// Platform-specific implementations own the peripheral. A bus handle may be
// shared by several devices; the driver decides what BeginTransaction locks.
type SPIDriver interface {
	// ConfigureBus sets up a hardware SPI bus with specified parameters
	// Returns an opaque bus handle and any error
	ConfigureBus(config SPIConfig) (interface{}, error)

	// ReleaseBus shuts the peripheral down and frees its pins
	ReleaseBus(busHandle interface{}) error

	// BeginTransaction applies config to the bus and claims it until
	// EndTransaction is called
	BeginTransaction(busHandle interface{}, config SPIConfig) error

	// EndTransaction releases a bus claimed by BeginTransaction
	EndTransaction(busHandle interface{}) error

	// Transfer performs a bidirectional SPI transfer
	// Sends txData and receives rxData simultaneously. txData and rxData
	// have the same length and may be the same slice.
	Transfer(busHandle interface{}, txData []byte, rxData []byte) error

	// GetBusInfo returns information about available SPI buses
	// Returns a map of bus IDs to human-readable descriptions
	GetBusInfo() map[SPIBusID]string
}

// Global singleton used by core code
var spiDriver SPIDriver

// SetSPIDriver is called by target-specific code to register its hardware SPI driver
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
}

// MustSPI returns the configured hardware SPI driver or panics if missing
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}
