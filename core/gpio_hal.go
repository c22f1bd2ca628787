package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that SPI devices use for chip select
// and for bit-banged buses. Platform-specific implementations handle the pins.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// SetPin drives the pin high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin level
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin level, ignoring errors.
	// Used on the bit-bang fast path.
	ReadPin(pin GPIOPin) bool
}

// OptionalPin is a GPIO pin that may be absent, e.g. the data-out line of a
// read-only bus.
type OptionalPin struct {
	Pin   GPIOPin
	Valid bool
}

// NoPin marks an unused data line.
var NoPin = OptionalPin{}

// PinOf returns a present OptionalPin.
func PinOf(pin GPIOPin) OptionalPin {
	return OptionalPin{Pin: pin, Valid: true}
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
