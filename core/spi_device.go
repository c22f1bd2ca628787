// SPI device handle
// A Device is bound to exactly one bus kind for its whole life: either a
// hardware peripheral reached through an SPIDriver, or GPIO pins that are
// bit-banged by the core itself.
package core

// BusKind tells which transfer path a Device uses
type BusKind uint8

const (
	BusHardware BusKind = iota // Hardware peripheral via SPIDriver
	BusSoftware                // Bit-banged GPIO pins
)

func (k BusKind) String() string {
	switch k {
	case BusHardware:
		return "hardware"
	case BusSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// spiBus is implemented by hardwareBus and softwareBus
type spiBus interface {
	kind() BusKind
	config() SPIConfig
	begin() error
	end() error
	beginTransaction() error
	endTransaction() error
	transfer(buf []byte) error
}

// SoftwarePins are the data and clock lines of a bit-banged bus.
// SDI or SDO may be NoPin for one-directional links.
type SoftwarePins struct {
	SCK GPIOPin     // Clock
	SDI OptionalPin // Serial data in (MISO)
	SDO OptionalPin // Serial data out (MOSI)
}

// Device is a single SPI slave: a chip select line plus the bus used to reach it.
// A Device is not safe for concurrent use.
type Device struct {
	cs           GPIOPin
	csActiveHigh bool
	csControl    bool
	begun        bool

	gpio GPIODriver // nil means the registered MustGPIO() driver
	bus  spiBus
}

// NewHardwareDevice creates a device whose transfers go through the hardware
// SPI driver. A zero config.Rate selects DefaultRate and a nil driver selects
// the one registered with SetSPIDriver. The driver is shared, not owned.
// An out-of-range mode is a programming error and panics.
func NewHardwareDevice(cs GPIOPin, config SPIConfig, driver SPIDriver) *Device {
	if !config.Mode.Valid() {
		panic("invalid SPI mode")
	}
	if config.Rate == 0 {
		config.Rate = DefaultRate
	}
	if driver == nil {
		driver = MustSPI()
	}
	return &Device{
		cs:        cs,
		csControl: true,
		bus:       &hardwareBus{driver: driver, cfg: config},
	}
}

// NewSoftwareDevice creates a device that bit-bangs pins. config.Rate only sets
// the delay between clock edges; zero or anything above 500kHz runs without
// delay. config.BusID is ignored.
// An out-of-range mode is a programming error and panics.
func NewSoftwareDevice(cs GPIOPin, pins SoftwarePins, config SPIConfig) *Device {
	if !config.Mode.Valid() {
		panic("invalid SPI mode")
	}
	return &Device{
		cs:        cs,
		csControl: true,
		bus:       &softwareBus{pins: pins, cfg: config},
	}
}

// SetGPIODriver makes the device use d instead of the global GPIO driver
func (d *Device) SetGPIODriver(io GPIODriver) {
	d.gpio = io
	if sw, ok := d.bus.(*softwareBus); ok {
		sw.gpio = io
	}
}

// SetDelayDriver makes a software device wait with w between clock edges.
// Hardware devices ignore it.
func (d *Device) SetDelayDriver(w DelayDriver) {
	if sw, ok := d.bus.(*softwareBus); ok {
		sw.delay = w
	}
}

func (d *Device) pins() GPIODriver {
	if d.gpio != nil {
		return d.gpio
	}
	return MustGPIO()
}

// Kind returns the bus kind chosen at construction
func (d *Device) Kind() BusKind {
	return d.bus.kind()
}

// Config returns the bus settings
func (d *Device) Config() SPIConfig {
	return d.bus.config()
}

// ChipSelect returns the chip select pin
func (d *Device) ChipSelect() GPIOPin {
	return d.cs
}

// Begun reports whether Begin has completed
func (d *Device) Begun() bool {
	return d.begun
}

// SetCSActiveHigh selects chip select polarity. Devices start active low.
func (d *Device) SetCSActiveHigh(activeHigh bool) {
	d.csActiveHigh = activeHigh
}

// DisableCSToggle stops the device from driving chip select so that
// another owner can hold it across several operations.
func (d *Device) DisableCSToggle() {
	d.csControl = false
}

// EnableCSToggle hands chip select back to the device
func (d *Device) EnableCSToggle() {
	d.csControl = true
}

// CSToggleEnabled reports whether operations drive chip select
func (d *Device) CSToggleEnabled() bool {
	return d.csControl
}

// Begin configures chip select as an inactive output and sets up the bus.
// Software buses park the clock at its idle level, drive data-out high and
// make data-in an input. Calling Begin again repeats the whole setup.
func (d *Device) Begin() error {
	DebugPrintln("[SPI] begin cs=" + utoa(uint32(d.cs)) + " bus=" + d.bus.kind().String())

	io := d.pins()
	if err := io.ConfigureOutput(d.cs); err != nil {
		return err
	}
	if err := io.SetPin(d.cs, !d.csActiveHigh); err != nil {
		return err
	}
	if err := d.bus.begin(); err != nil {
		return err
	}
	d.begun = true
	return nil
}

// End releases the hardware peripheral. Software buses own nothing to release.
func (d *Device) End() error {
	return d.bus.end()
}

// BeginTransaction claims the hardware bus with this device's settings.
// No-op for software buses.
func (d *Device) BeginTransaction() error {
	return d.bus.beginTransaction()
}

// EndTransaction releases a bus claimed by BeginTransaction.
// No-op for software buses.
func (d *Device) EndTransaction() error {
	return d.bus.endTransaction()
}

// assertCS drives chip select to its active level if the device controls it
func (d *Device) assertCS() error {
	if !d.csControl {
		return nil
	}
	return d.pins().SetPin(d.cs, d.csActiveHigh)
}

// deassertCS drives chip select to its inactive level if the device controls it
func (d *Device) deassertCS() error {
	if !d.csControl {
		return nil
	}
	return d.pins().SetPin(d.cs, !d.csActiveHigh)
}
