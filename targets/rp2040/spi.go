//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"

	"spibus/core"
)

var (
	errBadPin    = errors.New("invalid GPIO pin")
	errBadBus    = errors.New("invalid SPI bus ID")
	errBadHandle = errors.New("invalid SPI bus handle")
	errBadMode   = errors.New("invalid SPI mode")
)

// spiBusConfig names the controller and pins of one selectable bus.
// Matches Klipper's RP2040 SPI bus definitions.
type spiBusConfig struct {
	spi  *machine.SPI // nil for PIO buses
	pio  uint8        // PIO block for PIO buses
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
	name string
}

// Bus IDs 0-8 use the SPI controllers, 16-17 a PIO state machine
var rp2040SPIBuses = map[core.SPIBusID]spiBusConfig{
	// SPI0
	0: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0, name: "spi0a"},
	1: {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4, name: "spi0b"},
	2: {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, name: "spi0c"},
	3: {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20, name: "spi0d"},
	4: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4, name: "spi0e"},

	// SPI1
	5: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, name: "spi1a"},
	6: {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12, name: "spi1b"},
	7: {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24, name: "spi1c"},
	8: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12, name: "spi1d"},

	// PIO
	16: {pio: 0, sck: machine.GPIO13, mosi: machine.GPIO14, miso: machine.GPIO15, name: "pio0"},
	17: {pio: 1, sck: machine.GPIO20, mosi: machine.GPIO21, miso: machine.GPIO22, name: "pio1"},
}

// busPort is one configured bus, either a controller or a PIO program
type busPort interface {
	configure(config core.SPIConfig) error
	tx(w, r []byte) error
	release()
}

// spiInstance is the handle given to core. Several devices may hold the
// same instance; BeginTransaction serializes them.
type spiInstance struct {
	mu     sync.Mutex
	busID  core.SPIBusID
	port   busPort
	config core.SPIConfig // Settings currently programmed
	users  int
}

// RP2040SPIDriver implements core.SPIDriver for the SPI controllers and the
// PIO SPI program
type RP2040SPIDriver struct {
	mu    sync.Mutex
	buses map[core.SPIBusID]*spiInstance
}

// NewRP2040SPIDriver creates a new RP2040 SPI driver
func NewRP2040SPIDriver() *RP2040SPIDriver {
	return &RP2040SPIDriver{
		buses: make(map[core.SPIBusID]*spiInstance),
	}
}

// toMachineConfig translates core settings to machine.SPIConfig
func toMachineConfig(bus spiBusConfig, config core.SPIConfig) (machine.SPIConfig, error) {
	var mode uint8
	switch config.Mode {
	case core.Mode0:
		mode = machine.Mode0
	case core.Mode1:
		mode = machine.Mode1
	case core.Mode2:
		mode = machine.Mode2
	case core.Mode3:
		mode = machine.Mode3
	default:
		return machine.SPIConfig{}, errBadMode
	}
	return machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       bus.sck,
		SDO:       bus.mosi,
		SDI:       bus.miso,
		Mode:      mode,
		LSBFirst:  config.BitOrder == core.LSBFirst,
	}, nil
}

// ConfigureBus returns the shared instance for config.BusID, programming the
// peripheral on first use
func (d *RP2040SPIDriver) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if inst, exists := d.buses[config.BusID]; exists {
		inst.users++
		return inst, nil
	}

	busConfig, exists := rp2040SPIBuses[config.BusID]
	if !exists {
		return nil, errBadBus
	}

	var port busPort
	if busConfig.spi != nil {
		port = &controllerPort{bus: busConfig}
	} else {
		port = &pioPort{bus: busConfig}
	}
	if err := port.configure(config); err != nil {
		port.release()
		return nil, err
	}

	inst := &spiInstance{busID: config.BusID, port: port, config: config, users: 1}
	d.buses[config.BusID] = inst
	return inst, nil
}

// ReleaseBus drops one user and releases the pins with the last one
func (d *RP2040SPIDriver) ReleaseBus(busHandle interface{}) error {
	inst, ok := busHandle.(*spiInstance)
	if !ok {
		return errBadHandle
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	inst.users--
	if inst.users > 0 {
		return nil
	}
	inst.port.release()
	delete(d.buses, inst.busID)
	return nil
}

// BeginTransaction locks the bus and reprograms it when the device settings
// differ from the last user's
func (d *RP2040SPIDriver) BeginTransaction(busHandle interface{}, config core.SPIConfig) error {
	inst, ok := busHandle.(*spiInstance)
	if !ok {
		return errBadHandle
	}
	inst.mu.Lock()
	if inst.config.Mode == config.Mode && inst.config.Rate == config.Rate && inst.config.BitOrder == config.BitOrder {
		return nil
	}
	if err := inst.port.configure(config); err != nil {
		inst.mu.Unlock()
		return err
	}
	inst.config = config
	return nil
}

// EndTransaction unlocks the bus
func (d *RP2040SPIDriver) EndTransaction(busHandle interface{}) error {
	inst, ok := busHandle.(*spiInstance)
	if !ok {
		return errBadHandle
	}
	inst.mu.Unlock()
	return nil
}

// Transfer performs a bidirectional SPI transfer
func (d *RP2040SPIDriver) Transfer(busHandle interface{}, txData []byte, rxData []byte) error {
	inst, ok := busHandle.(*spiInstance)
	if !ok {
		return errBadHandle
	}
	if len(txData) != len(rxData) {
		return core.ErrLengthMismatch
	}
	return inst.port.tx(txData, rxData)
}

// GetBusInfo returns the names of the selectable buses
func (d *RP2040SPIDriver) GetBusInfo() map[core.SPIBusID]string {
	info := make(map[core.SPIBusID]string)
	for id, config := range rp2040SPIBuses {
		info[id] = config.name
	}
	return info
}

// controllerPort drives one of the two SPI controllers
type controllerPort struct {
	bus spiBusConfig
}

func (p *controllerPort) configure(config core.SPIConfig) error {
	cfg, err := toMachineConfig(p.bus, config)
	if err != nil {
		return err
	}
	return p.bus.spi.Configure(cfg)
}

// tx hands the whole buffer to machine.SPI.Tx, which allows w and r to alias
func (p *controllerPort) tx(w, r []byte) error {
	return p.bus.spi.Tx(w, r)
}

func (p *controllerPort) release() {
	for _, pin := range []machine.Pin{p.bus.sck, p.bus.mosi, p.bus.miso} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}
