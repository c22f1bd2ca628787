//go:build rp2040

package main

import (
	"machine"

	"spibus/core"
	pioprog "spibus/targets/pio"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// pioPort runs an SPI master program on a PIO state machine. It frees the
// controllers for other uses and reaches pins they cannot. The program only
// supports modes 0 and 1, MSB first.
type pioPort struct {
	bus    spiBusConfig
	sm     pio.StateMachine
	claim  bool
	loader *pioprog.Loader
	spi    *piolib.SPI
}

func (p *pioPort) block() *pio.PIO {
	if p.bus.pio == 0 {
		return pio.PIO0
	}
	return pio.PIO1
}

// configure claims a state machine on first use and loads the program with
// the requested settings. Reconfiguring stops the state machine and replaces
// the previous program in place.
func (p *pioPort) configure(config core.SPIConfig) error {
	cfg, err := toMachineConfig(p.bus, config)
	if err != nil {
		return err
	}
	if _, err := pioprog.ProgramLen(config); err != nil {
		return err
	}
	if !p.claim {
		sm, err := p.block().ClaimStateMachine()
		if err != nil {
			return err
		}
		p.sm = sm
		p.claim = true
		p.loader = pioprog.NewLoader(p.block())
	}
	if p.spi != nil {
		p.sm.SetEnabled(false)
		p.spi = nil
	}
	return p.loader.Load(config, func() error {
		spi, err := piolib.NewSPI(p.sm, cfg)
		if err != nil {
			return err
		}
		p.spi = spi
		return nil
	})
}

func (p *pioPort) tx(w, r []byte) error {
	if p.spi == nil {
		return errBadHandle
	}
	return p.spi.Tx(w, r)
}

func (p *pioPort) release() {
	if !p.claim {
		return
	}
	p.sm.SetEnabled(false)
	p.loader.Release()
	p.sm.Unclaim()
	p.claim = false
	p.spi = nil
	for _, pin := range []machine.Pin{p.bus.sck, p.bus.mosi, p.bus.miso} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}
