// Package pio tracks the PIO instruction memory used by the SPI programs of
// piolib, so that reconfiguring a PIO bus reuses its slots instead of
// loading another copy.
package pio

import (
	"errors"

	"spibus/core"
)

// InstructionSlots is the size of one PIO block's instruction memory
const InstructionSlots = 32

// Lengths of the relocatable programs piolib.NewSPI loads
const (
	cpha0Len = 2
	cpha1Len = 3
)

var (
	ErrModeUnsupported   = errors.New("pio spi: only modes 0 and 1 are supported")
	ErrLSBFirst          = errors.New("pio spi: LSB first is not supported")
	ErrOutOfProgramSpace = errors.New("pio spi: out of program space")
)

// Memory is the part of a PIO block the loader uses. *pio.PIO from
// github.com/tinygo-org/pio/rp2-pio implements it.
type Memory interface {
	CanAddProgramAtOffset(instructions []uint16, origin int8, offset uint8) bool
	ClearProgramSection(offset, len uint8)
}

// ProgramLen returns the number of instructions piolib loads for config.
// The PIO program shifts MSB first and has no CPOL=1 variant.
func ProgramLen(config core.SPIConfig) (uint8, error) {
	if config.BitOrder == core.LSBFirst {
		return 0, ErrLSBFirst
	}
	switch config.Mode {
	case core.Mode0:
		return cpha0Len, nil
	case core.Mode1:
		return cpha1Len, nil
	}
	return 0, ErrModeUnsupported
}

// NextOffset returns the offset AddProgram picks for a relocatable program
// of n instructions: the highest offset where free reports room.
func NextOffset(n uint8, free func(offset uint8) bool) (uint8, bool) {
	if n == 0 || n > InstructionSlots {
		return 0, false
	}
	for off := int(InstructionSlots - n); off >= 0; off-- {
		if free(uint8(off)) {
			return uint8(off), true
		}
	}
	return 0, false
}

// Slot is a loaded program section
type Slot struct {
	Offset uint8
	Len    uint8
}

// Loader keeps at most one SPI program loaded for one state machine
type Loader struct {
	mem    Memory
	slot   Slot
	loaded bool
}

// NewLoader creates a loader for programs in mem
func NewLoader(mem Memory) *Loader {
	return &Loader{mem: mem}
}

// Load frees the section of the previous program, then calls load, which
// must add exactly one SPI program for config the way piolib.NewSPI does.
// The section it lands in is recorded for the next Load or Release.
func (l *Loader) Load(config core.SPIConfig, load func() error) error {
	n, err := ProgramLen(config)
	if err != nil {
		return err
	}
	l.Release()

	shape := make([]uint16, n)
	off, ok := NextOffset(n, func(offset uint8) bool {
		return l.mem.CanAddProgramAtOffset(shape, -1, offset)
	})
	if !ok {
		return ErrOutOfProgramSpace
	}
	if err := load(); err != nil {
		return err
	}
	l.slot = Slot{Offset: off, Len: n}
	l.loaded = true
	return nil
}

// Release clears the loaded program, if any
func (l *Loader) Release() {
	if !l.loaded {
		return
	}
	l.mem.ClearProgramSection(l.slot.Offset, l.slot.Len)
	l.slot = Slot{}
	l.loaded = false
}

// Loaded returns the current section and whether a program is loaded
func (l *Loader) Loaded() (Slot, bool) {
	return l.slot, l.loaded
}
