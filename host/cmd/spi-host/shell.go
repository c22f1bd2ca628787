package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"spibus/core"
	"spibus/host/bridge"

	"github.com/google/shlex"
)

var errQuit = errors.New("quit")

// spiBridge is the part of *bridge.Bridge the shell uses
type spiBridge interface {
	ConfigSPI(oid uint8, cs core.GPIOPin, activeHigh bool) error
	SetBus(oid uint8, bus core.SPIBusID, mode core.SPIMode, rate uint32) error
	SetSoftwareBus(oid uint8, sw bridge.SoftwareBus) error
	SetCSToggle(oid uint8, enable bool) error
	ConfigShutdown(oid, spiOID uint8, msg []byte) error
	Transfer(oid uint8, data []byte) ([]byte, error)
	Send(oid uint8, data []byte) error
	Read(oid uint8, n int, fill byte) ([]byte, error)
	Dictionary() string
}

type shell struct {
	bridge spiBridge
	out    io.Writer
}

type shellCommand struct {
	usage string
	args  int // Minimum argument count
	run   func(sh *shell, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"config":   {"config <oid> <cs_pin> [active_high]", 2, (*shell).config},
		"bus":      {"bus <oid> <bus> <mode> <rate>", 4, (*shell).bus},
		"soft":     {"soft <oid> <miso|-> <mosi|-> <sclk> <mode> <rate> [lsb]", 6, (*shell).soft},
		"cs":       {"cs <oid> on|off", 2, (*shell).cs},
		"shutdown": {"shutdown <oid> <spi_oid> <hex>", 3, (*shell).shutdown},
		"xfer":     {"xfer <oid> <hex>...", 2, (*shell).xfer},
		"send":     {"send <oid> <hex>...", 2, (*shell).send},
		"read":     {"read <oid> <count> [fill]", 2, (*shell).read},
		"dict":     {"dict", 0, (*shell).dict},
		"help":     {"help", 0, (*shell).help},
	}
}

// exec runs one command line
func (sh *shell) exec(line string) error {
	fields, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "?":
		name = "help"
	}

	cmd, ok := shellCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (type 'help')", name)
	}
	if len(args) < cmd.args {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(sh, args)
}

// runScript runs ';' separated commands. It stops at the first error or
// at quit.
func (sh *shell) runScript(script string) error {
	for _, line := range strings.Split(script, ";") {
		err := sh.exec(line)
		if err == errQuit {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

func parseOID(s string) (uint8, error) {
	v, err := parseUint(s, 8)
	return uint8(v), err
}

// parsePin accepts a pin number or "-" for an unconnected line
func parsePin(s string) (core.OptionalPin, error) {
	if s == "-" {
		return core.NoPin, nil
	}
	v, err := parseUint(s, 32)
	if err != nil {
		return core.NoPin, err
	}
	return core.PinOf(core.GPIOPin(v)), nil
}

func parseMode(s string) (core.SPIMode, error) {
	v, err := parseUint(s, 8)
	if err != nil || !core.SPIMode(v).Valid() {
		return 0, fmt.Errorf("bad SPI mode %q", s)
	}
	return core.SPIMode(v), nil
}

// parseHex joins args and decodes them, so "a5 ff" and "a5ff" are the same
func parseHex(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(strings.TrimPrefix(a, "0x"))
	}
	data, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("bad hex data: %w", err)
	}
	return data, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "on", "true", "yes":
		return true, nil
	case "0", "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("bad boolean %q", s)
}

func (sh *shell) config(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	cs, err := parseUint(args[1], 32)
	if err != nil {
		return err
	}
	activeHigh := false
	if len(args) > 2 {
		if activeHigh, err = parseBool(args[2]); err != nil {
			return err
		}
	}
	return sh.bridge.ConfigSPI(oid, core.GPIOPin(cs), activeHigh)
}

func (sh *shell) bus(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	bus, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	mode, err := parseMode(args[2])
	if err != nil {
		return err
	}
	rate, err := parseUint(args[3], 32)
	if err != nil {
		return err
	}
	return sh.bridge.SetBus(oid, core.SPIBusID(bus), mode, uint32(rate))
}

func (sh *shell) soft(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	var sw bridge.SoftwareBus
	if sw.MISO, err = parsePin(args[1]); err != nil {
		return err
	}
	if sw.MOSI, err = parsePin(args[2]); err != nil {
		return err
	}
	sclk, err := parseUint(args[3], 32)
	if err != nil {
		return err
	}
	sw.SCLK = core.GPIOPin(sclk)
	if sw.Mode, err = parseMode(args[4]); err != nil {
		return err
	}
	rate, err := parseUint(args[5], 32)
	if err != nil {
		return err
	}
	sw.Rate = uint32(rate)
	if len(args) > 6 && args[6] == "lsb" {
		sw.BitOrder = core.LSBFirst
	}
	return sh.bridge.SetSoftwareBus(oid, sw)
}

func (sh *shell) cs(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	enable, err := parseBool(args[1])
	if err != nil {
		return err
	}
	return sh.bridge.SetCSToggle(oid, enable)
}

func (sh *shell) shutdown(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	spiOID, err := parseOID(args[1])
	if err != nil {
		return err
	}
	msg, err := parseHex(args[2:])
	if err != nil {
		return err
	}
	return sh.bridge.ConfigShutdown(oid, spiOID, msg)
}

func (sh *shell) xfer(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	data, err := parseHex(args[1:])
	if err != nil {
		return err
	}
	rx, err := sh.bridge.Transfer(oid, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "rx: % x\n", rx)
	return nil
}

func (sh *shell) send(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	data, err := parseHex(args[1:])
	if err != nil {
		return err
	}
	return sh.bridge.Send(oid, data)
}

func (sh *shell) read(args []string) error {
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	n, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	fill := uint64(core.DefaultFillValue)
	if len(args) > 2 {
		if fill, err = parseUint(args[2], 8); err != nil {
			return err
		}
	}
	rx, err := sh.bridge.Read(oid, int(n), byte(fill))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "rx: % x\n", rx)
	return nil
}

func (sh *shell) dict(args []string) error {
	_, err := io.WriteString(sh.out, sh.bridge.Dictionary())
	return err
}

func (sh *shell) help(args []string) error {
	fmt.Fprintln(sh.out, "Available commands:")
	for _, name := range []string{"config", "bus", "soft", "cs", "shutdown", "xfer", "send", "read", "dict", "help"} {
		fmt.Fprintf(sh.out, "  %s\n", shellCommands[name].usage)
	}
	fmt.Fprintln(sh.out, "  quit")
	return nil
}
