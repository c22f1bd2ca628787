// Package bridge drives SPI devices attached to the bridge firmware from a
// host computer.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"spibus/core"
	"spibus/protocol"

	"tinygo.org/x/drivers"
)

// DefaultResponseTimeout bounds the wait for spi_transfer_response
const DefaultResponseTimeout = time.Second

var (
	ErrTooLong     = errors.New("bridge: data exceeds one transfer block")
	ErrInvalidMode = errors.New("bridge: invalid SPI mode")
	ErrNoResponse  = errors.New("bridge: no response")
)

// SoftwareBus describes bit-banged pins on the firmware side. MISO or MOSI
// may be core.NoPin.
type SoftwareBus struct {
	MISO     core.OptionalPin
	MOSI     core.OptionalPin
	SCLK     core.GPIOPin
	Mode     core.SPIMode
	Rate     uint32 // Zero runs without delay
	BitOrder core.BitOrder
}

// Bridge is a client for the SPI commands of one firmware connection.
// Methods are safe for concurrent use; commands are serialized.
type Bridge struct {
	transport *protocol.HostTransport
	reg       *core.CommandRegistry
	respID    uint16

	mu      sync.Mutex
	timeout time.Duration
}

// New starts a bridge on port. The port is owned by the bridge and closed
// by Close.
func New(port io.ReadWriteCloser) *Bridge {
	reg := core.NewCommandRegistry()
	core.InitSPICommands(reg)
	resp, _ := reg.GetCommandByName("spi_transfer_response")

	return &Bridge{
		transport: protocol.NewHostTransport(port),
		reg:       reg,
		respID:    resp.ID,
		timeout:   DefaultResponseTimeout,
	}
}

// SetTimeout changes how long Transfer and Read wait for the reply.
// Replies carry no request tag, only the oid. A reply that arrives after its
// request timed out is dropped when the next request starts, but one that
// arrives while the next request on the same oid is waiting is taken as its
// answer. Pick a timeout well above the slowest transfer.
func (b *Bridge) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Close stops the transport and closes the port
func (b *Bridge) Close() error {
	return b.transport.Close()
}

// Dictionary returns the command set the bridge speaks, one line per command
func (b *Bridge) Dictionary() string {
	return b.reg.GetDictionary()
}

// send looks up name and sends it with args. Callers hold b.mu.
func (b *Bridge) send(name string, args func(output protocol.OutputBuffer)) error {
	cmd, ok := b.reg.GetCommandByName(name)
	if !ok {
		return fmt.Errorf("bridge: unknown command %s", name)
	}
	if err := b.transport.SendCommand(cmd.ID, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (b *Bridge) sendLocked(name string, args func(output protocol.OutputBuffer)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send(name, args)
}

func boolArg(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func pinArg(p core.OptionalPin) uint32 {
	if !p.Valid {
		return core.PinAbsent
	}
	return uint32(p.Pin)
}

// ConfigSPI allocates oid on the firmware with chip select pin cs
func (b *Bridge) ConfigSPI(oid uint8, cs core.GPIOPin, activeHigh bool) error {
	return b.sendLocked("config_spi", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(cs))
		protocol.EncodeVLQUint(output, boolArg(activeHigh))
	})
}

// SetBus binds oid to a hardware SPI bus
func (b *Bridge) SetBus(oid uint8, bus core.SPIBusID, mode core.SPIMode, rate uint32) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	return b.sendLocked("spi_set_bus", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(bus))
		protocol.EncodeVLQUint(output, uint32(mode))
		protocol.EncodeVLQUint(output, rate)
	})
}

// SetSoftwareBus binds oid to bit-banged pins
func (b *Bridge) SetSoftwareBus(oid uint8, sw SoftwareBus) error {
	if !sw.Mode.Valid() {
		return ErrInvalidMode
	}
	return b.sendLocked("spi_set_software_bus", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, pinArg(sw.MISO))
		protocol.EncodeVLQUint(output, pinArg(sw.MOSI))
		protocol.EncodeVLQUint(output, uint32(sw.SCLK))
		protocol.EncodeVLQUint(output, uint32(sw.Mode))
		protocol.EncodeVLQUint(output, sw.Rate)
		protocol.EncodeVLQUint(output, uint32(sw.BitOrder))
	})
}

// SetCSToggle enables or disables chip select handling for oid
func (b *Bridge) SetCSToggle(oid uint8, enable bool) error {
	return b.sendLocked("spi_set_cs_toggle", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, boolArg(enable))
	})
}

// ConfigShutdown stores msg to be written to spiOID when the firmware shuts down
func (b *Bridge) ConfigShutdown(oid, spiOID uint8, msg []byte) error {
	if len(msg) > core.SPIMaxTransfer {
		return ErrTooLong
	}
	return b.sendLocked("config_spi_shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(spiOID))
		protocol.EncodeVLQBytes(output, msg)
	})
}

// Send writes data to oid and ignores what comes back
func (b *Bridge) Send(oid uint8, data []byte) error {
	if len(data) > core.SPIMaxTransfer {
		return ErrTooLong
	}
	return b.sendLocked("spi_send", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, data)
	})
}

// Transfer runs one full-duplex transaction on oid and returns the bytes
// received
func (b *Bridge) Transfer(oid uint8, data []byte) ([]byte, error) {
	if len(data) > core.SPIMaxTransfer {
		return nil, ErrTooLong
	}
	return b.request(oid, "spi_transfer", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, data)
	})
}

// Read clocks out n copies of fill on oid and returns the reply
func (b *Bridge) Read(oid uint8, n int, fill byte) ([]byte, error) {
	if n < 0 || n > core.SPIMaxTransfer {
		return nil, ErrTooLong
	}
	return b.request(oid, "spi_read", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(n))
		protocol.EncodeVLQUint(output, uint32(fill))
	})
}

// request sends a command answered by spi_transfer_response and waits for
// the reply addressed to oid
func (b *Bridge) request(oid uint8, name string, args func(output protocol.OutputBuffer)) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transport.DrainResponses()
	if err := b.send(name, args); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.transport.DrainResponses()
			return nil, fmt.Errorf("%s oid=%d: %w", name, oid, ErrNoResponse)
		}
		msg, err := b.transport.ReceiveResponse(remaining)
		if errors.Is(err, protocol.ErrTransportClosed) {
			return nil, err
		}
		if err != nil {
			b.transport.DrainResponses()
			return nil, fmt.Errorf("%s oid=%d: %w", name, oid, ErrNoResponse)
		}

		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || uint16(id) != b.respID {
			continue
		}
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil || got != uint32(oid) {
			continue
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, fmt.Errorf("%s oid=%d: bad response: %w", name, oid, err)
		}
		return data, nil
	}
}

// Device returns oid as a tinygo.org/x/drivers SPI bus, so drivers written
// for a local bus can run against the bridge.
func (b *Bridge) Device(oid uint8) drivers.SPI {
	return remoteBus{bridge: b, oid: oid}
}

type remoteBus struct {
	bridge *Bridge
	oid    uint8
}

func (r remoteBus) Tx(w, rx []byte) error {
	switch {
	case len(rx) == 0:
		return r.bridge.Send(r.oid, w)
	case len(w) == 0:
		w = make([]byte, len(rx))
	case len(w) != len(rx):
		return core.ErrLengthMismatch
	}
	got, err := r.bridge.Transfer(r.oid, w)
	if err != nil {
		return err
	}
	copy(rx, got)
	return nil
}

func (r remoteBus) Transfer(c byte) (byte, error) {
	got, err := r.bridge.Transfer(r.oid, []byte{c})
	if err != nil {
		return 0, err
	}
	if len(got) != 1 {
		return 0, ErrNoResponse
	}
	return got[0], nil
}
