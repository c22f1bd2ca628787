package core

import (
	"errors"

	"spibus/protocol"
)

// SPIMaxTransfer is the largest data block a single spi_transfer, spi_send or
// spi_read may carry so that request and response each fit one message block.
const SPIMaxTransfer = 48

// PinAbsent is the wire value of a data pin that is not connected
const PinAbsent = 0xFFFFFFFF

var (
	errNoBus       = errors.New("spi: bus not set")
	errBadMode     = errors.New("spi: invalid mode")
	errTooLong     = errors.New("spi: data too long")
	errNoSPIDriver = errors.New("spi: hardware driver not configured")
)

// spiSlot is one host-configured device, addressed by oid
type spiSlot struct {
	oid          uint8
	cs           GPIOPin
	csActiveHigh bool
	csToggle     bool
	dev          *Device // nil until spi_set_bus or spi_set_software_bus
	shutdownMsg  []byte
}

var (
	spiSlots      = make(map[uint8]*spiSlot)
	spiResponseID uint16
)

// InitSPICommands registers the SPI bridge commands with reg. The host
// registers the same set on its side, so the order here is the wire contract.
func InitSPICommands(reg *CommandRegistry) {
	reg.Register("config_spi", "oid=%c pin=%u cs_active_high=%c", handleConfigSPI)
	reg.Register("spi_set_bus", "oid=%c spi_bus=%u mode=%u rate=%u", handleSPISetBus)
	reg.Register("spi_set_software_bus",
		"oid=%c miso_pin=%u mosi_pin=%u sclk_pin=%u mode=%u rate=%u bit_order=%c", handleSPISetSoftwareBus)
	reg.Register("spi_set_cs_toggle", "oid=%c enable=%c", handleSPISetCSToggle)
	reg.Register("config_spi_shutdown", "oid=%c spi_oid=%c shutdown_msg=%*s", handleConfigSPIShutdown)
	reg.Register("spi_transfer", "oid=%c data=%*s", handleSPITransfer)
	reg.Register("spi_send", "oid=%c data=%*s", handleSPISend)
	reg.Register("spi_read", "oid=%c count=%c fill=%c", handleSPIRead)

	// Response (MCU -> host)
	spiResponseID = reg.Register("spi_transfer_response", "oid=%c response=%*s", nil)
}

// ResetSPIDevices ends every configured device and forgets all slots
func ResetSPIDevices() {
	for oid, slot := range spiSlots {
		if slot.dev != nil {
			_ = slot.dev.End()
		}
		delete(spiSlots, oid)
	}
}

// decodeArgs decodes len(dst) unsigned VLQ arguments in order
func decodeArgs(data *[]byte, dst ...*uint32) error {
	for _, p := range dst {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// handleConfigSPI allocates a slot and parks its chip select inactive
// Format: config_spi oid=%c pin=%u cs_active_high=%c
func handleConfigSPI(data *[]byte) error {
	var oid, pin, activeHigh uint32
	if err := decodeArgs(data, &oid, &pin, &activeHigh); err != nil {
		return err
	}

	if old, ok := spiSlots[uint8(oid)]; ok && old.dev != nil {
		_ = old.dev.End()
	}

	slot := &spiSlot{
		oid:          uint8(oid),
		cs:           GPIOPin(pin),
		csActiveHigh: activeHigh != 0,
		csToggle:     true,
	}

	io := MustGPIO()
	if err := io.ConfigureOutput(slot.cs); err != nil {
		return err
	}
	if err := io.SetPin(slot.cs, !slot.csActiveHigh); err != nil {
		return err
	}

	spiSlots[slot.oid] = slot
	DebugPrintln("[SPI] config oid=" + utoa(oid) + " cs=" + utoa(pin))
	return nil
}

// attach installs dev in slot and runs its one-time setup
func (s *spiSlot) attach(dev *Device) error {
	if s.dev != nil {
		_ = s.dev.End()
		s.dev = nil
	}
	dev.SetCSActiveHigh(s.csActiveHigh)
	if !s.csToggle {
		dev.DisableCSToggle()
	}
	if err := dev.Begin(); err != nil {
		return err
	}
	s.dev = dev
	return nil
}

// handleSPISetBus binds a slot to a hardware bus
// Format: spi_set_bus oid=%c spi_bus=%u mode=%u rate=%u
func handleSPISetBus(data *[]byte) error {
	var oid, bus, mode, rate uint32
	if err := decodeArgs(data, &oid, &bus, &mode, &rate); err != nil {
		return err
	}

	slot, ok := spiSlots[uint8(oid)]
	if !ok {
		return nil
	}
	if mode > uint32(Mode3) {
		return errBadMode
	}
	if spiDriver == nil {
		return errNoSPIDriver
	}

	config := SPIConfig{
		BusID:    SPIBusID(bus),
		Mode:     SPIMode(mode),
		Rate:     rate,
		BitOrder: MSBFirst,
	}
	return slot.attach(NewHardwareDevice(slot.cs, config, spiDriver))
}

// optionalPin maps the PinAbsent wire value to NoPin
func optionalPin(v uint32) OptionalPin {
	if v == PinAbsent {
		return NoPin
	}
	return PinOf(GPIOPin(v))
}

// handleSPISetSoftwareBus binds a slot to bit-banged pins
// Format: spi_set_software_bus oid=%c miso_pin=%u mosi_pin=%u sclk_pin=%u mode=%u rate=%u bit_order=%c
func handleSPISetSoftwareBus(data *[]byte) error {
	var oid, miso, mosi, sclk, mode, rate, order uint32
	if err := decodeArgs(data, &oid, &miso, &mosi, &sclk, &mode, &rate, &order); err != nil {
		return err
	}

	slot, ok := spiSlots[uint8(oid)]
	if !ok {
		return nil
	}
	if mode > uint32(Mode3) {
		return errBadMode
	}

	pins := SoftwarePins{
		SCK: GPIOPin(sclk),
		SDI: optionalPin(miso),
		SDO: optionalPin(mosi),
	}
	config := SPIConfig{
		Mode:     SPIMode(mode),
		Rate:     rate,
		BitOrder: MSBFirst,
	}
	if order != 0 {
		config.BitOrder = LSBFirst
	}
	return slot.attach(NewSoftwareDevice(slot.cs, pins, config))
}

// handleSPISetCSToggle lets the host hold chip select itself
// Format: spi_set_cs_toggle oid=%c enable=%c
func handleSPISetCSToggle(data *[]byte) error {
	var oid, enable uint32
	if err := decodeArgs(data, &oid, &enable); err != nil {
		return err
	}

	slot, ok := spiSlots[uint8(oid)]
	if !ok {
		return nil
	}
	slot.csToggle = enable != 0
	if slot.dev == nil {
		return nil
	}
	if slot.csToggle {
		slot.dev.EnableCSToggle()
	} else {
		slot.dev.DisableCSToggle()
	}
	return nil
}

// handleConfigSPIShutdown stores bytes to send to a device when the firmware
// shuts down
// Format: config_spi_shutdown oid=%c spi_oid=%c shutdown_msg=%*s
func handleConfigSPIShutdown(data *[]byte) error {
	var oid, spiOID uint32
	if err := decodeArgs(data, &oid, &spiOID); err != nil {
		return err
	}
	msg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	slot, ok := spiSlots[uint8(spiOID)]
	if !ok {
		return nil
	}
	// The shutdown object oid is not tracked separately; the message lives
	// on the SPI slot.
	_ = oid
	slot.shutdownMsg = append([]byte(nil), msg...)
	return nil
}

// lookupDevice returns the device for oid. A nil device with a nil error
// means the oid is unknown and the command is ignored.
func lookupDevice(oid uint32) (*Device, error) {
	slot, ok := spiSlots[uint8(oid)]
	if !ok {
		return nil, nil
	}
	if slot.dev == nil {
		return nil, errNoBus
	}
	return slot.dev, nil
}

func sendTransferResponse(oid uint32, rx []byte) {
	if responseSender == nil {
		return
	}
	responseSender.SendCommand(spiResponseID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQBytes(output, rx)
	})
}

// debugBytes renders up to 8 bytes as hex for debug output
func debugBytes(b []byte) string {
	s := ""
	for i, v := range b {
		if i == 8 {
			return s + " .."
		}
		if i > 0 {
			s += " "
		}
		s += hexByte(v)
	}
	return s
}

// handleSPITransfer runs a full-duplex transaction and reports what came back
// Format: spi_transfer oid=%c data=%*s
// Response: spi_transfer_response oid=%c response=%*s
func handleSPITransfer(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	tx, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if len(tx) > SPIMaxTransfer {
		return errTooLong
	}

	dev, err := lookupDevice(oid)
	if dev == nil {
		return err
	}

	rx := make([]byte, len(tx))
	if err := dev.Tx(tx, rx); err != nil {
		return err
	}
	if IsDebugEnabled() {
		DebugAsync("[SPI] oid=" + utoa(oid) + " tx=" + debugBytes(tx) + " rx=" + debugBytes(rx))
	}

	sendTransferResponse(oid, rx)
	return nil
}

// handleSPISend writes data and drops whatever the device returns
// Format: spi_send oid=%c data=%*s
func handleSPISend(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	tx, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if len(tx) > SPIMaxTransfer {
		return errTooLong
	}

	dev, err := lookupDevice(oid)
	if dev == nil {
		return err
	}
	return dev.Write(tx, nil, false)
}

// handleSPIRead clocks out count fill bytes and reports the reply
// Format: spi_read oid=%c count=%c fill=%c
func handleSPIRead(data *[]byte) error {
	var oid, count, fill uint32
	if err := decodeArgs(data, &oid, &count, &fill); err != nil {
		return err
	}
	if count > SPIMaxTransfer {
		return errTooLong
	}

	dev, err := lookupDevice(oid)
	if dev == nil {
		return err
	}

	rx := make([]byte, count)
	if err := dev.Read(rx, byte(fill)); err != nil {
		return err
	}
	sendTransferResponse(oid, rx)
	return nil
}

// ShutdownSPI sends every configured shutdown message. Errors are ignored;
// the firmware is already going down.
func ShutdownSPI() {
	for _, slot := range spiSlots {
		if slot.dev == nil || len(slot.shutdownMsg) == 0 {
			continue
		}
		_ = slot.dev.Write(slot.shutdownMsg, nil, false)
	}
}
