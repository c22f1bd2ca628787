//go:build rp2040

package main

import (
	"machine"

	"spibus/protocol"
)

// InitUSB configures the USB CDC port the host talks to
func InitUSB() {
	// machine.Serial is USB CDC on RP2040; descriptors come from the runtime
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}

// usbOutput queues encoded blocks until the main loop writes them out. A
// transfer response and its ACK together can exceed one block, so the queue
// holds several.
type usbOutput struct {
	queue *protocol.FifoBuffer
}

func newUSBOutput(size int) *usbOutput {
	return &usbOutput{queue: protocol.NewFifoBuffer(size)}
}

// Output implements protocol.OutputBuffer. Blocks that do not fit are
// dropped whole; the host retransmits on a missing ACK.
func (o *usbOutput) Output(data []byte) {
	if o.queue.Free() < len(data) {
		return
	}
	o.queue.Write(data)
}

// flush writes everything queued. It returns false when the port refused data.
func (o *usbOutput) flush() bool {
	for o.queue.Available() > 0 {
		n, err := USBWriteBytes(o.queue.Data())
		if n > 0 {
			o.queue.Pop(n)
		}
		if err != nil || n == 0 {
			return false
		}
	}
	return true
}

func (o *usbOutput) reset() {
	o.queue.Reset()
}
