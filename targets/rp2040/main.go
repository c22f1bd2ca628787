//go:build rp2040

package main

import (
	"machine"
	"time"

	"spibus/core"
	"spibus/protocol"
)

// Set to true to get SPI traces on UART0. Costs spi0a.
const debugUARTEnabled = false

var (
	inputBuffer *protocol.FifoBuffer
	output      *usbOutput
	transport   *protocol.Transport

	// Error counters, readable from a debugger
	readErrors  uint32
	writeErrors uint32
	recovered   uint32

	usbWasDisconnected bool
)

func main() {
	// Clear any watchdog state left from a previous reset
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	InitDebugUART(debugUARTEnabled)

	core.SetGPIODriver(NewRPGPIODriver())
	core.SetSPIDriver(NewRP2040SPIDriver())

	reg := core.GetGlobalRegistry()
	core.InitSPICommands(reg)

	inputBuffer = protocol.NewFifoBuffer(256)
	output = newUSBOutput(512)

	transport = protocol.NewTransport(output, reg.Dispatch)
	transport.SetResetCallback(func() {
		// A restarted host reconfigures every device
		inputBuffer.Reset()
		core.DumpSPITrace()
		core.ClearSPITrace()
		core.ShutdownSPI()
		core.ResetSPIDevices()
	})
	// The host waits for the ACK before it reads the response
	transport.SetFlushCallback(func() {
		output.flush()
	})
	core.SetResponseSender(transport)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					recovered++
					inputBuffer.Reset()
					output.reset()
				}
			}()

			pollUSB()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}

			if !output.flush() {
				writeErrors++
				usbWasDisconnected = true
			}
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// pollUSB moves received bytes into inputBuffer. The first byte after a
// failed write resets state for the new connection.
func pollUSB() {
	for USBAvailable() > 0 && inputBuffer.Free() > 0 {
		b, err := USBRead()
		if err != nil {
			readErrors++
			return
		}
		if usbWasDisconnected {
			usbWasDisconnected = false
			inputBuffer.Reset()
			output.reset()
			transport.Reset()
		}
		inputBuffer.Write([]byte{b})
	}
}
