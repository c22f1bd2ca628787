//go:build rp2040

package main

import (
	"machine"

	"spibus/core"
)

var debugUART *machine.UART

// InitDebugUART sets up UART0 on GPIO0 (TX) / GPIO1 (RX) at 115200 baud and
// routes core debug output to it. GPIO0 is also MISO of spi0a, so debug
// output stays off unless enabled.
func InitDebugUART(enabled bool) {
	if !enabled {
		return
	}
	debugUART = machine.UART0
	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		debugUART = nil
		return
	}
	core.SetDebugWriter(func(s string) {
		debugUART.Write([]byte(s))
		debugUART.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.SetSPITraceEnabled(true)
	core.InitAsyncDebug()
	core.DebugPrintln("spibus rp2040 debug UART ready")
}
