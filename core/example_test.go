package core

import "fmt"

// A software device with SDO jumpered to SDI, driven through the
// tinygo.org/x/drivers interface that existing sensor drivers accept.
func ExampleDevice_Bus() {
	gpio := newMockGPIO()
	gpio.loop[testSDI] = testSDO

	pins := SoftwarePins{SCK: testSCK, SDO: PinOf(testSDO), SDI: PinOf(testSDI)}
	dev := NewSoftwareDevice(testCS, pins, SPIConfig{Mode: Mode3})
	dev.SetGPIODriver(gpio)
	if err := dev.Begin(); err != nil {
		fmt.Println(err)
		return
	}

	bus := dev.Bus()
	rx := make([]byte, 3)
	if err := bus.Tx([]byte{0xde, 0xad, 0x42}, rx); err != nil {
		fmt.Println(err)
		return
	}
	b, _ := bus.Transfer(0x7e)
	fmt.Printf("% x %02x\n", rx, b)
	// Output: de ad 42 7e
}
