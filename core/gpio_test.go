package core

import "testing"

// mockGPIO simulates pins in memory. Inputs listed in loop read the level of
// another pin, which models a data-out to data-in jumper.
type mockGPIO struct {
	levels  map[GPIOPin]bool
	outputs map[GPIOPin]bool
	inputs  map[GPIOPin]bool
	history map[GPIOPin][]bool // Every level written, per pin
	loop    map[GPIOPin]GPIOPin
	sampled []bool // Results of ReadPin in call order
}

func newMockGPIO() *mockGPIO {
	return &mockGPIO{
		levels:  make(map[GPIOPin]bool),
		outputs: make(map[GPIOPin]bool),
		inputs:  make(map[GPIOPin]bool),
		history: make(map[GPIOPin][]bool),
		loop:    make(map[GPIOPin]GPIOPin),
	}
}

func (m *mockGPIO) ConfigureOutput(pin GPIOPin) error {
	m.outputs[pin] = true
	delete(m.inputs, pin)
	return nil
}

func (m *mockGPIO) ConfigureInput(pin GPIOPin) error {
	m.inputs[pin] = true
	delete(m.outputs, pin)
	return nil
}

func (m *mockGPIO) SetPin(pin GPIOPin, value bool) error {
	m.levels[pin] = value
	m.history[pin] = append(m.history[pin], value)
	return nil
}

func (m *mockGPIO) GetPin(pin GPIOPin) (bool, error) {
	return m.levels[pin], nil
}

func (m *mockGPIO) ReadPin(pin GPIOPin) bool {
	src := pin
	if s, ok := m.loop[pin]; ok {
		src = s
	}
	v := m.levels[src]
	m.sampled = append(m.sampled, v)
	return v
}

// clearLog forgets recorded writes and samples but keeps pin levels
func (m *mockGPIO) clearLog() {
	m.history = make(map[GPIOPin][]bool)
	m.sampled = nil
}

// decodeBits packs sampled bits into bytes in the given bit order
func decodeBits(bits []bool, order BitOrder) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		for j := 0; j < 8; j++ {
			if !bits[i*8+j] {
				continue
			}
			if order == LSBFirst {
				out[i] |= 1 << j
			} else {
				out[i] |= 0x80 >> j
			}
		}
	}
	return out
}

// recordingDelay remembers every requested delay
type recordingDelay struct {
	calls []uint32
}

func (r *recordingDelay) DelayMicroseconds(us uint32) {
	r.calls = append(r.calls, us)
}

const (
	testCS  GPIOPin = 5
	testSCK GPIOPin = 2
	testSDO GPIOPin = 3
	testSDI GPIOPin = 4
)

func TestMockGPIOLoopback(t *testing.T) {
	m := newMockGPIO()
	m.loop[testSDI] = testSDO

	m.SetPin(testSDO, true)
	if !m.ReadPin(testSDI) {
		t.Error("Loopback input should follow the output high")
	}
	m.SetPin(testSDO, false)
	if m.ReadPin(testSDI) {
		t.Error("Loopback input should follow the output low")
	}
	if len(m.sampled) != 2 {
		t.Errorf("Expected 2 samples recorded, got %d", len(m.sampled))
	}
}

func TestOptionalPin(t *testing.T) {
	if NoPin.Valid {
		t.Error("NoPin must not be valid")
	}
	p := PinOf(0)
	if !p.Valid || p.Pin != 0 {
		t.Errorf("PinOf(0) = %+v, pin 0 must be a real pin", p)
	}
}

func TestMustGPIOPanicsWithoutDriver(t *testing.T) {
	saved := gpioDriver
	defer SetGPIODriver(saved)
	SetGPIODriver(nil)

	defer func() {
		if recover() == nil {
			t.Error("MustGPIO should panic without a driver")
		}
	}()
	MustGPIO()
}

func TestHalfPeriodUS(t *testing.T) {
	testCases := []struct {
		rate uint32
		want uint32
	}{
		{0, 0},
		{1000000, 0},
		{500000, 1},
		{100000, 5},
		{1000, 500},
		{1, 500000},
	}
	for _, tc := range testCases {
		if got := HalfPeriodUS(tc.rate); got != tc.want {
			t.Errorf("HalfPeriodUS(%d) = %d, expected %d", tc.rate, got, tc.want)
		}
	}
}

func TestSetDelayDriverNilRestoresBusyWait(t *testing.T) {
	defer SetDelayDriver(nil)

	SetDelayDriver(&recordingDelay{})
	if _, ok := GetDelayDriver().(*recordingDelay); !ok {
		t.Fatal("Expected the recording delay driver")
	}
	SetDelayDriver(nil)
	if _, ok := GetDelayDriver().(BusyWait); !ok {
		t.Error("nil should restore BusyWait")
	}
}
