package core

// softwareBus bit-bangs SPI on GPIO pins
type softwareBus struct {
	pins  SoftwarePins
	cfg   SPIConfig
	gpio  GPIODriver  // nil means MustGPIO()
	delay DelayDriver // nil means the registered delay driver
}

func (s *softwareBus) kind() BusKind { return BusSoftware }
func (s *softwareBus) config() SPIConfig { return s.cfg }

func (s *softwareBus) io() GPIODriver {
	if s.gpio != nil {
		return s.gpio
	}
	return MustGPIO()
}

func (s *softwareBus) waiter() DelayDriver {
	if s.delay != nil {
		return s.delay
	}
	return GetDelayDriver()
}

// begin parks the clock at its idle level (low for modes 0/1, high for 2/3),
// drives data-out high and makes data-in an input
func (s *softwareBus) begin() error {
	io := s.io()
	if err := io.ConfigureOutput(s.pins.SCK); err != nil {
		return err
	}
	if err := io.SetPin(s.pins.SCK, s.cfg.Mode.IdleHigh()); err != nil {
		return err
	}
	if s.pins.SDO.Valid {
		if err := io.ConfigureOutput(s.pins.SDO.Pin); err != nil {
			return err
		}
		if err := io.SetPin(s.pins.SDO.Pin, true); err != nil {
			return err
		}
	}
	if s.pins.SDI.Valid {
		if err := io.ConfigureInput(s.pins.SDI.Pin); err != nil {
			return err
		}
	}
	return nil
}

func (s *softwareBus) end() error { return nil }
func (s *softwareBus) beginTransaction() error { return nil }
func (s *softwareBus) endTransaction() error { return nil }

// transfer clocks every byte of buf out on SDO and, when SDI exists,
// replaces it with the byte sampled on SDI. Without SDI buf is left as sent.
// Pin errors are not checked here; the pins were validated by begin.
func (s *softwareBus) transfer(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	io := s.io()
	wait := s.waiter()
	sck, sdo, sdi := s.pins.SCK, s.pins.SDO, s.pins.SDI

	startBit := byte(0x80)
	lsbFirst := s.cfg.BitOrder == LSBFirst
	if lsbFirst {
		startBit = 0x01
	}
	halfPeriod := HalfPeriodUS(s.cfg.Rate)
	// Data is set up before the leading clock edge in modes 0 and 2
	leadingSetup := s.cfg.Mode == Mode0 || s.cfg.Mode == Mode2

	// Forces the first bit to be driven
	lastSDO := buf[0]&startBit == 0

	for i := range buf {
		send := buf[i]
		var reply byte

		for b := startBit; b != 0; {
			if halfPeriod != 0 {
				wait.DelayMicroseconds(halfPeriod)
			}
			bit := send&b != 0

			if leadingSetup {
				if sdo.Valid && bit != lastSDO {
					io.SetPin(sdo.Pin, bit)
					lastSDO = bit
				}
				io.SetPin(sck, true)
				if halfPeriod != 0 {
					wait.DelayMicroseconds(halfPeriod)
				}
				if sdi.Valid && io.ReadPin(sdi.Pin) {
					reply |= b
				}
				io.SetPin(sck, false)
			} else {
				io.SetPin(sck, true)
				if halfPeriod != 0 {
					wait.DelayMicroseconds(halfPeriod)
				}
				if sdo.Valid {
					io.SetPin(sdo.Pin, bit)
				}
				io.SetPin(sck, false)
				if sdi.Valid && io.ReadPin(sdi.Pin) {
					reply |= b
				}
			}

			if lsbFirst {
				b <<= 1
			} else {
				b >>= 1
			}
		}

		if sdi.Valid {
			buf[i] = reply
		}
	}
	return nil
}
