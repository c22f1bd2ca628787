package core

import (
	"errors"

	"tinygo.org/x/drivers"
)

// DefaultFillValue is clocked out while reading
const DefaultFillValue = 0xFF

// ErrLengthMismatch is returned by Tx when both buffers are given with different lengths
var ErrLengthMismatch = errors.New("tx and rx buffer lengths must match")

// Transfer performs one full-duplex transfer without touching chip select or
// the transaction lock. Each byte of buf is sent and overwritten in place by
// the byte received. On a software bus with no data-in pin buf keeps the sent
// bytes.
func (d *Device) Transfer(buf []byte) error {
	return d.bus.transfer(buf)
}

// TransferByte sends one byte and returns the byte received at the same time.
// Driver errors are dropped; use Transfer to see them.
func (d *Device) TransferByte(b byte) byte {
	out, _ := d.transferByte(b)
	return out
}

func (d *Device) transferByte(b byte) (byte, error) {
	one := [1]byte{b}
	err := d.bus.transfer(one[:])
	return one[0], err
}

// transaction brackets body with the bus lock and chip select. Chip select is
// always released and the lock always ended, even when body fails. The first
// error wins.
func (d *Device) transaction(op uint8, n int, body func() error) error {
	RecordSPIEvent(op, d.bus.kind(), d.cs, uint32(n))
	if err := d.bus.beginTransaction(); err != nil {
		return err
	}
	err := d.assertCS()
	if err == nil {
		err = body()
	}
	if csErr := d.deassertCS(); err == nil {
		err = csErr
	}
	if endErr := d.bus.endTransaction(); err == nil {
		err = endErr
	}
	return err
}

// Write sends prefix then buf inside one transaction. When invert is set every
// byte of both is complemented before it goes out. Received bytes are dropped
// and neither slice is modified.
func (d *Device) Write(buf, prefix []byte, invert bool) error {
	var mask byte
	if invert {
		mask = 0xFF
	}
	return d.transaction(SPIEvtWrite, len(prefix)+len(buf), func() error {
		for _, b := range prefix {
			if _, err := d.transferByte(b ^ mask); err != nil {
				return err
			}
		}
		for _, b := range buf {
			if _, err := d.transferByte(b ^ mask); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read fills buf with fill and clocks it out in a single transfer; the
// received bytes replace buf in place.
func (d *Device) Read(buf []byte, fill byte) error {
	for i := range buf {
		buf[i] = fill
	}
	return d.transaction(SPIEvtRead, len(buf), func() error {
		return d.bus.transfer(buf)
	})
}

// WriteThenRead sends w, dropping whatever comes back, then clocks out fill
// once per byte of r and stores the replies in r. Both phases share one chip
// select assertion but never overlap, so r and w may alias.
func (d *Device) WriteThenRead(w, r []byte, fill byte) error {
	return d.transaction(SPIEvtWriteThenRead, len(w)+len(r), func() error {
		for _, b := range w {
			if _, err := d.transferByte(b); err != nil {
				return err
			}
		}
		for i := range r {
			in, err := d.transferByte(fill)
			if err != nil {
				return err
			}
			r[i] = in
		}
		return nil
	})
}

// Repeated sends prefix followed by value times copies of value.
// Received bytes are dropped.
func (d *Device) Repeated(value byte, times int, prefix []byte) error {
	return d.transaction(SPIEvtRepeated, len(prefix)+times, func() error {
		for _, b := range prefix {
			if _, err := d.transferByte(b); err != nil {
				return err
			}
		}
		for i := 0; i < times; i++ {
			if _, err := d.transferByte(value); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteAndRead toggles chip select around a single byte transfer without
// claiming the bus. Callers that share a hardware bus bracket it with
// BeginTransaction/EndTransaction themselves.
func (d *Device) WriteAndRead(b byte) byte {
	RecordSPIEvent(SPIEvtWriteAndRead, d.bus.kind(), d.cs, 1)
	_ = d.assertCS()
	out, _ := d.transferByte(b)
	_ = d.deassertCS()
	return out
}

// Tx runs one full-duplex transaction in the style of machine.SPI.Tx.
// A nil r makes it a plain Write, a nil w clocks out zeros and reads into r.
// Otherwise w and r must be the same length; they may be the same slice.
func (d *Device) Tx(w, r []byte) error {
	switch {
	case len(r) == 0:
		return d.Write(w, nil, false)
	case len(w) == 0:
		return d.Read(r, 0x00)
	case len(w) != len(r):
		return ErrLengthMismatch
	}
	copy(r, w)
	return d.transaction(SPIEvtTx, len(r), func() error {
		return d.bus.transfer(r)
	})
}

// Bus returns the device as a tinygo.org/x/drivers SPI bus so that
// existing drivers can run on top of either bus kind.
func (d *Device) Bus() drivers.SPI {
	return driverBus{dev: d}
}

type driverBus struct {
	dev *Device
}

func (b driverBus) Tx(w, r []byte) error {
	return b.dev.Tx(w, r)
}

func (b driverBus) Transfer(c byte) (byte, error) {
	return b.dev.WriteAndRead(c), nil
}
