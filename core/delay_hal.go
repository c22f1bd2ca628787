package core

import "time"

// DelayDriver provides the blocking microsecond waits used between clock
// edges of a bit-banged bus.
type DelayDriver interface {
	// DelayMicroseconds busy-waits for us microseconds. Zero returns immediately.
	DelayMicroseconds(us uint32)
}

// BusyWait is the default DelayDriver. It spins on the monotonic clock
// instead of yielding to the scheduler.
type BusyWait struct{}

// DelayMicroseconds implements DelayDriver
func (BusyWait) DelayMicroseconds(us uint32) {
	if us == 0 {
		return
	}
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

var delayDriver DelayDriver = BusyWait{}

// SetDelayDriver replaces the platform delay implementation.
// Passing nil restores BusyWait.
func SetDelayDriver(d DelayDriver) {
	if d == nil {
		d = BusyWait{}
	}
	delayDriver = d
}

// GetDelayDriver returns the registered delay implementation
func GetDelayDriver() DelayDriver {
	return delayDriver
}

// HalfPeriodUS returns the half clock period in whole microseconds for a
// bit-banged bus running at rate Hz. Rates above 500 kHz round down to zero,
// which means "as fast as the pins toggle". A zero rate also yields zero.
func HalfPeriodUS(rate uint32) uint32 {
	if rate == 0 {
		return 0
	}
	return (1000000 / rate) / 2
}
