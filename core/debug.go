package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// SPIEvent captures one SPI operation for post-mortem analysis
type SPIEvent struct {
	Op     uint8   // Operation code (SPIEvt*)
	Kind   BusKind // Bus the device runs on
	CS     GPIOPin // Chip select of the device
	Length uint32  // Bytes clocked
}

// Operation codes
const (
	SPIEvtWrite         = 1
	SPIEvtRead          = 2
	SPIEvtWriteThenRead = 3
	SPIEvtRepeated      = 4
	SPIEvtWriteAndRead  = 5
	SPIEvtTx            = 6
)

const (
	SPITraceSize = 32 // Keep last 32 operations
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// SPI trace ring buffer, off by default
	spiTrace        [SPITraceSize]SPIEvent
	spiTraceHead    uint8
	spiTraceEnabled bool

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetSPITraceEnabled turns recording of SPI operations on or off
func SetSPITraceEnabled(enabled bool) {
	spiTraceEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordSPIEvent stores an operation in the trace ring if tracing is on
func RecordSPIEvent(op uint8, kind BusKind, cs GPIOPin, length uint32) {
	if !spiTraceEnabled {
		return
	}
	idx := spiTraceHead
	spiTrace[idx] = SPIEvent{Op: op, Kind: kind, CS: cs, Length: length}
	spiTraceHead = (idx + 1) % SPITraceSize
}

// SPITrace returns the recorded operations, oldest first
func SPITrace() []SPIEvent {
	events := make([]SPIEvent, 0, SPITraceSize)
	start := spiTraceHead
	for i := uint8(0); i < SPITraceSize; i++ {
		evt := spiTrace[(start+i)%SPITraceSize]
		if evt.Op == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// DumpSPITrace writes the trace ring through the debug writer
func DumpSPITrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[SPI] === Trace Dump ===")
	for _, evt := range SPITrace() {
		var name string
		switch evt.Op {
		case SPIEvtWrite:
			name = "WRITE"
		case SPIEvtRead:
			name = "READ"
		case SPIEvtWriteThenRead:
			name = "WRITE_THEN_READ"
		case SPIEvtRepeated:
			name = "REPEATED"
		case SPIEvtWriteAndRead:
			name = "WRITE_AND_READ"
		case SPIEvtTx:
			name = "TX"
		default:
			name = "UNKNOWN"
		}
		debugPrintln("[SPI] " + name +
			" bus=" + evt.Kind.String() +
			" cs=" + utoa(uint32(evt.CS)) +
			" len=" + utoa(evt.Length))
	}
	debugPrintln("[SPI] === End Dump ===")
}

// ClearSPITrace clears the trace ring
func ClearSPITrace() {
	for i := range spiTrace {
		spiTrace[i] = SPIEvent{}
	}
	spiTraceHead = 0
}
