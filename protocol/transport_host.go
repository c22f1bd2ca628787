package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the firmware ACK
const DefaultAckTimeout = 2 * time.Second

// ErrTransportClosed is returned once Close has been called
var ErrTransportClosed = errors.New("transport stopped")

// Message is a block received from the firmware
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

// HostTransport is the host end of the link: it sends command blocks, waits
// for their ACK and queues responses.
type HostTransport struct {
	port io.ReadWriteCloser

	// Sequence of the next command (0x10-0x1F)
	currentSeq atomic.Uint32

	input        *FifoBuffer
	synchronized bool // Guarded by readMu

	ackChan      chan Message
	responseChan chan Message

	writeMu sync.Mutex
	readMu  sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport creates a host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		input:        NewFifoBuffer(512),
		synchronized: true,
		ackChan:      make(chan Message, 1),
		responseChan: make(chan Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.currentSeq.Store(MessageDest)
	go t.readLoop()
	return t
}

// SendCommand sends a command to the MCU and waits for ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command with a custom timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	if payload.CurPosition() > MessagePayloadMax {
		return fmt.Errorf("command %d: %w", cmdID, ErrMessageTooLong)
	}

	seq := uint8(t.currentSeq.Load())
	msg, err := AppendFrame(nil, seq, payload.Result())
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	n, err := t.port.Write(msg)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	if err := t.waitForAck(seq, timeout); err != nil {
		return fmt.Errorf("ACK timeout or error: %w", err)
	}
	return nil
}

// waitForAck waits for the ACK of the block sent with seq
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := nextSeq(seq)
	deadline := time.After(timeout)
	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				// Stale ACK or NAK from an earlier exchange
				continue
			}
			t.currentSeq.Store(uint32(want))
			return nil
		case <-deadline:
			return fmt.Errorf("no ACK after %v", timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse receives a response message with timeout
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-time.After(timeout):
		return Message{}, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return Message{}, ErrTransportClosed
	}
}

// readLoop continuously reads from the port and processes messages
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processMessages()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processMessages parses and dispatches complete blocks from the input buffer
func (t *HostTransport) processMessages() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.input.Data()
	for len(data) > 0 {
		if !t.synchronized {
			var found bool
			data, found = skipToSync(data)
			t.synchronized = found
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := ScanFrame(data)
		if err == ErrNeedMore {
			break
		}
		if err != nil {
			t.synchronized = false
			continue
		}
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		data = data[n:]
		t.dispatchMessage(Message{Sequence: frame.Seq, Payload: payload})
	}

	if consumed := t.input.Available() - len(data); consumed > 0 {
		t.input.Pop(consumed)
	}
}

// dispatchMessage routes a message to the ACK or response channel
func (t *HostTransport) dispatchMessage(msg Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
			// Keep only the newest ACK
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	select {
	case t.responseChan <- msg:
	default:
		// Full: drop the oldest response
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// DrainResponses discards queued responses
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

// Close stops the transport and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}

// GetCurrentSequence returns the current sequence number (for debugging)
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(t.currentSeq.Load())
}
