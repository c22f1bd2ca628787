package protocol

import "sync/atomic"

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware end of the link. It validates incoming blocks,
// acknowledges them and hands each command to the handler.
type Transport struct {
	synchronized atomic.Bool
	// Expected sequence from host (0x10-0x1F). ACKs and responses carry the same value.
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // Called when host reset is detected
	flushCallback func() // Called to push an ACK out immediately
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes as many complete blocks as input holds. Partial blocks
// stay in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized.Load() {
			var found bool
			data, found = skipToSync(data)
			if found {
				t.synchronized.Store(true)
				t.encodeAckNak()
			}
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
		if err != nil || frame.Seq&^MessageSeqMask != MessageDest {
			t.synchronized.Store(false)
			continue
		}
		data = data[n:]

		expected := uint8(t.nextSequence.Load())
		if frame.Seq == MessageDest && expected != MessageDest {
			// Host restarted its sequence
			t.nextSequence.Store(MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if frame.Seq == expected {
			t.nextSequence.Store(uint32(nextSeq(expected)))
			_ = t.parseFrame(frame.Payload)
		}
		// A mismatched sequence still gets an ACK, which acts as a NAK
		// carrying the sequence we expect.
		t.encodeAckNak()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches every command in one block payload
func (t *Transport) parseFrame(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking handler forces a resync instead of killing the firmware
			t.synchronized.Store(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synchronized.Store(false)
			return err
		}
		if t.handler == nil {
			return nil
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			// Handler errors drop the rest of the block but keep sync
			return err
		}
	}
	return nil
}

// encodeAckNak sends an empty block carrying the next expected sequence
func (t *Transport) encodeAckNak() {
	var buf [MessageLengthMin]byte
	ack, _ := AppendFrame(buf[:0], uint8(t.nextSequence.Load()), nil)
	t.output.Output(ack)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand encodes cmdID and its arguments into one block. Blocks that
// would exceed MessageLengthMax are dropped.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	if payload.CurPosition() > MessagePayloadMax {
		return
	}
	var buf [MessageLengthMax]byte
	msg, err := AppendFrame(buf[:0], uint8(t.nextSequence.Load()), payload.Result())
	if err != nil {
		return
	}
	t.output.Output(msg)
}

// Reset resets the transport state (useful after USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback to immediately flush ACK messages to USB
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
