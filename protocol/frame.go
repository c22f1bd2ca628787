package protocol

import "errors"

var (
	ErrNeedMore       = errors.New("incomplete message block")
	ErrBadFrame       = errors.New("malformed message block")
	ErrMessageTooLong = errors.New("message exceeds maximum block length")
)

// Frame is one decoded message block
type Frame struct {
	Seq     uint8
	Payload []byte // Aliases the scanned data
}

// AppendFrame appends a complete message block carrying payload to dst
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := MessageLengthMin + len(payload)
	if n > MessageLengthMax {
		return dst, ErrMessageTooLong
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}

// ScanFrame decodes the block at the start of data and reports how many bytes
// it used. ErrNeedMore means the block is not complete yet; ErrBadFrame means
// the stream lost synchronization.
func ScanFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrNeedMore
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, ErrBadFrame
	}
	if len(data) < n {
		return Frame{}, 0, ErrNeedMore
	}
	if data[n-1] != MessageValueSync {
		return Frame{}, 0, ErrBadFrame
	}
	body := data[:n-MessageTrailerSize]
	got := uint16(data[n-3])<<8 | uint16(data[n-2])
	if got != CRC16(body) {
		return Frame{}, 0, ErrBadFrame
	}
	return Frame{Seq: data[MessagePositionSeq], Payload: body[MessageHeaderSize:]}, n, nil
}

// skipToSync returns data after the first sync byte, or nil if there is none
func skipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}
