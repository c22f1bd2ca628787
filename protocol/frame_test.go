package protocol

import (
	"bytes"
	"testing"
)

func TestAppendFrame(t *testing.T) {
	msg, err := AppendFrame(nil, MessageDest, nil)
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	want := []byte{0x05, 0x10, 0x9E, 0x81, MessageValueSync}
	if !bytes.Equal(msg, want) {
		t.Errorf("Empty block = %x, expected %x", msg, want)
	}
}

func TestAppendFrameTooLong(t *testing.T) {
	if _, err := AppendFrame(nil, MessageDest, make([]byte, MessagePayloadMax+1)); err != ErrMessageTooLong {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
	if _, err := AppendFrame(nil, MessageDest, make([]byte, MessagePayloadMax)); err != nil {
		t.Errorf("Maximum payload should fit, got %v", err)
	}
}

func TestScanFrameRoundTrip(t *testing.T) {
	payload := []byte{0x03, 0x2A, 0x81, 0x00}
	msg, _ := AppendFrame([]byte{0xAA}, 0x13, payload)

	// The prefix byte is left alone
	frame, n, err := ScanFrame(msg[1:])
	if err != nil {
		t.Fatalf("ScanFrame failed: %v", err)
	}
	if n != len(msg)-1 {
		t.Errorf("Expected %d bytes consumed, got %d", len(msg)-1, n)
	}
	if frame.Seq != 0x13 {
		t.Errorf("Expected seq 0x13, got 0x%02x", frame.Seq)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Expected payload %x, got %x", payload, frame.Payload)
	}
}

func TestScanFrameErrors(t *testing.T) {
	good, _ := AppendFrame(nil, MessageDest, []byte{1, 2, 3})

	if _, _, err := ScanFrame(good[:3]); err != ErrNeedMore {
		t.Errorf("Short header: expected ErrNeedMore, got %v", err)
	}
	if _, _, err := ScanFrame(good[:len(good)-1]); err != ErrNeedMore {
		t.Errorf("Truncated block: expected ErrNeedMore, got %v", err)
	}

	badLen := append([]byte{}, good...)
	badLen[0] = 2
	if _, _, err := ScanFrame(badLen); err != ErrBadFrame {
		t.Errorf("Bad length: expected ErrBadFrame, got %v", err)
	}

	badCRC := append([]byte{}, good...)
	badCRC[3] ^= 0xFF
	if _, _, err := ScanFrame(badCRC); err != ErrBadFrame {
		t.Errorf("Bad CRC: expected ErrBadFrame, got %v", err)
	}

	badSync := append([]byte{}, good...)
	badSync[len(badSync)-1] = 0
	if _, _, err := ScanFrame(badSync); err != ErrBadFrame {
		t.Errorf("Bad sync: expected ErrBadFrame, got %v", err)
	}
}

func TestNextSeq(t *testing.T) {
	if got := nextSeq(0x10); got != 0x11 {
		t.Errorf("nextSeq(0x10) = 0x%02x", got)
	}
	if got := nextSeq(0x1F); got != 0x10 {
		t.Errorf("nextSeq(0x1F) = 0x%02x, expected wrap to 0x10", got)
	}
}
