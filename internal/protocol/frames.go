package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Framing selects the envelope variant for a transport.
type Framing int

// Framing variants.
const (
	// FramingNetwork frames messages with a 4-byte LE length prefix only.
	FramingNetwork Framing = iota

	// FramingSerial prepends the 2-byte magic 0xAA55 to the length prefix
	// and permits garbage bytes between frames.
	FramingSerial
)

// Frame layout constants.
const (
	// magicByte0 and magicByte1 are the serial frame magic 0xAA55 as it
	// appears on the wire.
	magicByte0 = 0xAA
	magicByte1 = 0x55

	// lengthSize is the size of the length prefix.
	lengthSize = 4

	// magicSize is the size of the serial magic.
	magicSize = 2

	// MaxFramePayload caps the declared payload length. A 24-channel
	// capture of several million samples fits comfortably; anything larger
	// indicates a desynced stream.
	MaxFramePayload = 16 << 20 // 16MB
)

// EncodeFrame wraps a payload in the envelope for the given framing.
func EncodeFrame(framing Framing, payload []byte) []byte {
	header := lengthSize
	if framing == FramingSerial {
		header += magicSize
	}

	out := make([]byte, header+len(payload))
	pos := 0
	if framing == FramingSerial {
		out[0] = magicByte0
		out[1] = magicByte1
		pos = magicSize
	}
	binary.LittleEndian.PutUint32(out[pos:], uint32(len(payload)))
	copy(out[pos+lengthSize:], payload)
	return out
}

// FrameAccumulator reassembles frames from a byte stream delivered in
// arbitrary chunks.
//
// Push buffered bytes in as they arrive; complete payloads come back out.
// The accumulator is not safe for concurrent use; each transport owns one.
type FrameAccumulator struct {
	framing Framing
	buf     []byte

	// discarded counts out-of-band bytes dropped while hunting for the
	// serial magic.
	discarded uint64
}

// NewFrameAccumulator creates an accumulator for the given framing.
func NewFrameAccumulator(framing Framing) *FrameAccumulator {
	return &FrameAccumulator{framing: framing}
}

// Discarded returns the number of out-of-band bytes dropped so far.
func (a *FrameAccumulator) Discarded() uint64 {
	return a.discarded
}

// Pending returns the number of buffered bytes not yet part of a complete
// frame.
func (a *FrameAccumulator) Pending() int {
	return len(a.buf)
}

// Push appends a chunk to the internal buffer and returns every payload
// that is now complete, in arrival order. Each returned payload is an
// independent copy.
//
// A declared length above MaxFramePayload returns ErrFrameTooLarge: the
// stream cannot be resynchronized safely and the caller must reconnect.
func (a *FrameAccumulator) Push(chunk []byte) ([][]byte, error) {
	a.buf = append(a.buf, chunk...)

	var frames [][]byte
	for {
		payload, err := a.next()
		if err != nil {
			return frames, err
		}
		if payload == nil {
			return frames, nil
		}
		frames = append(frames, payload)
	}
}

// next extracts one complete payload from the buffer, or returns nil when
// more bytes are needed.
func (a *FrameAccumulator) next() ([]byte, error) {
	if a.framing == FramingSerial {
		a.syncToMagic()
	}

	header := lengthSize
	if a.framing == FramingSerial {
		header += magicSize
	}
	if len(a.buf) < header {
		return nil, nil
	}

	lengthAt := 0
	if a.framing == FramingSerial {
		lengthAt = magicSize
	}
	declared := binary.LittleEndian.Uint32(a.buf[lengthAt:])
	if declared > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, declared)
	}

	total := header + int(declared)
	if len(a.buf) < total {
		return nil, nil
	}

	payload := make([]byte, declared)
	copy(payload, a.buf[header:total])
	a.buf = a.buf[total:]
	return payload, nil
}

// syncToMagic drops buffered bytes until the buffer starts with the frame
// magic, or until fewer than two bytes remain.
func (a *FrameAccumulator) syncToMagic() {
	for {
		if len(a.buf) == 0 {
			return
		}
		idx := bytes.IndexByte(a.buf, magicByte0)
		if idx < 0 {
			a.discarded += uint64(len(a.buf))
			a.buf = a.buf[:0]
			return
		}
		if idx > 0 {
			a.discarded += uint64(idx)
			a.buf = a.buf[idx:]
		}
		if len(a.buf) < magicSize {
			return // Need one more byte to confirm the magic.
		}
		if a.buf[1] == magicByte1 {
			return
		}
		// 0xAA not followed by 0x55: skip it and keep hunting.
		a.discarded++
		a.buf = a.buf[1:]
	}
}
