package protocol

import (
	"encoding/binary"

	"github.com/signalforge/capture-core/internal/capture"
)

// timestampSize is the wire size of one burst-boundary timestamp.
const timestampSize = 8

// DecodeResult decodes a capture payload into samples and burst timestamps.
//
// The payload holds up to expectedSamples sample words sized by the capture
// mode. When measureBursts is set, whatever follows the sample block is
// interpreted as a run of 8-byte little-endian burst timestamps (a full
// capture carries 16 bytes: the burst start and end markers).
//
// Truncated captures are not an error: the decoder returns every sample and
// timestamp that is fully present and silently drops a trailing partial
// word. It never assumes alignment.
func DecodeResult(payload []byte, mode capture.Mode, expectedSamples int, measureBursts bool) *capture.Result {
	width := mode.SampleWidth()

	n := len(payload) / width
	if expectedSamples >= 0 && n > expectedSamples {
		n = expectedSamples
	}

	result := &capture.Result{Samples: make([]uint32, n)}
	for i := 0; i < n; i++ {
		result.Samples[i] = decodeWord(payload[i*width:], width)
	}

	if !measureBursts {
		return result
	}

	tail := payload[n*width:]
	count := len(tail) / timestampSize
	result.Timestamps = make([]uint64, count)
	for i := 0; i < count; i++ {
		result.Timestamps[i] = binary.LittleEndian.Uint64(tail[i*timestampSize:])
	}
	return result
}

// decodeWord reads one little-endian sample word of the given width.
func decodeWord(b []byte, width int) uint32 {
	switch width {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	}
}
