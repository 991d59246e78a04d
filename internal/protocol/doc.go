// Package protocol implements the capture wire protocol: the framing
// envelope, binary command encoding, and sample payload decoding shared by
// every driver that speaks to the reference hardware.
//
// # Framing
//
// Every message travels inside the same envelope in both directions:
//
//	serial:  [0xAA 0x55][4-byte LE length][payload]
//	network: [4-byte LE length][payload]
//
// The serial link is not self-delimiting, so frames carry a two-byte magic
// and the accumulator discards out-of-band bytes until it finds one. TCP
// preserves byte order and boundaries are recovered from the length prefix
// alone. A FrameAccumulator tolerates the transport delivering a frame
// across arbitrarily many partial chunks.
//
// # Commands
//
// A command payload is a 1-byte opcode followed by fixed-width
// little-endian fields. The capture-configuration command carries the
// trigger setup, sample counts, capture mode, and channel list; the
// remaining opcodes are parameterless or carry small fixed structures.
//
// # Sample Payloads
//
// A completed capture arrives as one frame whose payload holds N sample
// words sized by the capture mode (1/2/3 bytes for 8/16/24-channel mode),
// optionally followed by a block of 8-byte burst timestamps when the
// session requested burst measurement. DecodeResult never assumes
// alignment and tolerates truncated payloads by returning whatever samples
// and timestamps are fully present.
package protocol
