package wire

// Opcode identifies the interpretation of a frame's payload
// per RFC 6455, section 5.2.
type Opcode byte

// Opcodes defined in RFC 6455, section 11.8.
const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl reports whether the opcode denotes a control frame
// per RFC 6455, section 5.5.
func (op Opcode) IsControl() bool {
	return op >= OpcodeClose
}

// isValid reports whether the opcode is one RFC 6455, section 5.2
// defines. Opcodes 0x3-0x7 and 0xB-0xF are reserved.
func (op Opcode) isValid() bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	default:
		return false
	}
}

func (op Opcode) String() string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "reserved"
	}
}

// Frame is a single decoded WebSocket frame. Payload holds the
// application data with any masking already removed; Masked records
// whether the wire form carried a mask, so callers can enforce the
// direction rule (servers never mask, clients always do).
type Frame struct {
	Final   bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

// Frame header constants per RFC 6455, section 5.2.
const (
	maxFrameHeaderSize         = 14  // 2 bytes base + 8 bytes extended length + 4 bytes mask
	maxControlFramePayloadSize = 125 // RFC 6455, section 5.5: control frame payload <= 125 bytes

	// First byte bits (RFC 6455, section 5.2).
	finalBit = 1 << 7 // FIN bit indicates final fragment
	rsv1Bit  = 1 << 6 // RSV1 bit reserved for extensions
	rsv2Bit  = 1 << 5 // RSV2 bit reserved
	rsv3Bit  = 1 << 4 // RSV3 bit reserved

	// Second byte bits (RFC 6455, section 5.2).
	maskBit = 1 << 7 // MASK bit indicates payload is masked

	// Masks and length indicators (RFC 6455, section 5.2).
	opcodeMask     = 0x0f // Opcode occupies bits 0-3
	payloadLenMask = 0x7f // Payload length occupies bits 0-6
	payloadLen16   = 126  // Indicates 16-bit extended payload length follows
	payloadLen64   = 127  // Indicates 64-bit extended payload length follows
)
