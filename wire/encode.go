package wire

// Encode serializes payload into a single masked frame with the given
// opcode per RFC 6455, section 5.2. The frame is always final (FIN=1);
// this package never produces fragmented messages. A fresh masking key
// is drawn for every call. The returned slice is the complete wire form,
// suitable for a single Write call.
func Encode(op Opcode, payload []byte) ([]byte, error) {
	if !op.isValid() {
		return nil, ErrInvalidOpcode
	}
	if op.IsControl() && len(payload) > maxControlFramePayloadSize {
		return nil, ErrControlFramePayloadTooBig
	}

	buf := make([]byte, 0, maxFrameHeaderSize+len(payload))
	buf = append(buf, byte(op)|finalBit)

	// Payload length uses one of three encodings per RFC 6455, section 5.2.
	n := len(payload)
	switch {
	case n <= 125:
		buf = append(buf, byte(n)|maskBit)
	case n <= 65535:
		buf = append(buf, payloadLen16|maskBit, byte(n>>8), byte(n))
	default:
		buf = append(buf, payloadLen64|maskBit,
			byte(uint64(n)>>56), byte(uint64(n)>>48), byte(uint64(n)>>40), byte(uint64(n)>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}

	mask := newMaskKey()
	buf = append(buf, mask[:]...)

	start := len(buf)
	buf = append(buf, payload...)
	maskBytes(mask[:], 0, buf[start:])

	return buf, nil
}

// EncodeText serializes payload into a single masked text frame.
// The payload must be valid UTF-8; this is not checked here.
func EncodeText(payload []byte) ([]byte, error) {
	return Encode(OpcodeText, payload)
}

// EncodePong serializes a masked pong frame echoing a ping's payload
// verbatim per RFC 6455, section 5.5.3.
func EncodePong(payload []byte) ([]byte, error) {
	return Encode(OpcodePong, payload)
}

// EncodeClose returns a masked close frame with an empty payload: the
// minimal 6-byte form (2 header bytes plus the masking key).
func EncodeClose() []byte {
	frame, _ := Encode(OpcodeClose, nil)
	return frame
}
