package wire

import "encoding/binary"

// DecodeFrame parses at most one frame from the front of buf per
// RFC 6455, section 5.2. It returns the frame and the number of bytes it
// occupied. When buf holds less than one complete frame, DecodeFrame
// returns a zero Frame, zero consumed bytes, and a nil error: needing
// more data is not a failure, and nothing is consumed until a whole
// frame is present. A non-nil error means the stream cannot be
// resynchronized.
//
// The 64-bit extended length is read from bytes 6-9 only; payloads
// beyond 4 GiB are out of scope, and a nonzero high word fails with
// ErrFrameTooLarge rather than misframe the stream.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, nil
	}

	// Parse first byte: FIN, RSV1-3, opcode (RFC 6455, section 5.2).
	final := buf[0]&finalBit != 0
	if buf[0]&(rsv1Bit|rsv2Bit|rsv3Bit) != 0 {
		// RSV bits must be 0 when no extension is negotiated.
		return Frame{}, 0, ErrReservedBits
	}
	opcode := Opcode(buf[0] & opcodeMask)
	if !opcode.isValid() {
		return Frame{}, 0, ErrInvalidOpcode
	}

	masked := buf[1]&maskBit != 0
	payloadLen := int64(buf[1] & payloadLenMask)

	headerLen := 2
	switch payloadLen {
	case payloadLen16:
		if len(buf) < 4 {
			return Frame{}, 0, nil
		}
		payloadLen = int64(buf[2])<<8 | int64(buf[3])
		headerLen = 4
	case payloadLen64:
		if len(buf) < 10 {
			return Frame{}, 0, nil
		}
		if binary.BigEndian.Uint32(buf[2:6]) != 0 {
			return Frame{}, 0, ErrFrameTooLarge
		}
		payloadLen = int64(binary.BigEndian.Uint32(buf[6:10]))
		headerLen = 10
	}

	if opcode.IsControl() {
		if payloadLen > maxControlFramePayloadSize {
			return Frame{}, 0, ErrControlFramePayloadTooBig
		}
		if !final {
			return Frame{}, 0, ErrFragmentedControlFrame
		}
	}

	var mask []byte
	if masked {
		if len(buf) < headerLen+4 {
			return Frame{}, 0, nil
		}
		mask = buf[headerLen : headerLen+4]
		headerLen += 4
	}

	total := int64(headerLen) + payloadLen
	if int64(len(buf)) < total {
		return Frame{}, 0, nil
	}

	// Copy the payload out so the caller's buffer can be compacted or
	// reused; unmasking never mutates buf.
	payload := make([]byte, payloadLen)
	copy(payload, buf[headerLen:total])
	if masked {
		maskBytes(mask, 0, payload)
	}

	return Frame{
		Final:   final,
		Opcode:  opcode,
		Masked:  masked,
		Payload: payload,
	}, int(total), nil
}

// Decode parses all complete frames at the front of buf and reports how
// many bytes they occupied. Trailing bytes that form only part of a
// frame are left unconsumed for a later call, so feeding a stream in
// arbitrary chunks yields the same frames as feeding it whole.
//
// A close frame ends the stream: Decode stops there and leaves any
// following bytes unconsumed. On a protocol error, the frames decoded
// before the offending bytes are returned along with the error.
func Decode(buf []byte) ([]Frame, int, error) {
	var frames []Frame
	consumed := 0
	for len(buf)-consumed >= 2 {
		frame, n, err := DecodeFrame(buf[consumed:])
		if err != nil {
			return frames, consumed, err
		}
		if n == 0 {
			break
		}
		consumed += n
		frames = append(frames, frame)
		if frame.Opcode == OpcodeClose {
			break
		}
	}
	return frames, consumed, nil
}
