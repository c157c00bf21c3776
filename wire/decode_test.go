package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textPayload returns n bytes of varied ASCII so offset mistakes in
// masking or length handling show up as corruption.
func textPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = 'a' + byte(i%26)
	}
	return payload
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
	}{
		{"Empty payload", 0},
		{"Short payload", 10},
		{"Largest 7-bit length", 125},
		{"Smallest 16-bit length", 126},
		{"Largest 16-bit length", 65535},
		{"Smallest 64-bit length", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := textPayload(tt.payloadLen)

			encoded, err := EncodeText(payload)
			require.NoError(t, err)

			frames, consumed, err := Decode(encoded)
			require.NoError(t, err)
			require.Len(t, frames, 1)

			assert.Equal(t, len(encoded), consumed)
			assert.True(t, frames[0].Final)
			assert.Equal(t, OpcodeText, frames[0].Opcode)
			assert.True(t, frames[0].Masked)
			assert.Equal(t, payload, frames[0].Payload)
		})
	}
}

func TestDecode64BitLengthBoundary(t *testing.T) {
	payload := textPayload(65536)

	encoded, err := EncodeText(payload)
	require.NoError(t, err)

	require.Equal(t, byte(payloadLen64), encoded[1]&payloadLenMask)
	assert.Equal(t, []byte{0, 0, 0, 0}, encoded[2:6], "high word of 64-bit length must be zero")
	assert.Equal(t, uint32(65536), binary.BigEndian.Uint32(encoded[6:10]))

	frames, consumed, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, len(encoded), consumed)
	assert.Len(t, frames[0].Payload, 65536)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestDecodeSplitAtEveryOffset(t *testing.T) {
	payloads := map[string][]byte{
		"Short frame":           textPayload(20),
		"Extended length frame": textPayload(200),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			encoded, err := EncodeText(payload)
			require.NoError(t, err)

			for split := 1; split < len(encoded); split++ {
				// First chunk holds a partial frame: nothing may be
				// consumed and nothing reported.
				frames, consumed, err := Decode(encoded[:split])
				require.NoError(t, err, "split at %d", split)
				require.Empty(t, frames, "split at %d", split)
				require.Zero(t, consumed, "split at %d", split)

				// Completing the buffer yields the one frame intact.
				buf := append([]byte{}, encoded[:split]...)
				buf = append(buf, encoded[split:]...)

				frames, consumed, err = Decode(buf)
				require.NoError(t, err, "split at %d", split)
				require.Len(t, frames, 1, "split at %d", split)
				require.Equal(t, len(encoded), consumed, "split at %d", split)
				require.Equal(t, payload, frames[0].Payload, "split at %d", split)
			}
		})
	}
}

func TestDecodeThreeChunkDelivery(t *testing.T) {
	encoded, err := EncodeText(textPayload(300))
	require.NoError(t, err)

	var buf []byte
	var got []Frame
	for _, chunk := range [][]byte{encoded[:3], encoded[3:150], encoded[150:]} {
		buf = append(buf, chunk...)

		frames, consumed, err := Decode(buf)
		require.NoError(t, err)
		buf = buf[consumed:]
		got = append(got, frames...)
	}

	require.Len(t, got, 1)
	assert.Equal(t, textPayload(300), got[0].Payload)
	assert.Empty(t, buf)
}

func TestDecodeUnmaskedFrame(t *testing.T) {
	// Server-style frame: no mask bit, payload in the clear.
	frame := []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}

	frames, consumed, err := Decode(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	assert.Equal(t, len(frame), consumed)
	assert.False(t, frames[0].Masked)
	assert.Equal(t, []byte("hello"), frames[0].Payload)
}

func TestDecodeMultipleFramesLeavePartial(t *testing.T) {
	first, err := EncodeText([]byte("first"))
	require.NoError(t, err)
	second, err := EncodeText([]byte("second"))
	require.NoError(t, err)
	third, err := EncodeText([]byte("third"))
	require.NoError(t, err)

	buf := append([]byte{}, first...)
	buf = append(buf, second...)
	buf = append(buf, third[:4]...)

	frames, consumed, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, []byte("first"), frames[0].Payload)
	assert.Equal(t, []byte("second"), frames[1].Payload)
	assert.Equal(t, len(first)+len(second), consumed, "partial frame prefix must remain")
}

func TestDecodeStopsAfterClose(t *testing.T) {
	closeFrame := EncodeClose()
	text, err := EncodeText([]byte("after close"))
	require.NoError(t, err)

	buf := append([]byte{}, closeFrame...)
	buf = append(buf, text...)

	frames, consumed, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	assert.Equal(t, OpcodeClose, frames[0].Opcode)
	assert.Equal(t, len(closeFrame), consumed, "bytes after a close frame are not consumed")
}

func TestDecodeNeedMoreData(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"Empty buffer", nil},
		{"Single byte", []byte{0x81}},
		{"Declared payload missing", []byte{0x81, 0x05, 'h', 'e'}},
		{"16-bit length header short", []byte{0x81, 126, 0x01}},
		{"64-bit length header short", []byte{0x81, 127, 0, 0, 0, 0, 0, 0, 1}},
		{"Mask key missing", []byte{0x81, 0x85, 0x12, 0x34}},
		{"Masked payload missing", []byte{0x81, 0x85, 0x12, 0x34, 0x56, 0x78, 'h'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, consumed, err := Decode(tt.buf)
			require.NoError(t, err)
			assert.Empty(t, frames)
			assert.Zero(t, consumed)
		})
	}
}

func TestDecodeProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{
			name:    "RSV1 set",
			buf:     []byte{0x81 | rsv1Bit, 0x00},
			wantErr: ErrReservedBits,
		},
		{
			name:    "RSV3 set",
			buf:     []byte{0x81 | rsv3Bit, 0x00},
			wantErr: ErrReservedBits,
		},
		{
			name:    "Reserved opcode",
			buf:     []byte{0x80 | 0x3, 0x00},
			wantErr: ErrInvalidOpcode,
		},
		{
			name:    "Fragmented ping",
			buf:     []byte{0x09, 0x00},
			wantErr: ErrFragmentedControlFrame,
		},
		{
			name:    "Control frame payload too big",
			buf:     []byte{0x89, 126, 0x00, 126},
			wantErr: ErrControlFramePayloadTooBig,
		},
		{
			name:    "64-bit length beyond 4 GiB",
			buf:     []byte{0x82, 127, 0, 0, 0, 1, 0, 0, 0, 0},
			wantErr: ErrFrameTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, consumed, err := Decode(tt.buf)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsProtocolError(err))
			assert.Empty(t, frames)
			assert.Zero(t, consumed)
		})
	}
}

func TestDecodeErrorAfterValidFrame(t *testing.T) {
	valid, err := EncodeText([]byte("ok"))
	require.NoError(t, err)

	buf := append([]byte{}, valid...)
	buf = append(buf, 0x81|rsv2Bit, 0x00)

	frames, consumed, err := Decode(buf)
	assert.ErrorIs(t, err, ErrReservedBits)
	require.Len(t, frames, 1, "frames before the violation are still reported")
	assert.Equal(t, []byte("ok"), frames[0].Payload)
	assert.Equal(t, len(valid), consumed)
}

func TestDecodeFrameDoesNotMutateInput(t *testing.T) {
	encoded, err := EncodeText([]byte("immutable"))
	require.NoError(t, err)

	original := append([]byte{}, encoded...)

	decoded, _, err := DecodeFrame(encoded)
	require.NoError(t, err)

	assert.Equal(t, original, encoded, "input buffer must not be unmasked in place")
	assert.Equal(t, []byte("immutable"), decoded.Payload)
}

func TestIsProtocolError(t *testing.T) {
	assert.True(t, IsProtocolError(ErrReservedBits))
	assert.True(t, IsProtocolError(ErrMaskedFrame))
	assert.False(t, IsProtocolError(nil))
	assert.False(t, IsProtocolError(assert.AnError))
}

func FuzzDecodeFrame(f *testing.F) {
	valid, _ := EncodeText([]byte("seed"))
	f.Add(valid)
	f.Add(EncodeClose())
	f.Add([]byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'})
	f.Add([]byte{0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, buf []byte) {
		frame, n, err := DecodeFrame(buf)

		if n < 0 || n > len(buf) {
			t.Errorf("consumed %d bytes of %d", n, len(buf))
		}
		if n == 0 && frame.Payload != nil {
			t.Errorf("nothing consumed but a payload was returned")
		}
		if err != nil && n != 0 {
			t.Errorf("error path consumed %d bytes", n)
		}
	})
}

func BenchmarkDecode(b *testing.B) {
	encoded, err := EncodeText(textPayload(512))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = Decode(encoded)
	}
}

func BenchmarkDecodeFragmentedDelivery(b *testing.B) {
	encoded, err := EncodeText(textPayload(4096))
	if err != nil {
		b.Fatal(err)
	}
	half := len(encoded) / 2
	b.ReportAllocs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := encoded[:half]
		if _, n, _ := Decode(buf); n != 0 {
			b.Fatal("consumed a partial frame")
		}
		_, _, _ = Decode(encoded)
	}
}
