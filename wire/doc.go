// Package wire implements the client-side subset of the WebSocket
// framing defined in RFC 6455, section 5: encoding payloads into single
// masked frames and incrementally decoding a raw byte stream back into
// frames.
//
// The codec is stateless. Encoding always produces one final frame with
// a fresh random masking key:
//
//	frame, err := wire.EncodeText([]byte("hello"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = conn.Write(frame)
//
// Decoding is incremental and never consumes a partial frame. Callers
// accumulate raw socket bytes in a buffer, decode, and drop only what
// was consumed:
//
//	buf = append(buf, chunk...)
//	frames, n, err := wire.Decode(buf)
//	if err != nil {
//	    // framing violation; the stream cannot be resynchronized
//	}
//	buf = buf[n:]
//
// After every Decode pass the remaining buffer is either empty or the
// prefix of exactly one incomplete frame, so partial TCP reads can be
// fed in as they arrive.
//
// Scope:
//
// Fragmented messages are never produced, and reassembly of incoming
// continuation frames is not attempted. Extensions are not supported:
// any RSV bit set is a protocol error. The 64-bit extended payload
// length is honored only up to 4 GiB.
package wire
