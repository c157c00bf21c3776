package wire

import (
	"crypto/rand"
	"io"
)

var randReader io.Reader = rand.Reader

// newMaskKey returns a fresh 4-byte masking key from a cryptographically
// strong random source per RFC 6455, section 5.3. Keys are never reused
// across frames.
func newMaskKey() [4]byte {
	var key [4]byte
	if _, err := io.ReadFull(randReader, key[:]); err != nil {
		panic(err)
	}
	return key
}

// maskBytes applies XOR masking to data per RFC 6455, section 5.3.
// The mask is a 4-byte value, applied cyclically to each byte of the
// payload starting at pos. Masking is its own inverse: applying the
// same mask twice restores the original bytes.
func maskBytes(mask []byte, pos int, data []byte) int {
	for i := range data {
		data[i] ^= mask[(pos+i)%4]
	}
	return (pos + len(data)) % 4
}
