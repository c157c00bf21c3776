package wire

import "errors"

// Errors returned by the wire package. All of them mark the byte stream
// as unparsable: once a decoder returns one, the connection carrying the
// stream cannot be resynchronized and must be torn down.
var (
	ErrReservedBits              = errors.New("websocket: reserved bits set")
	ErrInvalidOpcode             = errors.New("websocket: invalid opcode")
	ErrFragmentedControlFrame    = errors.New("websocket: fragmented control frame")
	ErrControlFramePayloadTooBig = errors.New("websocket: control frame payload too big")
	ErrFrameTooLarge             = errors.New("websocket: frame payload length exceeds 4 GiB")
	ErrMaskedFrame               = errors.New("websocket: received masked frame from server")
)

// IsProtocolError returns true if the error indicates a violation of the
// RFC 6455 framing rules, as opposed to an I/O failure on the underlying
// transport.
func IsProtocolError(err error) bool {
	for _, sentinel := range []error{
		ErrReservedBits,
		ErrInvalidOpcode,
		ErrFragmentedControlFrame,
		ErrControlFramePayloadTooBig,
		ErrFrameTooLarge,
		ErrMaskedFrame,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
