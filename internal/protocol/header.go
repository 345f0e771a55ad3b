// ABOUTME: Length header that precedes every compressed payload
// ABOUTME: Two bytes, little-endian, signed, echoed back by the client
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderSize is the length header size in bytes
	HeaderSize = 2
	// MaxPayload is the largest payload length the header can carry
	MaxPayload = math.MaxInt16
)

// EncodeHeader encodes a payload length
func EncodeHeader(n int) ([]byte, error) {
	if n < 0 || n > MaxPayload {
		return nil, fmt.Errorf("%w: payload length %d does not fit the header", ErrProtocol, n)
	}
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(h, uint16(int16(n)))
	return h, nil
}

// DecodeHeader decodes a payload length and rejects values outside (0, max]
func DecodeHeader(h []byte, max int) (int, error) {
	if len(h) != HeaderSize {
		return 0, fmt.Errorf("%w: header is %d bytes", ErrProtocol, len(h))
	}
	n := int(int16(binary.LittleEndian.Uint16(h)))
	if n <= 0 || n > max {
		return 0, fmt.Errorf("%w: payload length %d out of range (max %d)", ErrProtocol, n, max)
	}
	return n, nil
}
