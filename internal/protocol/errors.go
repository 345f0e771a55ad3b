// ABOUTME: Sentinel errors for handshake and streaming failures
// ABOUTME: Also classifies deadline expiry on either transport
package protocol

import (
	"errors"
	"net"
	"os"
)

var (
	// ErrHandshake means the handshake failed and no session exists
	ErrHandshake = errors.New("handshake failed")
	// ErrProtocol means a peer sent something the state machine does not allow
	ErrProtocol = errors.New("protocol violation")
	// ErrBadAck means a chunk was answered with something other than the ack
	ErrBadAck = errors.New("unexpected acknowledgement")
	// ErrHeaderMismatch means the echoed length header differed from the one sent
	ErrHeaderMismatch = errors.New("length header echo mismatch")
)

// IsTimeout reports whether err came from an expired deadline
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
