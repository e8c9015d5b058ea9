package cluster

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at every I/O boundary. Callers test them with
// errors.Is; concrete errors wrap one of these with context.
var (
	// ErrConnection covers accept, connect, send and receive failures.
	ErrConnection = errors.New("connection failure")

	// ErrConnectionClosed is a clean close by the peer before a new frame
	// started. It is also an ErrConnection.
	ErrConnectionClosed = fmt.Errorf("%w: closed by peer", ErrConnection)

	// ErrFraming covers short length prefixes, truncated payloads, oversized
	// frames and payloads that do not have the expected message shape.
	ErrFraming = errors.New("protocol framing error")

	// ErrValidation covers well-formed messages with bad content: cell values
	// outside {0,1,2}, inconsistent regions, or a row count that does not
	// match the assigned band.
	ErrValidation = errors.New("validation error")
)
