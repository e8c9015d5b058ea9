package cluster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the payload length a reader accepts. A 10k×10k grid
// encodes to roughly 200 MiB.
const MaxFrameSize = 256 << 20

const headerSize = 4

// WriteFrame writes a 4-byte big-endian length prefix followed by payload in
// a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrFraming, len(payload), MaxFrameSize)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrConnection, err)
	}
	return nil
}

// ReadFrame reads exactly one frame. A clean EOF before the first header
// byte yields ErrConnectionClosed; a partial header or a payload cut short by
// the peer yields ErrFraming; any other read error is an ErrConnection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: short length prefix", ErrFraming)
		default:
			return nil, fmt.Errorf("%w: read length prefix: %v", ErrConnection, err)
		}
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrFraming, size, MaxFrameSize)
	}

	payload := make([]byte, size)
	if n, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: payload truncated at %d of %d bytes", ErrFraming, n, size)
		}
		return nil, fmt.Errorf("%w: read payload: %v", ErrConnection, err)
	}
	return payload, nil
}
