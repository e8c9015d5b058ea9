package cluster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"command":"stop"}`)

	require.NoError(t, WriteFrame(&buf, payload))
	assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestFrameAccumulatesShortReads feeds the reader one byte at a time to make
// sure payloads are assembled across many reads.
func TestFrameAccumulatesShortReads(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("abc"), 5000)
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(iotest.OneByteReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		kind  error
	}{
		{"clean close", nil, ErrConnectionClosed},
		{"short length prefix", []byte{0, 0}, ErrFraming},
		{"truncated payload", append([]byte{0, 0, 0, 10}, []byte("abc")...), ErrFraming},
		{"oversized frame", []byte{0xff, 0xff, 0xff, 0xff}, ErrFraming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestReadFrameConnectionError(t *testing.T) {
	boom := errors.New("reset by peer")
	_, err := ReadFrame(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrFraming)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFrameConnectionError(t *testing.T) {
	err := WriteFrame(failingWriter{}, []byte("x"))
	assert.ErrorIs(t, err, ErrConnection)
}

// TestRequestOverPipe exchanges a Work and a Result over an in-memory
// connection the way a coordinator and worker do.
func TestRequestOverPipe(t *testing.T) {
	coord, worker := net.Pipe()
	defer coord.Close()
	defer worker.Close()

	work := sampleWork()
	errc := make(chan error, 1)
	go func() {
		req, err := ReadRequest(worker)
		if err != nil {
			errc <- err
			return
		}
		w := req.(Work)
		from, to := w.Region.Interior()
		errc <- WriteResult(worker, Result{Rows: w.Region.Rows[from:to]})
	}()

	require.NoError(t, coord.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, WriteRequest(coord, work))
	res, err := ReadResult(coord)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, work.Region.Rows[1], res.Rows[0])
}
