package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
)

// MaxFrameBytes is the largest JSON body a single frame may carry.
const MaxFrameBytes = 8192

// ReadMessage reads one length-prefixed JSON frame from conn and decodes it
// into a value of type T. It enforces the per-call deadline via
// SetReadDeadline rather than a goroutine, mirroring how the teacher
// configures net/http's ReadTimeout declaratively.
func ReadMessage[T any](conn Conn, timeout time.Duration) (T, error) {
	var zero T

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return zero, maxerrors.Wrap(err, "setting read deadline")
	}

	lengthBuf := make([]byte, 4)
	if err := readFull(conn, lengthBuf); err != nil {
		return zero, classifyReadError(err)
	}

	length := binary.LittleEndian.Uint32(lengthBuf)
	if length < 1 || length > MaxFrameBytes {
		return zero, maxerrors.WrapWithCode(
			fmt.Errorf("frame length %d outside [1, %d]", length, MaxFrameBytes),
			maxerrors.ErrProtocol, "reading frame",
		)
	}

	body := make([]byte, length)
	if err := readFull(conn, body); err != nil {
		return zero, classifyReadError(err)
	}

	var value T
	if err := json.Unmarshal(body, &value); err != nil {
		return zero, maxerrors.WrapWithCode(err, maxerrors.ErrProtocol, "decoding frame body")
	}

	return value, nil
}

// WriteMessage encodes value as JSON and writes it as one length-prefixed
// frame to conn.
func WriteMessage[T any](conn Conn, value T, timeout time.Duration) error {
	body, err := json.Marshal(value)
	if err != nil {
		return maxerrors.Wrap(err, "encoding frame body")
	}

	if len(body) > MaxFrameBytes {
		return maxerrors.WrapWithCode(
			fmt.Errorf("encoded frame is %d bytes, max is %d", len(body), MaxFrameBytes),
			maxerrors.ErrProtocol, "writing frame",
		)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return maxerrors.Wrap(err, "setting write deadline")
	}

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)

	if err := writeFull(conn, frame); err != nil {
		return classifyWriteError(err)
	}

	return nil
}

// readFull loops until buf is completely filled, as a single Read call may
// return fewer bytes than requested.
func readFull(conn Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return err
}

func writeFull(conn Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return maxerrors.WrapWithCode(err, maxerrors.ErrTimeout, "reading frame")
	}

	return maxerrors.WrapWithCode(err, maxerrors.ErrIO, "reading frame")
}

func classifyWriteError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return maxerrors.WrapWithCode(err, maxerrors.ErrTimeout, "writing frame")
	}

	return maxerrors.WrapWithCode(err, maxerrors.ErrIO, "writing frame")
}
