package transport

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
)

func TestWriteMessage_ReadMessage_RoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	req := PipeRequest{Action: "REGISTER", Sid: "S-1-5-21-X", ConfigPath: "/home/x/cfg.json"}

	go func() {
		if err := WriteMessage(client, req, time.Second); err != nil {
			t.Errorf("WriteMessage failed: %v", err)
		}
	}()

	got, err := ReadMessage[PipeRequest](server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestReadMessage_RejectsZeroLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		lengthBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBuf, 0)
		client.Write(lengthBuf)
	}()

	_, err := ReadMessage[PipeRequest](server, time.Second)
	require.Error(t, err)
	assert.Equal(t, maxerrors.ErrProtocol, maxerrors.GetErrorCode(err))
}

func TestReadMessage_RejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		lengthBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBuf, MaxFrameBytes+1)
		client.Write(lengthBuf)
	}()

	_, err := ReadMessage[PipeRequest](server, time.Second)
	require.Error(t, err)
	assert.Equal(t, maxerrors.ErrProtocol, maxerrors.GetErrorCode(err))
}

func TestReadMessage_AcceptsMaxSizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// A message whose JSON encoding is exactly MaxFrameBytes must round trip.
	padding := make([]byte, MaxFrameBytes-30)
	for i := range padding {
		padding[i] = 'a'
	}
	req := PipeRequest{Action: "REGISTER", Sid: string(padding)}

	go func() {
		if err := WriteMessage(client, req, time.Second); err != nil {
			t.Errorf("WriteMessage failed: %v", err)
		}
	}()

	got, err := ReadMessage[PipeRequest](server, time.Second)
	require.NoError(t, err, "ReadMessage failed for boundary-sized frame")
	assert.Equal(t, req.Sid, got.Sid)
}

func TestWriteMessage_RejectsOversizedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	padding := make([]byte, MaxFrameBytes)
	for i := range padding {
		padding[i] = 'a'
	}

	err := WriteMessage(client, PipeRequest{Sid: string(padding)}, time.Second)
	require.Error(t, err)
	assert.Equal(t, maxerrors.ErrProtocol, maxerrors.GetErrorCode(err))
}

func TestReadMessage_EndOfStream(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	client.Close()

	_, err := ReadMessage[PipeRequest](server, time.Second)
	assert.Equal(t, io.EOF, err)
}

func TestReadMessage_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	_, err := ReadMessage[PipeRequest](server, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, maxerrors.ErrTimeout, maxerrors.GetErrorCode(err))
}

func TestReadMessage_CaseInsensitiveFields(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type looseRequest struct {
		Action string `json:"action"`
	}

	go func() {
		body := []byte(`{"ACTION":"status"}`)
		lengthBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBuf, uint32(len(body)))
		client.Write(lengthBuf)
		client.Write(body)
	}()

	got, err := ReadMessage[looseRequest](server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "status", got.Action)
}
