package ipc

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/internal/identity"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/internal/state"
	"github.com/kellyelton/maxbackup/internal/supervisor"
	"github.com/kellyelton/maxbackup/internal/transport"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

type fakeResolver struct {
	profiles map[string]*identity.Profile
}

func (r *fakeResolver) Resolve(sid string) (*identity.Profile, error) {
	return r.profiles[sid], nil
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(bootstrap.LoggingConfig{Level: "fatal", Format: "json"})
	require.NoError(t, err)
	return log
}

const minimalConfig = `{"Backup":{"Jobs":[]}}`

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()

	home := t.TempDir()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/cfg.json", []byte(minimalConfig), 0o644)

	store := state.NewStore(fs, "/var/lib/maxbackup/config.json", testLogger(t))
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{
		"sid-1": {DisplayName: "alice", HomeDirectory: home},
	}}
	sup := supervisor.New(store, resolver, fs, nil, testLogger(t), metrics.NewCollector("noop"))

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server, err := Listen(socketPath, sup, resolver, store, testLogger(t), metrics.NewCollector("noop"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go server.Serve(ctx)

	cleanup := func() {
		cancel()
		server.Close()
	}

	return socketPath, cleanup
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	return conn
}

func readFinal(t *testing.T, conn net.Conn) transport.PipeResponse {
	t.Helper()
	var final transport.PipeResponse
	for {
		resp, err := transport.ReadMessage[transport.PipeResponse](conn, 5*time.Second)
		require.NoError(t, err)
		final = resp
		if resp.IsFinal {
			return final
		}
	}
}

func TestServer_RegisterThenStatus(t *testing.T) {
	socketPath, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, socketPath)
	require.NoError(t, transport.WriteMessage(conn, transport.PipeRequest{
		Action: "REGISTER", Sid: "sid-1", ConfigPath: "/cfg.json",
	}, 5*time.Second))

	final := readFinal(t, conn)
	conn.Close()

	require.Equal(t, transport.StatusSuccess, final.Status, "message: %s", final.Message)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statusConn := dial(t, socketPath)
		transport.WriteMessage(statusConn, transport.PipeRequest{Action: "STATUS", Sid: "sid-1"}, 5*time.Second)
		resp, err := transport.ReadMessage[transport.PipeResponse](statusConn, 5*time.Second)
		statusConn.Close()
		if err == nil && strings.Contains(resp.Message, "Worker: Running") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected status to report Worker: Running")
}

func TestServer_DuplicateRegistration(t *testing.T) {
	socketPath, cleanup := startTestServer(t)
	defer cleanup()

	register := func() transport.PipeResponse {
		conn := dial(t, socketPath)
		defer conn.Close()
		transport.WriteMessage(conn, transport.PipeRequest{Action: "REGISTER", Sid: "sid-1", ConfigPath: "/cfg.json"}, 5*time.Second)
		return readFinal(t, conn)
	}

	first := register()
	require.Equal(t, transport.StatusSuccess, first.Status, "message: %s", first.Message)

	second := register()
	assert.Equal(t, transport.StatusError, second.Status)
	assert.Contains(t, second.Message, "already registered")
}

func TestServer_UnknownAction(t *testing.T) {
	socketPath, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, socketPath)
	defer conn.Close()

	transport.WriteMessage(conn, transport.PipeRequest{Action: "FOO", Sid: "sid-1"}, 5*time.Second)
	resp, err := transport.ReadMessage[transport.PipeResponse](conn, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, transport.StatusError, resp.Status)
	assert.True(t, resp.IsFinal)
	assert.Contains(t, resp.Message, "Unknown action")
}

func TestServer_MalformedRequest(t *testing.T) {
	socketPath, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, socketPath)
	defer conn.Close()

	// Write a frame whose body is not valid JSON.
	transport.WriteMessage(conn, "not-an-object", 5*time.Second)

	resp, err := transport.ReadMessage[transport.PipeResponse](conn, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusError, resp.Status)
}
