package worker

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(bootstrap.LoggingConfig{Level: "fatal", Format: "json"})
	require.NoError(t, err)
	return log
}

const validConfig = `{
  "Backup": {
    "Jobs": [
      { "Name": "docs", "Source": "/src", "Destination": "/dst", "Include": ["*.txt"] }
    ]
  }
}`

func TestNew_LoadsInitialConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	home := t.TempDir()
	afero.WriteFile(fs, "/cfg.json", []byte(validConfig), 0o644)

	w, err := New("sid-1", "alice", "/cfg.json", home, fs, nil, testLogger(t), metrics.NewCollector("noop"))
	require.NoError(t, err)

	assert.Equal(t, Starting, w.State())

	snapshot := w.config.Snapshot()
	require.Len(t, snapshot.Backup.Jobs, 1)
	assert.Equal(t, "docs", snapshot.Backup.Jobs[0].Name)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	home := t.TempDir()
	afero.WriteFile(fs, "/cfg.json", []byte("not json"), 0o644)

	_, err := New("sid-1", "alice", "/cfg.json", home, fs, nil, testLogger(t), metrics.NewCollector("noop"))
	assert.Error(t, err)
}

func TestWorker_RunCycle_ExecutesJobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	home := t.TempDir()
	afero.WriteFile(fs, "/cfg.json", []byte(validConfig), 0o644)
	afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0o644)

	w, err := New("sid-1", "alice", "/cfg.json", home, fs, nil, testLogger(t), metrics.NewCollector("noop"))
	require.NoError(t, err)

	require.NoError(t, w.runCycle(context.Background()))

	exists, _ := afero.Exists(fs, "/dst/a.txt")
	assert.True(t, exists, "expected runCycle to have copied /src/a.txt to /dst/a.txt")
}

func TestWorker_StartAndStop(t *testing.T) {
	fs := afero.NewMemMapFs()
	home := t.TempDir()
	afero.WriteFile(fs, "/cfg.json", []byte(validConfig), 0o644)
	afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0o644)

	w, err := New("sid-1", "alice", "/cfg.json", home, fs, nil, testLogger(t), metrics.NewCollector("noop"))
	require.NoError(t, err)

	w.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for w.State() != Running && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, Running, w.State())

	w.Stop(2 * time.Second)

	assert.Equal(t, Stopped, w.State())
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Starting:  "Starting",
		Running:   "Running",
		Stopping:  "Stopping",
		Stopped:   "Stopped",
		State(99): "Unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
