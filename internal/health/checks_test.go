package health

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/internal/state"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(bootstrap.LoggingConfig{Level: "fatal", Format: "json"})
	require.NoError(t, err)
	return log
}

func TestStateStoreCheck_Up(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := state.NewStore(fs, "/var/lib/maxbackup/config.json", testLogger(t))

	check := NewStateStoreCheck(store)()
	assert.Equal(t, StatusUp, check.Status)
}

func TestStateStoreCheck_Down(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/var/lib/maxbackup/config.json", []byte("not json"), 0o644)
	store := state.NewStore(fs, "/var/lib/maxbackup/config.json", testLogger(t))

	check := NewStateStoreCheck(store)()
	assert.Equal(t, StatusDown, check.Status)
}

func TestWorkerLivenessCheck_AllRunning(t *testing.T) {
	check := NewWorkerLivenessCheck(func() map[string]string {
		return map[string]string{"sid-1": "Running", "sid-2": "Running"}
	})()
	assert.Equal(t, StatusUp, check.Status)
}

func TestWorkerLivenessCheck_OneStopped(t *testing.T) {
	check := NewWorkerLivenessCheck(func() map[string]string {
		return map[string]string{"sid-1": "Running", "sid-2": "Stopped"}
	})()
	assert.Equal(t, StatusDown, check.Status)
	assert.Equal(t, "Stopped", check.Details["sid-2"])
}
