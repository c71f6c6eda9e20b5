package worker

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(bootstrap.LoggingConfig{Level: "fatal", Format: "json"})
	require.NoError(t, err)
	return log
}

func TestConfigSource_ReloadAppliesValidChange(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/cfg.json", []byte(validConfig), 0o644)

	c, err := newConfigSource(fs, "/cfg.json", "/home/alice", newTestLogger(t))
	require.NoError(t, err)

	updated := `{"Backup":{"Jobs":[
		{"Name":"docs","Source":"/src","Destination":"/dst","Include":["*.txt"]},
		{"Name":"photos","Source":"/photos","Destination":"/dst2","Include":["*.jpg"]}
	]}}`
	afero.WriteFile(fs, "/cfg.json", []byte(updated), 0o644)

	require.NoError(t, c.reload())

	snapshot := c.Snapshot()
	assert.Len(t, snapshot.Backup.Jobs, 2)
}

func TestConfigSource_ReloadKeepsPreviousSnapshotOnInvalidChange(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/cfg.json", []byte(validConfig), 0o644)

	c, err := newConfigSource(fs, "/cfg.json", "/home/alice", newTestLogger(t))
	require.NoError(t, err)

	afero.WriteFile(fs, "/cfg.json", []byte("{ broken"), 0o644)

	assert.Error(t, c.reload(), "expected reload to reject malformed JSON")

	snapshot := c.Snapshot()
	assert.Len(t, snapshot.Backup.Jobs, 1, "expected previous snapshot to survive a failed reload")
}
