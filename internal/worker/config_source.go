package worker

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/kellyelton/maxbackup/internal/backupconfig"
	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
	"github.com/kellyelton/maxbackup/internal/pathexpand"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

// debounceWindow collapses bursts of filesystem events (editors commonly
// write-then-rename) into a single reload.
const debounceWindow = 100 * time.Millisecond

// configSource holds the current validated BackupConfig snapshot for a
// worker and keeps it fresh via an fsnotify watch on the config file's
// directory. A reload failure leaves the previous snapshot in place.
type configSource struct {
	fs     afero.Fs
	path   string
	home   string
	logger logger.Logger

	mu      sync.RWMutex
	current *backupconfig.BackupConfig
}

// newConfigSource loads path once; the initial load must succeed.
func newConfigSource(fs afero.Fs, path, home string, log logger.Logger) (*configSource, error) {
	c := &configSource{fs: fs, path: path, home: home, logger: log}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot returns the current validated configuration.
func (c *configSource) Snapshot() backupconfig.BackupConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.current
}

// reload re-reads path, expands its JSON text against home, validates it,
// and swaps it in only on success.
func (c *configSource) reload() error {
	raw, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return maxerrors.WrapWithCode(err, maxerrors.ErrIO, "reading backup config %q", c.path)
	}

	expanded := pathexpand.JSONText(string(raw), c.home)

	cfg, validationErrs := backupconfig.ParseAndValidate(expanded)
	if len(validationErrs) > 0 {
		c.logger.Warn("backup config reload rejected, keeping previous snapshot",
			logger.String("path", c.path), logger.Int("errorCount", len(validationErrs)))
		return maxerrors.WrapWithCode(maxerrors.New("invalid backup config"), maxerrors.ErrValidation, "validating %q", c.path)
	}

	c.mu.Lock()
	c.current = cfg
	c.mu.Unlock()

	return nil
}

// watch runs until ctx is cancelled, reloading on debounced changes to
// path. It only works against a real OS filesystem; callers that operate
// on an in-memory afero.Fs (tests) should drive reload() directly instead.
func (c *configSource) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("failed to start config file watcher, hot reload disabled", logger.Error(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		c.logger.Warn("failed to watch config directory, hot reload disabled",
			logger.String("directory", dir), logger.Error(err))
		return
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				if err := c.reload(); err != nil {
					c.logger.Warn("config reload failed", logger.Error(err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("config watcher error", logger.Error(err))
		}
	}
}
