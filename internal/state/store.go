package state

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/spf13/afero"

	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

const (
	retryInitialBackoff = 100 * time.Millisecond
	retryMaxBackoff     = 1000 * time.Millisecond
	retryBudget         = 15 * time.Second
)

// Store persists a ServiceConfig as pretty-printed JSON on an afero.Fs. All
// loads and saves are serialized by a single process-wide binary semaphore;
// Store never opens the file outside that semaphore.
type Store struct {
	fs     afero.Fs
	path   string
	logger logger.Logger

	// sem is the binary semaphore guarding load/save. A buffered channel of
	// capacity 1 gives us a non-reentrant mutex with the same acquire/
	// release shape the supervisor's workerLock uses.
	sem chan struct{}
}

// NewStore constructs a Store backed by fs, persisting to path.
func NewStore(fs afero.Fs, path string, log logger.Logger) *Store {
	s := &Store{fs: fs, path: path, logger: log, sem: make(chan struct{}, 1)}
	s.sem <- struct{}{}
	return s
}

func (s *Store) lock() {
	<-s.sem
}

func (s *Store) unlock() {
	s.sem <- struct{}{}
}

// Load reads the state file, creating it with defaults if it does not yet
// exist.
func (s *Store) Load() (*ServiceConfig, error) {
	s.lock()
	defer s.unlock()

	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIO, "checking state file")
	}

	if !exists {
		defaults := Defaults()
		if err := s.saveLocked(&defaults); err != nil {
			return nil, err
		}
		return &defaults, nil
	}

	data, err := s.readWithRetry()
	if err != nil {
		return nil, err
	}

	var cfg ServiceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIO, "decoding state file")
	}

	return &cfg, nil
}

// Save overwrites the state file with cfg.
func (s *Store) Save(cfg *ServiceConfig) error {
	s.lock()
	defer s.unlock()

	return s.saveLocked(cfg)
}

// saveLocked writes cfg to disk. Callers must already hold the semaphore;
// Load's first-time-defaults path calls this directly to avoid
// self-deadlocking on Save.
func (s *Store) saveLocked(cfg *ServiceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return maxerrors.WrapWithCode(err, maxerrors.ErrIO, "encoding state file")
	}

	return s.writeWithRetry(data)
}

func (s *Store) readWithRetry() ([]byte, error) {
	return withBackoff(func() ([]byte, error) {
		return afero.ReadFile(s.fs, s.path)
	}, s.logger)
}

func (s *Store) writeWithRetry(data []byte) error {
	_, err := withBackoff(func() ([]byte, error) {
		return nil, afero.WriteFile(s.fs, s.path, data, 0o644)
	}, s.logger)
	return err
}

// withBackoff retries fn with exponential backoff (100ms, doubling, capped
// at 1000ms) until it succeeds or the 15s wall-clock budget is spent, at
// which point it raises Timeout.
func withBackoff[T any](fn func() (T, error), log logger.Logger) (T, error) {
	deadline := time.Now().Add(retryBudget)
	backoff := retryInitialBackoff

	var zero T
	for {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if time.Now().After(deadline) {
			return zero, maxerrors.WrapWithCode(err, maxerrors.ErrTimeout, "state store retry budget exceeded")
		}

		if log != nil {
			log.Warn("state store operation failed, retrying", logger.Error(err), logger.Duration("backoff", backoff))
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}
}
