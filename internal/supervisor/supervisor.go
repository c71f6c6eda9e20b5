// Package supervisor owns the set of running per-user backup workers (C7):
// it serializes every register/unregister/status operation and all worker
// map mutations behind a single binary semaphore, mirroring the lock
// discipline internal/state.Store uses for the durable state file.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kellyelton/maxbackup/internal/backup"
	"github.com/kellyelton/maxbackup/internal/backupconfig"
	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
	"github.com/kellyelton/maxbackup/internal/identity"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/internal/pathexpand"
	"github.com/kellyelton/maxbackup/internal/state"
	"github.com/kellyelton/maxbackup/internal/transport"
	"github.com/kellyelton/maxbackup/internal/worker"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

// identityRetryInterval is how long the supervisor waits before retrying a
// worker start that failed because identity resolution returned nothing.
const identityRetryInterval = 60 * time.Second

// Supervisor owns sid -> *worker.Worker and the durable registration state
// that backs it.
type Supervisor struct {
	store    *state.Store
	resolver identity.Resolver
	fs       afero.Fs
	probe    backup.AttributeProbe
	logger   logger.Logger
	metrics  metrics.Collector

	sem     chan struct{} // workerLock: binary semaphore, buffered cap 1
	workers map[string]*worker.Worker
}

// New constructs a Supervisor with an empty worker map.
func New(store *state.Store, resolver identity.Resolver, fs afero.Fs, probe backup.AttributeProbe, log logger.Logger, collector metrics.Collector) *Supervisor {
	s := &Supervisor{
		store:    store,
		resolver: resolver,
		fs:       fs,
		probe:    probe,
		logger:   log,
		metrics:  collector,
		sem:      make(chan struct{}, 1),
		workers:  make(map[string]*worker.Worker),
	}
	s.sem <- struct{}{}
	return s
}

func (s *Supervisor) lock()   { <-s.sem }
func (s *Supervisor) unlock() { s.sem <- struct{}{} }

// StartAllFromState starts a worker for every persisted registration,
// continuing past individual failures. Call once at service startup.
func (s *Supervisor) StartAllFromState(ctx context.Context) {
	s.lock()
	defer s.unlock()

	cfg, err := s.store.Load()
	if err != nil {
		s.logger.Error("failed to load service state at startup", logger.Error(err))
		return
	}

	for _, reg := range cfg.RegisteredUsers {
		if err := s.startWorkerLocked(ctx, reg); err != nil {
			s.logger.Warn("failed to start worker at startup",
				logger.String("sid", reg.Sid), logger.Error(err))
			if maxerrors.Is(err, maxerrors.ErrIdentityUnresolved) {
				s.scheduleRetryLocked(ctx, reg)
			}
		}
	}
}

// Register adds sid to the durable state and starts its worker.
func (s *Supervisor) Register(ctx context.Context, sid, username, configPath string) transport.PipeResponse {
	s.lock()
	defer s.unlock()

	cfg, err := s.store.Load()
	if err != nil {
		return transport.Err(fmt.Sprintf("failed to load service state: %v", err))
	}

	if cfg.IndexOf(sid) >= 0 {
		return transport.Err("already registered")
	}

	profile, err := s.resolver.Resolve(sid)
	if err != nil {
		return transport.Err(fmt.Sprintf("cannot resolve user profile: %v", err))
	}
	if profile == nil {
		return transport.Err("cannot resolve user profile")
	}

	raw, err := afero.ReadFile(s.fs, configPath)
	if err != nil {
		return transport.Err(fmt.Sprintf("failed to read backup config %q: %v", configPath, err))
	}

	expanded := pathexpand.JSONText(string(raw), profile.HomeDirectory)
	if _, validationErrs := backupconfig.ParseAndValidate(expanded); len(validationErrs) > 0 {
		return transport.ErrWithValidation("backup config failed validation", validationErrs)
	}

	reg := state.UserRegistration{
		Sid:          sid,
		Username:     username,
		ConfigPath:   configPath,
		RegisteredAt: time.Now().UTC(),
	}
	cfg.RegisteredUsers = append(cfg.RegisteredUsers, reg)

	if err := s.store.Save(cfg); err != nil {
		return transport.Err(fmt.Sprintf("failed to persist registration: %v", err))
	}

	if err := s.startWorkerLocked(ctx, reg); err != nil {
		s.logger.Warn("worker did not start at registration time",
			logger.String("sid", sid), logger.Error(err))
		if !maxerrors.Is(err, maxerrors.ErrIdentityUnresolved) {
			return transport.Err(fmt.Sprintf("registered %s but worker failed to start: %v", username, err))
		}
		s.scheduleRetryLocked(ctx, reg)
	}

	return transport.Success(fmt.Sprintf("Registered %s", username))
}

// Unregister stops sid's worker (within shutdownTimeout) and removes it
// from the durable state.
func (s *Supervisor) Unregister(sid, username string, shutdownTimeout time.Duration) transport.PipeResponse {
	s.lock()
	defer s.unlock()

	cfg, err := s.store.Load()
	if err != nil {
		return transport.Err(fmt.Sprintf("failed to load service state: %v", err))
	}

	idx := cfg.IndexOf(sid)
	if idx < 0 {
		return transport.Err("not registered")
	}

	s.stopWorkerLocked(sid, shutdownTimeout)

	cfg.RegisteredUsers = append(cfg.RegisteredUsers[:idx], cfg.RegisteredUsers[idx+1:]...)
	if err := s.store.Save(cfg); err != nil {
		return transport.Err(fmt.Sprintf("failed to persist unregistration: %v", err))
	}

	return transport.Success(fmt.Sprintf("Unregistered %s", username))
}

// Status reports a registered user's registration and worker state.
func (s *Supervisor) Status(sid, username string) transport.PipeResponse {
	s.lock()
	defer s.unlock()

	cfg, err := s.store.Load()
	if err != nil {
		return transport.Err(fmt.Sprintf("failed to load service state: %v", err))
	}

	idx := cfg.IndexOf(sid)
	if idx < 0 {
		return transport.Info(fmt.Sprintf("Not registered: %s", username))
	}
	reg := cfg.RegisteredUsers[idx]

	workerState := "Stopped"
	if w, ok := s.workers[sid]; ok && w.State() == worker.Running {
		workerState = "Running"
	}

	message := fmt.Sprintf(
		"Registered: Yes\nConfig: %s\nWorker: %s\nRegistered At: %s",
		reg.ConfigPath, workerState, reg.RegisteredAt.Format(time.RFC3339))

	return transport.Success(message)
}

// WorkerStates reports every running worker's current state string, keyed
// by sid. Satisfies health.WorkerStateFunc.
func (s *Supervisor) WorkerStates() map[string]string {
	s.lock()
	defer s.unlock()

	states := make(map[string]string, len(s.workers))
	for sid, w := range s.workers {
		states[sid] = w.State().String()
	}
	return states
}

// Shutdown stops every running worker in parallel, each bounded by
// perWorkerTimeout.
func (s *Supervisor) Shutdown(perWorkerTimeout time.Duration) {
	s.lock()
	defer s.unlock()

	var wg sync.WaitGroup
	for sid, w := range s.workers {
		wg.Add(1)
		go func(sid string, w *worker.Worker) {
			defer wg.Done()
			w.Stop(perWorkerTimeout)
		}(sid, w)
	}
	wg.Wait()

	s.workers = make(map[string]*worker.Worker)
}

// startWorkerLocked constructs and starts a worker for reg. Caller holds
// workerLock. It must never call Register/Unregister/Status.
func (s *Supervisor) startWorkerLocked(ctx context.Context, reg state.UserRegistration) error {
	profile, err := s.resolver.Resolve(reg.Sid)
	if err != nil || profile == nil {
		return maxerrors.WrapWithCode(maxerrors.New("no matching user profile"), maxerrors.ErrIdentityUnresolved, "resolving identity for %s", reg.Sid)
	}

	w, err := worker.New(reg.Sid, reg.Username, reg.ConfigPath, profile.HomeDirectory, s.fs, s.probe, s.logger, s.metrics)
	if err != nil {
		return maxerrors.Wrap(err, "starting worker for %s", reg.Sid)
	}

	w.Start(ctx)
	s.workers[reg.Sid] = w
	return nil
}

// stopWorkerLocked stops and removes sid's worker, if running. Caller
// holds workerLock.
func (s *Supervisor) stopWorkerLocked(sid string, timeout time.Duration) {
	w, ok := s.workers[sid]
	if !ok {
		return
	}
	w.Stop(timeout)
	delete(s.workers, sid)
}

// scheduleRetryLocked retries the worker start every identityRetryInterval
// until the worker starts, the registration is removed, a start fails for a
// reason other than identity resolution, or ctx is cancelled. Caller holds
// workerLock for the call itself; the spawned goroutine re-acquires it.
func (s *Supervisor) scheduleRetryLocked(ctx context.Context, reg state.UserRegistration) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(identityRetryInterval):
			}

			s.lock()
			_, running := s.workers[reg.Sid]
			cfg, err := s.store.Load()
			stillRegistered := err == nil && cfg.IndexOf(reg.Sid) >= 0

			if running || !stillRegistered {
				s.unlock()
				return
			}

			startErr := s.startWorkerLocked(ctx, reg)
			s.unlock()

			if startErr == nil {
				return
			}
			if !maxerrors.Is(startErr, maxerrors.ErrIdentityUnresolved) {
				s.logger.Warn("giving up retrying worker start after a non-identity failure",
					logger.String("sid", reg.Sid), logger.Error(startErr))
				return
			}
		}
	}()
}
