// Package worker implements the per-user backup worker (C6): a config
// hot-reload source, a rolling log sink, and a cycle/backoff loop driving
// the backup engine over a snapshot of the user's jobs.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/kellyelton/maxbackup/internal/backup"
	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

const (
	cycleInterval  = 10 * time.Second
	errorBackoff   = 60 * time.Second
	logRetainCount = 7
)

// Worker runs one registered user's backup jobs on a loop.
type Worker struct {
	sid      string
	username string
	home     string

	fs      afero.Fs
	engine  *backup.Engine
	logger  logger.Logger
	metrics metrics.Collector
	config  *configSource

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Worker. The initial configuration load must succeed;
// callers (the supervisor) treat a load failure as a start-time error.
func New(sid, username, configPath, home string, fs afero.Fs, probe backup.AttributeProbe, baseLogger logger.Logger, collector metrics.Collector) (*Worker, error) {
	logDir := filepath.Join(home, ".max", "logs")
	workerLog, err := logger.NewRotatingZapLogger(bootstrap.LoggingConfig{
		Level:      "info",
		Format:     "json",
		MaxBackups: logRetainCount,
		MaxAgeDays: logRetainCount,
		Compress:   false,
	}, logDir, "backup.log")
	if err != nil {
		workerLog = baseLogger
	}

	cfgSource, err := newConfigSource(fs, configPath, home, workerLog)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		sid:      sid,
		username: username,
		home:     home,
		fs:       fs,
		engine:   backup.NewEngine(fs, probe, workerLog),
		logger:   workerLog,
		metrics:  collector,
		config:   cfgSource,
		done:     make(chan struct{}),
	}
	w.setState(Starting)

	return w, nil
}

// Start launches the worker's background loop. It returns immediately;
// the loop runs until Stop is called or ctx is cancelled by the caller.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.config.watch(runCtx)
	go w.run(runCtx)
}

// Stop signals the worker to exit after its current file and waits up to
// timeout for it to do so.
func (w *Worker) Stop(timeout time.Duration) {
	if w.state.CompareAndSwap(int32(Running), int32(Stopping)) ||
		w.state.CompareAndSwap(int32(Starting), int32(Stopping)) {
		if w.metrics != nil {
			w.metrics.RecordWorkerState(w.sid, int(Stopping))
		}
	}
	if w.cancel != nil {
		w.cancel()
	}

	select {
	case <-w.done:
	case <-time.After(timeout):
		w.logger.Warn("worker did not stop within the shutdown deadline", logger.String("sid", w.sid))
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	if w.metrics != nil {
		w.metrics.RecordWorkerState(w.sid, int(s))
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(Stopped)

	w.setState(Running)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.runCycle(ctx); err != nil {
			w.logger.Error("backup cycle failed, backing off", logger.Error(err))
			if w.metrics != nil {
				w.metrics.RecordWorkerRestart(w.sid)
			}
			if !sleepCancellable(ctx, errorBackoff) {
				return
			}
			continue
		}

		if !sleepCancellable(ctx, cycleInterval) {
			return
		}
	}
}

// runCycle runs every job in the current configuration snapshot. A panic
// inside a job run is treated as an unhandled loop error per the recover,
// matching the "log and back off" rule for uncaught exceptions.
func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cyclePanic{value: r}
		}
	}()

	cfg := w.config.Snapshot()
	for _, job := range cfg.Backup.Jobs {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		result, runErr := w.engine.RunJob(ctx, job, w.home)
		if runErr != nil {
			w.logger.Error("run_job returned an error", logger.String("job", job.Name), logger.Error(runErr))
			continue
		}

		if w.metrics != nil {
			w.metrics.RecordBackupRun(job.Name, result.BackupCount, result.UpToDateCount,
				result.ErrorCount, result.MissingCount, result.BackupByteCount, time.Since(start))
		}
	}

	return nil
}

// sleepCancellable sleeps for d or returns false early if ctx is
// cancelled first.
func sleepCancellable(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type cyclePanic struct {
	value interface{}
}

func (p *cyclePanic) Error() string {
	return fmt.Sprintf("recovered panic in backup cycle: %v", p.value)
}
