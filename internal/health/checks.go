package health

import (
	"fmt"

	"github.com/kellyelton/maxbackup/internal/state"
)

// NewStateStoreCheck checks that the service state file can still be
// loaded, i.e. it can be read and parses. An existing file is only read,
// so this does not confirm that the data directory is still writable.
func NewStateStoreCheck(store *state.Store) CheckFunction {
	return func() Check {
		check := Check{
			Name:    "state-store",
			Status:  StatusDown,
			Details: make(map[string]string),
		}

		if _, err := store.Load(); err != nil {
			check.Details["error"] = fmt.Sprintf("failed to load service state: %v", err)
			return check
		}

		check.Status = StatusUp
		return check
	}
}

// WorkerStateFunc reports the live states of every registered worker,
// keyed by sid. It is satisfied by the supervisor without health importing
// the supervisor package's worker map directly.
type WorkerStateFunc func() map[string]string

// NewWorkerLivenessCheck reports DOWN if any registered worker is not in
// the Running state.
func NewWorkerLivenessCheck(states WorkerStateFunc) CheckFunction {
	return func() Check {
		check := Check{
			Name:    "workers",
			Status:  StatusUp,
			Details: make(map[string]string),
		}

		for sid, workerState := range states() {
			check.Details[sid] = workerState
			if workerState != "Running" {
				check.Status = StatusDown
			}
		}

		return check
	}
}
