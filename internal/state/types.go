// Package state persists the service's durable per-user registration data:
// the set of registered sids, their config paths, and the daemon's
// protocol-level tunables.
package state

import "time"

// UserRegistration is one registered user's durable record.
type UserRegistration struct {
	Sid          string    `json:"sid"`
	Username     string    `json:"username"`
	ConfigPath   string    `json:"configPath"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// ServiceConfig is the full contents of the durable state file.
type ServiceConfig struct {
	PipeTimeoutSeconds           int                `json:"pipeTimeoutSeconds"`
	WorkerShutdownTimeoutSeconds int                `json:"workerShutdownTimeoutSeconds"`
	RegisteredUsers              []UserRegistration `json:"registeredUsers"`
}

// Defaults returns the ServiceConfig written the first time the state file
// is created.
func Defaults() ServiceConfig {
	return ServiceConfig{
		PipeTimeoutSeconds:           30,
		WorkerShutdownTimeoutSeconds: 60,
		RegisteredUsers:              []UserRegistration{},
	}
}

// IndexOf returns the index of the registration for sid, or -1.
func (c *ServiceConfig) IndexOf(sid string) int {
	for i := range c.RegisteredUsers {
		if c.RegisteredUsers[i].Sid == sid {
			return i
		}
	}
	return -1
}
