// Package bootstrap loads and validates the daemon's own startup
// configuration: where it keeps state, what it names its IPC endpoint, how
// it logs, and whether it exposes a diagnostics surface. It deliberately
// knows nothing about backup jobs or users — that configuration lives in
// internal/backupconfig and internal/state.
package bootstrap

// ServiceBootstrapConfig is the top-level daemon configuration, normally
// loaded from a YAML file on disk and then overridden from the environment.
type ServiceBootstrapConfig struct {
	DataDir     string            `yaml:"dataDir" json:"dataDir"`
	PipeName    string            `yaml:"pipeName" json:"pipeName"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
}

// LoggingConfig controls the service log sink shared by pkg/logger.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Directory  string `yaml:"directory" json:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DiagnosticsConfig controls the loopback-only health/metrics HTTP surface.
type DiagnosticsConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	BindAddress string `yaml:"bindAddress" json:"bindAddress"`
}

// Defaults returns the configuration applied before a file or environment
// overrides are read.
func Defaults() ServiceBootstrapConfig {
	return ServiceBootstrapConfig{
		DataDir:  "/var/lib/maxbackup",
		PipeName: "MaxBackupPipe",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Directory:  "/var/log/maxbackup",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1:9827",
		},
	}
}
