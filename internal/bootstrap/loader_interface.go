package bootstrap

// Loader is the interface for loading the daemon's bootstrap configuration.
type Loader interface {
	// Load loads configuration from the loader's default source into cfg.
	Load(cfg *ServiceBootstrapConfig) error

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(filePath string, cfg *ServiceBootstrapConfig) error

	// LoadWithOverrides applies environment variable overrides onto cfg.
	LoadWithOverrides(cfg *ServiceBootstrapConfig) error
}
