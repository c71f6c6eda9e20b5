package bootstrap

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kellyelton/maxbackup/internal/errors"
)

// Common errors.
var (
	ErrEmptyValue         = errors.New("value cannot be empty")
	ErrDirectoryNotExists = errors.New("directory does not exist")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrInvalidAddress     = errors.New("invalid bind address")
)

// Validate checks that a fully loaded ServiceBootstrapConfig is usable.
func Validate(cfg *ServiceBootstrapConfig) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("dataDir: %w", ErrEmptyValue)
	}

	if err := checkDirWritable(cfg.DataDir); err != nil {
		return fmt.Errorf("dataDir: %w", err)
	}

	if cfg.PipeName == "" {
		return fmt.Errorf("pipeName: %w", ErrEmptyValue)
	}

	if strings.ContainsAny(cfg.PipeName, `/\`) {
		return fmt.Errorf("pipeName %q: %w", cfg.PipeName, ErrInvalidFormat)
	}

	if err := ValidateLogging(cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := ValidateDiagnostics(cfg.Diagnostics); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}

	return nil
}

// ValidateLogging validates the logging section.
func ValidateLogging(logging LoggingConfig) error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"error": true, "dpanic": true, "panic": true, "fatal": true,
	}

	if !validLevels[strings.ToLower(logging.Level)] {
		return fmt.Errorf("level %s: %w", logging.Level, ErrInvalidFormat)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(logging.Format)] {
		return fmt.Errorf("format %s: %w", logging.Format, ErrInvalidFormat)
	}

	if logging.Directory != "" {
		if err := checkDirWritable(logging.Directory); err != nil {
			return fmt.Errorf("directory: %w", err)
		}
	}

	if logging.MaxSizeMB < 0 {
		return fmt.Errorf("maxSizeMB must be non-negative")
	}

	if logging.MaxBackups < 0 {
		return fmt.Errorf("maxBackups must be non-negative")
	}

	if logging.MaxAgeDays < 0 {
		return fmt.Errorf("maxAgeDays must be non-negative")
	}

	return nil
}

// ValidateDiagnostics validates the diagnostics section.
func ValidateDiagnostics(diag DiagnosticsConfig) error {
	if !diag.Enabled {
		return nil
	}

	if diag.BindAddress == "" {
		return fmt.Errorf("bindAddress: %w", ErrEmptyValue)
	}

	host, _, err := net.SplitHostPort(diag.BindAddress)
	if err != nil {
		return fmt.Errorf("bindAddress %s: %w", diag.BindAddress, ErrInvalidAddress)
	}

	// Diagnostics never listens beyond loopback: it carries health and
	// metrics data, not an authenticated control plane.
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return fmt.Errorf("bindAddress %s must be loopback: %w", diag.BindAddress, ErrInvalidAddress)
	}

	return nil
}

// checkDirWritable checks that a directory exists and is writable, creating
// it if missing.
func checkDirWritable(path string) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
			return fmt.Errorf("%s: %w", path, ErrDirectoryNotExists)
		}
		fi, err = os.Stat(path)
	}
	if err != nil {
		return fmt.Errorf("accessing %s: %w", path, err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	tempFile := filepath.Join(path, ".maxbackup-write-test")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", path, err)
	}
	f.Close()
	os.Remove(tempFile)

	return nil
}
