package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kellyelton/maxbackup/internal/bootstrap"
)

func TestRotatingZapLogger_Levels(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := bootstrap.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}

	logger, err := NewRotatingZapLogger(cfg, tmpDir, "test.log")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warn message", Bool("enabled", true))
	logger.Error("error message", Error(errors.New("test error")))

	if err := logger.Sync(); err != nil {
		t.Logf("Sync error (may be expected on some platforms): %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "test.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)

	expectedMessages := []string{
		"debug message",
		"info message",
		"warn message",
		"error message",
	}

	expectedFields := []string{
		`"key":"value"`,
		`"count":42`,
		`"enabled":true`,
		`"error":"test error"`,
	}

	for _, msg := range expectedMessages {
		if !strings.Contains(logContent, msg) {
			t.Errorf("Log content doesn't contain expected message: %s", msg)
		}
	}

	for _, field := range expectedFields {
		if !strings.Contains(logContent, field) {
			t.Errorf("Log content doesn't contain expected field: %s", field)
		}
	}
}

func TestRotatingZapLogger_WithFields(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := bootstrap.LoggingConfig{
		Level:  "info",
		Format: "json",
	}

	baseLogger, err := NewRotatingZapLogger(cfg, tmpDir, "test.log")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	contextLogger := baseLogger.WithFields(
		String("sid", "S-1-5-21-X"),
		Int("instance", 1),
	)

	contextLogger.Info("context log message")

	errLogger := contextLogger.WithError(errors.New("context error"))
	errLogger.Error("error with context")

	if err := baseLogger.Sync(); err != nil {
		t.Logf("Sync error (may be expected on some platforms): %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "test.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)

	expectedFields := []string{
		`"sid":"S-1-5-21-X"`,
		`"instance":1`,
		`"error":"context error"`,
	}

	for _, field := range expectedFields {
		if !strings.Contains(logContent, field) {
			t.Errorf("Log content doesn't contain expected field: %s", field)
		}
	}
}

func TestRotatingZapLogger_FormatTypes(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{name: "JSON format", format: "json"},
		{name: "Console format", format: "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			cfg := bootstrap.LoggingConfig{
				Level:  "info",
				Format: tt.format,
			}

			logger, err := NewRotatingZapLogger(cfg, tmpDir, "test.log")
			if err != nil {
				t.Fatalf("Failed to create logger: %v", err)
			}

			logger.Info("test message", String("format", tt.format))

			if err := logger.Sync(); err != nil {
				t.Logf("Sync error (may be expected on some platforms): %v", err)
			}

			if _, err := os.Stat(filepath.Join(tmpDir, "test.log")); os.IsNotExist(err) {
				t.Errorf("Log file was not created")
			}
		})
	}
}

func TestNewZapLogger_Stdout(t *testing.T) {
	cfg := bootstrap.LoggingConfig{Level: "info", Format: "json"}

	logger, err := NewZapLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message")
	if err := logger.Sync(); err != nil {
		t.Logf("Sync error (may be expected on some platforms): %v", err)
	}
}
