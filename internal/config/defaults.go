package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the fifoipc configuration directory
// Uses ~/.config/fifoipc/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "fifoipc"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

const (
	// Environment variable names
	EnvLogLevel         = "FIFOIPC_LOG_LEVEL"
	EnvLogFormat        = "FIFOIPC_LOG_FORMAT"
	EnvLogOutput        = "FIFOIPC_LOG_OUTPUT"
	EnvQueueDir         = "FIFOIPC_DIR"
	EnvQueuePrefix      = "FIFOIPC_PREFIX"
	EnvInboundTimeout   = "FIFOIPC_INBOUND_TIMEOUT"
	EnvOutboundTimeout  = "FIFOIPC_OUTBOUND_TIMEOUT"
	EnvCatchSignals     = "FIFOIPC_CATCH_SIGNALS"
	EnvCodec            = "FIFOIPC_CODEC"
	EnvHealthEnabled    = "FIFOIPC_HEALTH_ENABLED"
	EnvHealthSocketPath = "FIFOIPC_HEALTH_SOCKET"
)

const (
	// Default Logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Default Queue settings
	DefaultQueueDir        = "/tmp"
	DefaultQueuePrefix     = "baaaht"
	DefaultInboundTimeout  = 60 * time.Second
	DefaultOutboundTimeout = 60 * time.Second
	DefaultRetryInterval   = time.Millisecond
	DefaultSweepEvery      = 20
	DefaultCodec           = "bytes"

	// Default Health settings
	DefaultHealthSocketPath = "/tmp/fifoipc-health.sock"

	// Default Peers settings
	DefaultWatchDebounce = 100 * time.Millisecond
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: "stderr",
	}
}

// DefaultQueueConfig returns the default FIFO queue configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Dir:             DefaultQueueDir,
		Prefix:          DefaultQueuePrefix,
		InboundTimeout:  DefaultInboundTimeout,
		OutboundTimeout: DefaultOutboundTimeout,
		RetryInterval:   DefaultRetryInterval,
		SweepEvery:      DefaultSweepEvery,
		CatchSignals:    true,
		Codec:           DefaultCodec,
	}
}

// DefaultHealthConfig returns the default health service configuration
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Enabled:    false,
		SocketPath: DefaultHealthSocketPath,
	}
}

// DefaultPeersConfig returns the default peer discovery configuration
func DefaultPeersConfig() PeersConfig {
	return PeersConfig{
		WatchDebounce: DefaultWatchDebounce,
	}
}
