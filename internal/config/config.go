package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/baaaht/fifoipc/pkg/types"
)

// Config represents the complete configuration for a fifoipc peer
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Health  HealthConfig  `json:"health" yaml:"health"`
	Peers   PeersConfig   `json:"peers" yaml:"peers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// QueueConfig contains FIFO message queue configuration
type QueueConfig struct {
	// Dir holds every peer's inbound FIFO
	Dir string `json:"dir" yaml:"dir"`
	// Prefix is prepended to the process id in FIFO file names
	Prefix string `json:"prefix" yaml:"prefix"`
	// InboundTimeout evicts partially received messages idle for longer
	InboundTimeout time.Duration `json:"inbound_timeout" yaml:"inbound_timeout"`
	// OutboundTimeout abandons messages that made no progress for longer
	OutboundTimeout time.Duration `json:"outbound_timeout" yaml:"outbound_timeout"`
	// RetryInterval is the poll timeout while outbound data is pending
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
	// SweepEvery is the number of inbound passes between idle sweeps
	SweepEvery int `json:"sweep_every" yaml:"sweep_every"`
	// CatchSignals installs the cleanup signal guard
	CatchSignals bool `json:"catch_signals" yaml:"catch_signals"`
	// PassthroughSignals lists signals the application handles itself,
	// e.g. ["SIGUSR1"]. The guard cleans up on them but never re-raises.
	PassthroughSignals []string `json:"passthrough_signals,omitempty" yaml:"passthrough_signals,omitempty"`
	// Codec is the payload codec: bytes or proto
	Codec string `json:"codec" yaml:"codec"`
}

// HealthConfig contains gRPC health service configuration
type HealthConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	SocketPath string `json:"socket_path" yaml:"socket_path"`
}

// PeersConfig contains peer discovery configuration
type PeersConfig struct {
	WatchDebounce time.Duration `json:"watch_debounce" yaml:"watch_debounce"`
}

// applyDefaults fills in zero-valued config fields with their defaults
// This is called after loading from YAML to ensure partial configs have sensible defaults
func applyDefaults(cfg *Config) {
	defaultLogging := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defaultLogging.Output
	}

	defaultQueue := DefaultQueueConfig()
	if cfg.Queue.Dir == "" {
		cfg.Queue.Dir = defaultQueue.Dir
	}
	if cfg.Queue.Prefix == "" {
		cfg.Queue.Prefix = defaultQueue.Prefix
	}
	if cfg.Queue.InboundTimeout == 0 {
		cfg.Queue.InboundTimeout = defaultQueue.InboundTimeout
	}
	if cfg.Queue.OutboundTimeout == 0 {
		cfg.Queue.OutboundTimeout = defaultQueue.OutboundTimeout
	}
	if cfg.Queue.RetryInterval == 0 {
		cfg.Queue.RetryInterval = defaultQueue.RetryInterval
	}
	if cfg.Queue.SweepEvery == 0 {
		cfg.Queue.SweepEvery = defaultQueue.SweepEvery
	}
	if cfg.Queue.Codec == "" {
		cfg.Queue.Codec = defaultQueue.Codec
	}

	defaultHealth := DefaultHealthConfig()
	if cfg.Health.SocketPath == "" {
		cfg.Health.SocketPath = defaultHealth.SocketPath
	}

	defaultPeers := DefaultPeersConfig()
	if cfg.Peers.WatchDebounce == 0 {
		cfg.Peers.WatchDebounce = defaultPeers.WatchDebounce
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// This is used by both Load() and the config reloader.
func applyEnvOverrides(cfg *Config) error {
	// Logging
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	// Queue
	if v := os.Getenv(EnvQueueDir); v != "" {
		cfg.Queue.Dir = v
	}
	if v := os.Getenv(EnvQueuePrefix); v != "" {
		cfg.Queue.Prefix = v
	}
	if v := os.Getenv(EnvInboundTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvInboundTimeout, err)
		}
		cfg.Queue.InboundTimeout = d
	}
	if v := os.Getenv(EnvOutboundTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvOutboundTimeout, err)
		}
		cfg.Queue.OutboundTimeout = d
	}
	if v := os.Getenv(EnvCatchSignals); v != "" {
		cfg.Queue.CatchSignals = parseBool(v)
	}
	if v := os.Getenv(EnvCodec); v != "" {
		cfg.Queue.Codec = v
	}

	// Health
	if v := os.Getenv(EnvHealthEnabled); v != "" {
		cfg.Health.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvHealthSocketPath); v != "" {
		cfg.Health.SocketPath = v
	}

	return nil
}

func parseBool(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

// Default returns a configuration populated entirely with defaults
func Default() *Config {
	return &Config{
		Logging: DefaultLoggingConfig(),
		Queue:   DefaultQueueConfig(),
		Health:  DefaultHealthConfig(),
		Peers:   DefaultPeersConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (or the
// default config path when empty) if it exists, and environment overrides.
func Load(path string) (*Config, error) {
	var cfg *Config

	explicit := path != ""
	if !explicit {
		if p, err := GetDefaultConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		} else if explicit {
			return nil, types.WrapError(types.ErrCodeNotFound, "configuration file not found: "+path, err)
		}
	}

	if cfg == nil {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format))
	}

	if c.Queue.Dir == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "queue dir cannot be empty")
	}
	if !filepath.IsAbs(c.Queue.Dir) {
		return types.NewError(types.ErrCodeInvalidArgument, "queue dir must be absolute: "+c.Queue.Dir)
	}
	if strings.ContainsRune(c.Queue.Prefix, filepath.Separator) {
		return types.NewError(types.ErrCodeInvalidArgument, "queue prefix cannot contain a path separator")
	}
	if c.Queue.InboundTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "queue inbound timeout must be positive")
	}
	if c.Queue.OutboundTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "queue outbound timeout must be positive")
	}
	if c.Queue.RetryInterval <= 0 || c.Queue.RetryInterval > time.Second {
		return types.NewError(types.ErrCodeInvalidArgument, "queue retry interval must be in (0, 1s]")
	}
	if c.Queue.SweepEvery < 1 {
		return types.NewError(types.ErrCodeInvalidArgument, "queue sweep_every must be at least 1")
	}
	if c.Queue.Codec != "bytes" && c.Queue.Codec != "proto" {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid codec: %s (must be bytes or proto)", c.Queue.Codec))
	}
	if _, err := c.Queue.Signals(); err != nil {
		return err
	}

	if c.Health.Enabled && c.Health.SocketPath == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "health socket path cannot be empty when health is enabled")
	}

	if c.Peers.WatchDebounce < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "peers watch debounce cannot be negative")
	}

	return nil
}

// Signals resolves PassthroughSignals to signal values
func (c QueueConfig) Signals() ([]os.Signal, error) {
	out := make([]os.Signal, 0, len(c.PassthroughSignals))
	for _, name := range c.PassthroughSignals {
		sig, ok := signalNames[strings.TrimPrefix(strings.ToUpper(name), "SIG")]
		if !ok {
			return nil, types.NewError(types.ErrCodeInvalidArgument, "unknown passthrough signal: "+name)
		}
		out = append(out, sig)
	}
	return out, nil
}

var signalNames = map[string]os.Signal{
	"HUP":    syscall.SIGHUP,
	"INT":    syscall.SIGINT,
	"TERM":   syscall.SIGTERM,
	"USR1":   syscall.SIGUSR1,
	"USR2":   syscall.SIGUSR2,
	"PIPE":   syscall.SIGPIPE,
	"ALRM":   syscall.SIGALRM,
	"VTALRM": syscall.SIGVTALRM,
	"PROF":   syscall.SIGPROF,
	"IO":     syscall.SIGIO,
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, Queue: %s, Health: %s, Peers: %s}",
		c.Logging.String(),
		c.Queue.String(),
		c.Health.String(),
		c.Peers.String(),
	)
}

// ApplyOverrides applies CLI flag-style overrides to the configuration.
// Flags win over defaults, the YAML file and environment variables.
func (c *Config) ApplyOverrides(opts OverrideOptions) {
	if opts.LogLevel != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		c.Logging.Format = opts.LogFormat
	}
	if opts.LogOutput != "" {
		c.Logging.Output = opts.LogOutput
	}
	if opts.QueueDir != "" {
		c.Queue.Dir = opts.QueueDir
	}
	if opts.QueuePrefix != "" {
		c.Queue.Prefix = opts.QueuePrefix
	}
	if opts.Codec != "" {
		c.Queue.Codec = opts.Codec
	}
	if opts.HealthSocketPath != "" {
		c.Health.Enabled = true
		c.Health.SocketPath = opts.HealthSocketPath
	}
}

// OverrideOptions contains override options typically set via CLI flags
type OverrideOptions struct {
	LogLevel  string
	LogFormat string
	LogOutput string

	QueueDir    string
	QueuePrefix string
	Codec       string

	HealthSocketPath string
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}", c.Level, c.Format, c.Output)
}

func (c QueueConfig) String() string {
	return fmt.Sprintf("QueueConfig{Dir: %s, Prefix: %s, InboundTimeout: %s, OutboundTimeout: %s, RetryInterval: %s, SweepEvery: %d, CatchSignals: %v, Codec: %s}",
		c.Dir, c.Prefix, c.InboundTimeout, c.OutboundTimeout, c.RetryInterval, c.SweepEvery, c.CatchSignals, c.Codec)
}

func (c HealthConfig) String() string {
	return fmt.Sprintf("HealthConfig{Enabled: %v, SocketPath: %s}", c.Enabled, c.SocketPath)
}

func (c PeersConfig) String() string {
	return fmt.Sprintf("PeersConfig{WatchDebounce: %s}", c.WatchDebounce)
}
