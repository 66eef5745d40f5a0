package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baaaht/fifoipc/pkg/types"
)

// isolate points the default config path at a file that does not exist
func isolate(t *testing.T) {
	t.Helper()
	SetTestConfigPath(filepath.Join(t.TempDir(), "absent.yaml"))
	t.Cleanup(func() { SetTestConfigPath("") })
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/tmp", cfg.Queue.Dir)
	assert.Equal(t, "baaaht", cfg.Queue.Prefix)
	assert.Equal(t, 60*time.Second, cfg.Queue.InboundTimeout)
	assert.Equal(t, 60*time.Second, cfg.Queue.OutboundTimeout)
	assert.Equal(t, time.Millisecond, cfg.Queue.RetryInterval)
	assert.Equal(t, 20, cfg.Queue.SweepEvery)
	assert.True(t, cfg.Queue.CatchSignals)
	assert.Equal(t, "bytes", cfg.Queue.Codec)
	assert.False(t, cfg.Health.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeNotFound))
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)

	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "text")
	t.Setenv(EnvQueueDir, "/run/fifoipc")
	t.Setenv(EnvQueuePrefix, "peer")
	t.Setenv(EnvInboundTimeout, "5s")
	t.Setenv(EnvOutboundTimeout, "7s")
	t.Setenv(EnvCatchSignals, "false")
	t.Setenv(EnvCodec, "proto")
	t.Setenv(EnvHealthEnabled, "yes")
	t.Setenv(EnvHealthSocketPath, "/run/fifoipc/health.sock")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/run/fifoipc", cfg.Queue.Dir)
	assert.Equal(t, "peer", cfg.Queue.Prefix)
	assert.Equal(t, 5*time.Second, cfg.Queue.InboundTimeout)
	assert.Equal(t, 7*time.Second, cfg.Queue.OutboundTimeout)
	assert.False(t, cfg.Queue.CatchSignals)
	assert.Equal(t, "proto", cfg.Queue.Codec)
	assert.True(t, cfg.Health.Enabled)
	assert.Equal(t, "/run/fifoipc/health.sock", cfg.Health.SocketPath)
}

func TestLoadEnvBadDuration(t *testing.T) {
	isolate(t)
	t.Setenv(EnvInboundTimeout, "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty dir", func(c *Config) { c.Queue.Dir = "" }},
		{"relative dir", func(c *Config) { c.Queue.Dir = "tmp" }},
		{"prefix with slash", func(c *Config) { c.Queue.Prefix = "a/b" }},
		{"zero inbound timeout", func(c *Config) { c.Queue.InboundTimeout = 0 }},
		{"negative outbound timeout", func(c *Config) { c.Queue.OutboundTimeout = -time.Second }},
		{"retry interval too long", func(c *Config) { c.Queue.RetryInterval = 2 * time.Second }},
		{"sweep every zero", func(c *Config) { c.Queue.SweepEvery = 0 }},
		{"unknown codec", func(c *Config) { c.Queue.Codec = "gob" }},
		{"unknown signal", func(c *Config) { c.Queue.PassthroughSignals = []string{"SIGWINCH"} }},
		{"health without socket", func(c *Config) { c.Health.Enabled = true; c.Health.SocketPath = "" }},
		{"negative debounce", func(c *Config) { c.Peers.WatchDebounce = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
		})
	}
}

func TestQueueSignals(t *testing.T) {
	q := DefaultQueueConfig()
	q.PassthroughSignals = []string{"SIGUSR1", "usr2", "Sigalrm"}

	sigs, err := q.Signals()
	require.NoError(t, err)
	assert.Equal(t, []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGALRM}, sigs)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(OverrideOptions{
		LogLevel:         "warn",
		QueueDir:         "/var/run/ipc",
		QueuePrefix:      "x",
		Codec:            "proto",
		HealthSocketPath: "/tmp/h.sock",
	})

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/run/ipc", cfg.Queue.Dir)
	assert.Equal(t, "x", cfg.Queue.Prefix)
	assert.Equal(t, "proto", cfg.Queue.Codec)
	assert.True(t, cfg.Health.Enabled)
	assert.Equal(t, "/tmp/h.sock", cfg.Health.SocketPath)
}

func TestConfigString(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, "Dir: /tmp")
	assert.Contains(t, s, "Prefix: baaaht")
	assert.Contains(t, s, "Codec: bytes")
}
