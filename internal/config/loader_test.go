package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baaaht/fifoipc/pkg/types"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  format: text
queue:
  dir: /var/tmp
  prefix: gears
  inbound_timeout: 30s
  sweep_every: 5
  passthrough_signals: [SIGUSR1]
  codec: proto
health:
  enabled: true
  socket_path: /var/tmp/health.sock
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output, "unset fields keep defaults")
	assert.Equal(t, "/var/tmp", cfg.Queue.Dir)
	assert.Equal(t, "gears", cfg.Queue.Prefix)
	assert.Equal(t, 30*time.Second, cfg.Queue.InboundTimeout)
	assert.Equal(t, DefaultOutboundTimeout, cfg.Queue.OutboundTimeout)
	assert.Equal(t, 5, cfg.Queue.SweepEvery)
	assert.True(t, cfg.Queue.CatchSignals, "omitted booleans keep defaults")
	assert.Equal(t, []string{"SIGUSR1"}, cfg.Queue.PassthroughSignals)
	assert.Equal(t, "proto", cfg.Queue.Codec)
	assert.True(t, cfg.Health.Enabled)
}

func TestLoadFromFileExplicitFalse(t *testing.T) {
	path := writeConfig(t, "config.yml", "queue:\n  catch_signals: false\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Queue.CatchSignals)
}

func TestLoadFromFileInterpolation(t *testing.T) {
	t.Setenv("FIFO_TEST_DIR", "/srv/fifo")

	path := writeConfig(t, "config.yaml", `
queue:
  dir: ${FIFO_TEST_DIR}
  prefix: ${FIFO_TEST_PREFIX:-fallback}
health:
  socket_path: ${FIFO_TEST_DIR}/health.sock
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/fifo", cfg.Queue.Dir)
	assert.Equal(t, "fallback", cfg.Queue.Prefix)
	assert.Equal(t, "/srv/fifo/health.sock", cfg.Health.SocketPath)
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
	}{
		{name: "wrong extension", file: "config.json", content: "{}", wantCode: types.ErrCodeInvalidArgument},
		{name: "empty file", file: "config.yaml", content: "", wantCode: types.ErrCodeInvalid},
		{name: "whitespace only", file: "config.yaml", content: "  \n\t\n", wantCode: types.ErrCodeInvalid},
		{name: "bad syntax", file: "config.yaml", content: "queue: [unclosed", wantCode: types.ErrCodeInvalid},
		{name: "type error", file: "config.yaml", content: "queue:\n  sweep_every: lots\n", wantCode: types.ErrCodeInvalid},
		{name: "invalid values", file: "config.yaml", content: "queue:\n  codec: gob\n", wantCode: types.ErrCodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeNotFound))
}

func TestLoadLayersEnvOverFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "queue:\n  prefix: fromfile\n  dir: /var/tmp\n")
	t.Setenv(EnvQueuePrefix, "fromenv")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Queue.Prefix)
	assert.Equal(t, "/var/tmp", cfg.Queue.Dir)
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("FIFO_A", "alpha")

	assert.Equal(t, "alpha", interpolateEnvVars("${FIFO_A}"))
	assert.Equal(t, "x-alpha-y", interpolateEnvVars("x-${FIFO_A}-y"))
	assert.Equal(t, "dflt", interpolateEnvVars("${FIFO_UNSET_VAR:-dflt}"))
	assert.Equal(t, "", interpolateEnvVars("${FIFO_UNSET_VAR}"))
	assert.Equal(t, "plain", interpolateEnvVars("plain"))
}
