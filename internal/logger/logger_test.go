package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baaaht/fifoipc/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "json to stdout",
			cfg:     config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "text to stderr",
			cfg:     config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			cfg:     config.LoggingConfig{Level: "loud", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			cfg:     config.LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "empty output defaults to stderr",
			cfg:     config.LoggingConfig{Level: "info", Format: "json"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("New() returned nil logger without error")
			}
		})
	}
}

func TestNewDefaultLogger(t *testing.T) {
	l, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
	if l.GetLevel() != LevelInfo {
		t.Errorf("NewDefault() level = %v, want %v", l.GetLevel(), LevelInfo)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	l.With("component", "ipc_queue").Info("packet written", "dest", 4242, "bytes", 2024)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "packet written" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "ipc_queue" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["dest"] != float64(4242) {
		t.Errorf("dest = %v", entry["dest"])
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	l.WithGroup("fifo").Debug("opened", "path", "/tmp/x")

	out := buf.String()
	if !strings.Contains(out, "msg=opened") || !strings.Contains(out, "fifo.path=/tmp/x") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	root, err := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "text"})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	child := root.With("component", "worker")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}

	root.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug not written after SetLevel: %q", buf.String())
	}
	if !child.Enabled(LevelDebug) {
		t.Error("child should report debug enabled")
	}

	child.SetLevel(LevelError)
	if root.Enabled(LevelWarn) {
		t.Error("root should follow level set through child")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fifoipc.log")
	l, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("queue started", "pid", 1)
	derived := l.With("k", "v")
	if err := derived.Close(); err != nil {
		t.Fatalf("derived Close() error = %v", err)
	}
	l.Info("still open")

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("expected 2 log lines, got %d: %q", got, data)
	}
}

func TestGlobalLogger(t *testing.T) {
	orig := Global()
	t.Cleanup(func() { SetGlobal(orig) })

	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	SetGlobal(l)

	if Global() != l {
		t.Fatal("Global() did not return the logger passed to SetGlobal")
	}

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
	With("component", "x").Info("scoped")

	out := buf.String()
	for _, want := range []string{"msg=d", "msg=i", "msg=w", "msg=e", "component=x"} {
		if !strings.Contains(out, want) {
			t.Errorf("global output missing %q: %q", want, out)
		}
	}
}

func TestInitGlobal(t *testing.T) {
	orig := Global()
	t.Cleanup(func() { SetGlobal(orig) })

	if err := InitGlobal(config.LoggingConfig{Level: "bogus", Format: "json"}); err == nil {
		t.Fatal("InitGlobal() accepted an invalid level")
	}
	if Global() != orig {
		t.Fatal("failed InitGlobal replaced the global logger")
	}

	if err := InitGlobal(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"}); err != nil {
		t.Fatalf("InitGlobal() error = %v", err)
	}
	if Global().GetLevel() != LevelWarn {
		t.Errorf("global level = %v, want warn", Global().GetLevel())
	}
}
