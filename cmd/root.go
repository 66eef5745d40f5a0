package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/internal/config"
	"github.com/baaaht/fifoipc/internal/logger"
)

// Version is the CLI version
const Version = "0.1.0"

var (
	// CLI flags
	cfgFile     string
	logLevel    string
	logFormat   string
	logOutput   string
	queueDir    string
	queuePrefix string
	codecName   string

	// Global variables
	rootLog *logger.Logger
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fifoipc",
	Short: "Message passing between local processes over named pipes",
	Long: `fifoipc sends typed messages between processes on the same host. Every
process owns one named pipe in a shared directory, named after its process
id, and peers write packets into it.

Use "serve" to run a peer, "send" and "ping" to talk to one, and "peers" to
see who is around.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// setup loads the configuration and initializes the logger for every
// subcommand
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	if err := initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog.Debug("Configuration loaded", "config", cfg.String())
	return nil
}

// initLogger initializes the global logger from the resolved configuration
func initLogger(logCfg config.LoggingConfig) error {
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	rootLog = log
	logger.SetGlobal(log)
	return nil
}

// loadConfig loads the configuration from the config file and environment,
// then applies CLI overrides
func loadConfig() (*config.Config, error) {
	c, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	c.ApplyOverrides(config.OverrideOptions{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		LogOutput:   logOutput,
		QueueDir:    queueDir,
		QueuePrefix: queuePrefix,
		Codec:       codecName,
	})

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// configPath returns the config file in effect, or "" when none exists
func configPath() string {
	path := cfgFile
	if path == "" {
		p, err := config.GetDefaultConfigPath()
		if err != nil {
			return ""
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: ~/.config/fifoipc/config.yaml if present)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Queue flags
	rootCmd.PersistentFlags().StringVar(&queueDir, "dir", "",
		"Directory holding the FIFOs (default: /tmp)")
	rootCmd.PersistentFlags().StringVar(&queuePrefix, "prefix", "",
		"FIFO file name prefix (default: baaaht)")
	rootCmd.PersistentFlags().StringVar(&codecName, "codec", "",
		"Payload codec: bytes, proto (default: from config or env)")

	rootCmd.AddCommand(serveCmd, sendCmd, pingCmd, peersCmd, pathCmd, healthCmd)
}
