package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/internal/config"
	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/diag"
	"github.com/baaaht/fifoipc/pkg/health"
	"github.com/baaaht/fifoipc/pkg/ipc"
)

var (
	serveHealthSocket string
	servePrintTypes   []int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a peer until interrupted",
	Long: `Run a peer that owns a FIFO and answers diag requests.

With the proto codec the peer answers ping, bigPing and the other diag
commands and exits on "quit". With the bytes codec it prints every message
of the types given by --type to stdout.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHealthSocket != "" {
		cfg.ApplyOverrides(config.OverrideOptions{HealthSocketPath: serveHealthSocket})
	}

	// Interrupts stop the peer gracefully, so the signal guard only cleans up
	// on them instead of re-raising.
	qcfg := cfg.Queue
	for _, sig := range []string{"INT", "TERM"} {
		if !slices.Contains(qcfg.PassthroughSignals, sig) {
			qcfg.PassthroughSignals = append(qcfg.PassthroughSignals, sig)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := ipc.New(qcfg, rootLog)
	if err != nil {
		return err
	}
	if err := q.Init(); err != nil {
		return err
	}
	defer q.Terminate()

	var quit <-chan struct{}
	if diag.RequireProto(q.Codec()) == nil {
		r := diag.NewResponder(q, rootLog)
		if err := q.RegisterHandler(diag.MessageType, r); err != nil {
			return err
		}
		quit = r.Quit()
	} else {
		for _, t := range servePrintTypes {
			if err := q.RegisterHandler(messageType(t), ipc.MessageHandlerFunc(printMessage)); err != nil {
				return err
			}
		}
	}

	if cfg.Health.Enabled {
		hs := health.NewServer(rootLog)
		l, err := health.NewListener(cfg.Health.SocketPath, hs, rootLog)
		if err != nil {
			return err
		}
		if err := l.Start(); err != nil {
			return err
		}
		defer l.Stop()
		hs.Track(ctx, q)
	}

	if path := configPath(); path != "" {
		r := config.NewReloader(path, cfg, rootLog.Slog())
		r.AddCallback(applyLogLevel)
		if err := r.Start(); err != nil {
			rootLog.Warn("Config reloading disabled", "path", path, "error", err)
		} else {
			defer r.Stop()
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), q.CurrentProcessID())
	rootLog.Info("Peer is running", "pid", q.CurrentProcessID(), "path", q.FifoPath(), "codec", q.Codec().Name())

	select {
	case <-ctx.Done():
		rootLog.Info("Interrupted, shutting down")
	case <-quit:
		rootLog.Info("Quit requested, shutting down")
	case <-q.Done():
		return fmt.Errorf("message queue stopped: %w", q.Err())
	}
	return nil
}

// applyLogLevel follows log level changes in the config file unless the
// level was pinned on the command line
func applyLogLevel(_ context.Context, c *config.Config) error {
	if logLevel != "" {
		return nil
	}
	level, err := logger.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	rootLog.SetLevel(level)
	return nil
}

func printMessage(_ context.Context, msg *ipc.Message) error {
	data, _ := msg.Payload.([]byte)
	_, err := fmt.Fprintf(os.Stdout, "%s\t%s\t%d\t%s\n", msg.Source, msg.Type, len(data), strconv.Quote(string(data)))
	return err
}

func init() {
	serveCmd.Flags().StringVar(&serveHealthSocket, "health-socket", "",
		"Serve gRPC health on this unix socket (enables health)")
	serveCmd.Flags().IntSliceVar(&servePrintTypes, "type", []int{1},
		"Message types to print with the bytes codec")
}
