package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/pkg/peers"
)

var peersWatch bool

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List processes with a FIFO in the directory",
	RunE:  runPeers,
}

func runPeers(cmd *cobra.Command, args []string) error {
	list, err := peers.List(cfg.Queue.Dir, cfg.Queue.Prefix)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range list {
		fmt.Fprintln(out, p)
	}
	if !peersWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return peers.Watch(ctx, cfg.Queue.Dir, cfg.Queue.Prefix, cfg.Peers.WatchDebounce, rootLog, func(e peers.Event) {
		fmt.Fprintln(out, e)
	})
}

func init() {
	peersCmd.Flags().BoolVarP(&peersWatch, "watch", "w", false, "Keep running and report peers joining and leaving")
}
