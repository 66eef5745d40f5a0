package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/pkg/codec"
	"github.com/baaaht/fifoipc/pkg/diag"
	"github.com/baaaht/fifoipc/pkg/ipc"
)

var (
	pingTo      int
	pingBig     bool
	pingCount   int
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Round-trip diag pings through a serving peer",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	dest, err := destination(pingTo)
	if err != nil {
		return err
	}

	q, err := ipc.New(cfg.Queue, rootLog, ipc.WithCodec(codec.Proto{}))
	if err != nil {
		return err
	}
	if err := q.Init(); err != nil {
		return err
	}
	defer q.Terminate()

	c := diag.NewCollector()
	if err := q.RegisterHandler(diag.MessageType, c); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	elapsed, err := diag.RoundTrip(ctx, q, c, dest, pingBig, pingCount)
	if err != nil {
		return err
	}

	kind := diag.Ping
	if pingBig {
		kind = diag.BigPing
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s replies from %s in %s (%s each)\n",
		pingCount, kind, dest, elapsed, elapsed/time.Duration(pingCount))
	return nil
}

func init() {
	pingCmd.Flags().IntVar(&pingTo, "to", 0, "Process id of a serving peer")
	pingCmd.Flags().BoolVar(&pingBig, "big", false, "Send multi-packet big pings")
	pingCmd.Flags().IntVar(&pingCount, "count", 1, "Number of pings")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "How long to wait for replies")
	_ = pingCmd.MarkFlagRequired("to")
}
