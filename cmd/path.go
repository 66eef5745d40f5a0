package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

var pathCmd = &cobra.Command{
	Use:   "path PID",
	Short: "Print the FIFO path of a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := types.ParseProcessID(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ipc.FifoPath(cfg.Queue.Dir, cfg.Queue.Prefix, pid))
		return nil
	},
}
