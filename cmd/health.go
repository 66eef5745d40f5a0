package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/baaaht/fifoipc/pkg/health"
	"github.com/baaaht/fifoipc/pkg/types"
)

var (
	healthSocket  string
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the queue health of a serving peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		socket := healthSocket
		if socket == "" {
			socket = cfg.Health.SocketPath
		}

		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()

		st, err := health.Probe(ctx, socket, health.QueueService)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), st)
		if st != grpc_health_v1.HealthCheckResponse_SERVING {
			return types.NewError(types.ErrCodeUnavailable, "queue is "+st.String())
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthSocket, "socket", "", "Health socket path (default: from config)")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "Probe timeout")
}
