package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/baaaht/fifoipc/pkg/codec"
	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

var (
	sendTo      int
	sendType    int
	sendData    string
	sendFile    string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send raw bytes to a peer",
	Example: `  fifoipc send --to 4242 --type 1 --data hello
  fifoipc send --to 4242 --file payload.bin`,
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	dest, err := destination(sendTo)
	if err != nil {
		return err
	}

	var data []byte
	switch {
	case sendFile != "" && sendData != "":
		return types.NewError(types.ErrCodeInvalidArgument, "--data and --file are mutually exclusive")
	case sendFile != "":
		data, err = os.ReadFile(sendFile)
		if err != nil {
			return types.WrapError(types.ErrCodeNotFound, "failed to read "+sendFile, err)
		}
	default:
		data = []byte(sendData)
	}

	q, err := ipc.New(cfg.Queue, rootLog, ipc.WithCodec(codec.Bytes{}))
	if err != nil {
		return err
	}
	if err := q.Init(); err != nil {
		return err
	}
	defer q.Terminate()

	if err := q.Send(dest, messageType(sendType), data); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		return err
	}

	stats := q.Stats()
	if stats.MessagesSent == 0 {
		return types.NewError(types.ErrCodeUnavailable, fmt.Sprintf("message to %s was dropped (%s)", dest, stats))
	}
	rootLog.Info("Message sent", "dest", dest, "type", sendType, "size", len(data), "packets", stats.PacketsSent)
	return nil
}

func destination(pid int) (types.ProcessID, error) {
	dest := types.ProcessID(pid)
	if !dest.IsValid() {
		return 0, types.NewError(types.ErrCodeInvalidArgument, "--to must name a process id")
	}
	return dest, nil
}

func messageType(t int) types.MessageType {
	return types.MessageType(t)
}

func init() {
	sendCmd.Flags().IntVar(&sendTo, "to", 0, "Destination process id")
	sendCmd.Flags().IntVar(&sendType, "type", 1, "Message type")
	sendCmd.Flags().StringVar(&sendData, "data", "", "Payload string")
	sendCmd.Flags().StringVar(&sendFile, "file", "", "Read the payload from a file")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Second, "How long to wait for the write")
	_ = sendCmd.MarkFlagRequired("to")
}
