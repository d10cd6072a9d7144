package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	ackList  bool
	ackLimit int
)

var ackCmd = &cobra.Command{
	Use:   "ack [alert-id...]",
	Short: "List or acknowledge pending alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ackList || len(args) == 0 {
			if ackLimit <= 0 {
				return fmt.Errorf("--limit must be greater than zero")
			}
			return getApp().ListPending(cmd.Context(), ackLimit)
		}

		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", arg)
			}
			ids = append(ids, id)
		}

		return getApp().Acknowledge(cmd.Context(), ids)
	},
}

func init() {
	ackCmd.Flags().BoolVar(&ackList, "list", false, "List pending alerts instead of acknowledging")
	ackCmd.Flags().IntVar(&ackLimit, "limit", 20, "Number of pending alerts to list")
}
