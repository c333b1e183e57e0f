package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <report-or-chat-id>",
		Short: "Fetch and print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("log key must be numeric: %w", err)
			}

			entries, err := newAPIClient().LogsByReport(cmd.Context(), key)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no transcript entries")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("[%s] %s: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Role, e.Message)
			}
			return nil
		},
	}
}
