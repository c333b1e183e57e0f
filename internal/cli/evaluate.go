package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumocare/cogscreen/internal/assess"
)

func newEvaluateCmd() *cobra.Command {
	var (
		chatID   int64
		reportID int64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Trigger server-side evaluation of a chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient()

			var eval assess.Evaluation
			err := evaluatePolicy().Do(cmd.Context(), func() error {
				var err error
				eval, err = client.Evaluate(cmd.Context(), chatID, reportID)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("evaluation: result=%s risk=%s (%s)\n", eval.ChatResult, eval.ChatRisk, eval.Message)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat session id")
	cmd.Flags().Int64Var(&reportID, "report", 0, "screening report id")
	_ = cmd.MarkFlagRequired("chat")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}
