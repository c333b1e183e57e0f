package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumocare/cogscreen/internal/assess"
	"github.com/lumocare/cogscreen/internal/chat"
	"github.com/lumocare/cogscreen/internal/reliability"
)

func newAPIClient() *assess.Client {
	return assess.NewClient(cfg.APIBaseURL, log,
		assess.WithTokenSource(assess.NewStaticTokenSource(cfg.APIToken)),
		assess.WithRequestTimeout(cfg.RequestTimeout),
	)
}

func evaluatePolicy() reliability.Policy {
	return reliability.Policy{
		MaxRetries: cfg.EvaluateRetries,
		Base:       cfg.EvaluateBackoffBase,
		Cap:        5 * time.Second,
	}
}

func newChatCmd() *cobra.Command {
	var reportID int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive screening conversation",
		Long:  "Creates or resumes the chat session for a screening report, then reads messages from stdin and streams assistant responses back. Type /done to finalize the session, /quit to leave without evaluating.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := newAPIClient()
			session := chat.NewSession(log)
			controller := chat.NewController(session, client, log)
			controller.OnToken(func(token string) { fmt.Print(token) })

			if err := controller.CreateOrResume(ctx, reportID); err != nil {
				return err
			}
			for _, turn := range session.Transcript() {
				printTurn(turn)
			}

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("you> ")
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				switch {
				case text == "":
				case text == "/quit":
					return nil
				case text == "/done":
					return finalize(ctx, controller)
				default:
					fmt.Print("assistant> ")
					if err := controller.SendUserMessage(ctx, text); err != nil {
						fmt.Println()
						// The transcript keeps the attempted turn; the user
						// can simply resend.
						log.Error().Err(err).Msg("send failed")
					} else {
						fmt.Println()
					}
				}
				if ctx.Err() != nil {
					return nil
				}
				fmt.Print("you> ")
			}
			return scanner.Err()
		},
	}

	cmd.Flags().Int64Var(&reportID, "report", 0, "screening report id the chat belongs to")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func finalize(ctx context.Context, controller *chat.Controller) error {
	var eval assess.Evaluation
	err := evaluatePolicy().Do(ctx, func() error {
		var err error
		eval, err = controller.Finalize(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("evaluation: result=%s risk=%s (%s)\n", eval.ChatResult, eval.ChatRisk, eval.Message)
	return nil
}

func printTurn(turn chat.Turn) {
	prefix := "assistant> "
	if turn.Speaker == chat.SpeakerUser {
		prefix = "you> "
	}
	fmt.Printf("%s%s\n", prefix, turn.Text)
}
