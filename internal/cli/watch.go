package cli

import (
	"fmt"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lumocare/cogscreen/internal/relay"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the relay's live transcript feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			u, err := url.Parse(cfg.APIBaseURL)
			if err != nil {
				return fmt.Errorf("parse api url: %w", err)
			}
			switch u.Scheme {
			case "http":
				u.Scheme = "ws"
			case "https":
				u.Scheme = "wss"
			default:
				return fmt.Errorf("unsupported api url scheme %q", u.Scheme)
			}
			u.Path = "/debug/transcripts/ws"

			conn, res, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
			if err != nil {
				return fmt.Errorf("dial transcript feed: %w", err)
			}
			if res != nil && res.Body != nil {
				res.Body.Close()
			}
			defer conn.Close()

			// Unblock the read loop when the user interrupts.
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()

			log.Info().Str("url", u.String()).Msg("watching live transcripts")
			for {
				var ev relay.TranscriptEvent
				if err := conn.ReadJSON(&ev); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("transcript feed closed: %w", err)
				}
				fmt.Printf("[report %d / chat %d] %s: %s\n", ev.ReportID, ev.ChatID, ev.Role, ev.Message)
			}
		},
	}
}
