package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumocare/cogscreen/internal/observability"
	"github.com/lumocare/cogscreen/internal/relay"
	"github.com/lumocare/cogscreen/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local assessment relay",
		Long:  "Serves the chat endpoints the client consumes (create, stream, logs, evaluate) against a local store, with a scripted assistant. Intended for development and integration testing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("store init: %w", err)
			}
			defer st.Close()

			metrics := observability.NewMetrics(cfg.MetricsNamespace)
			server := relay.New(st, relay.NewResponder(), metrics, cfg.AllowAnyOrigin, log)
			httpServer := &http.Server{
				Addr:    cfg.BindAddr,
				Handler: server.Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.BindAddr).Msg("relay listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("listen: %w", err)
			case <-ctx.Done():
			}
			log.Info().Msg("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown failed")
				_ = httpServer.Close()
			}
			log.Info().Msg("shutdown complete")
			return nil
		},
	}
}
