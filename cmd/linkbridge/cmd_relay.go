package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/linkbridge/internal/room"
)

var relayListen string

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "listen address (default: relay.listen from config)")
	rootCmd.AddCommand(relayCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the room relay that peers join",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		listen := relayListen
		if listen == "" {
			listen = cfg.Relay.Listen
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              listen,
			Handler:           room.NewServer().Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			slog.Info("room relay started", "listen", listen)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("room relay: %w", err)
			}
			return nil
		case <-ctx.Done():
			slog.Info("shutting down room relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			// Hijacked websocket connections are not tracked by Shutdown.
			return srv.Close()
		}
	},
}
