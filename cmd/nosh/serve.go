package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nosh/endpoint"
	"nosh/log"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gen, err := endpoint.NewGemini(ctx, cfg.APIKey, cfg.Server.Model)
			if err != nil {
				return err
			}
			handler := endpoint.NewHandler(gen, endpoint.Config{
				MaxRetries: cfg.Server.MaxRetries,
				RetryDelay: cfg.RetryDelay(),
			})

			mux := http.NewServeMux()
			mux.Handle("/extract", handler)

			srv := &http.Server{
				Addr:              cfg.Server.Bind,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("extraction endpoint listening on " + cfg.Server.Bind)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
}
