package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-speech-gateway/internal/server"
	"github.com/example/go-speech-gateway/internal/tts"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the speech gateway HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}

			if err := svc.Preflight(); err != nil {
				slog.Warn("pocket-tts executable not found, synthesis will fail",
					slog.String("error", err.Error()))
			}

			srv := server.New(cfg, svc).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("speech gateway listening", slog.String("addr", cfg.Server.ListenAddr))

			return srv.Start(ctx)
		},
	}

	return cmd
}
