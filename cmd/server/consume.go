package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/memberhub/internal/queue"
)

func consumeCommand() *cobra.Command {
	var logDir string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume badge notifications from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := queue.NewNotificationConsumer(appConfig.RabbitMQURL, logDir, logger).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "logs", "directory of the notification log")
	return cmd
}
