package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/memberhub/internal/config"
	"github.com/iliyamo/memberhub/internal/queue"
	"github.com/iliyamo/memberhub/internal/router"
	"github.com/iliyamo/memberhub/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveFlags = struct {
	consumer bool
	logDir   string
}{}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the occupancy snapshot worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, serveFlags.consumer)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.consumer, "consumer", false, "also run the notification consumer in this process")
	cmd.Flags().StringVar(&serveFlags.logDir, "log-dir", "logs", "directory of the notification log")
	return cmd
}

func serveRun(cmd *cobra.Command, withConsumer bool) error {
	logger := commonRun()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	cc, err := config.LoadCacheConfig()
	if err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	e := router.New(a.handlers(), appConfig.JWTSecret, router.Options{
		Logger:    logger,
		RateLimit: rl,
		Cache:     cc,
		Redis:     a.redis,
		Metrics:   a.metrics,
		Gatherer:  a.registry,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.NewSnapshotWorker(a.occupancy, appConfig.OccupancySnapshotInterval, logger).Run(ctx)
	}()
	if withConsumer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := queue.NewNotificationConsumer(appConfig.RabbitMQURL, serveFlags.logDir, logger)
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + appConfig.Port
		logger.Info("listening", "component", programName, "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down", "component", programName)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	wg.Wait()
	return nil
}
