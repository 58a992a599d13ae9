package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SachioKuro/mqs/internal/config"
	"github.com/SachioKuro/mqs/internal/queue"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr         string
		maxFrameSize int
		envFile      string
	)

	cmd := &cobra.Command{
		Use:          "queue-service [address]",
		Short:        "Run the message queue broker",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return errors.Wrap(err, "failed to load configuration")
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if len(args) == 1 {
				cfg.Server.Addr = args[0]
			}
			if cmd.Flags().Changed("max-frame-size") {
				cfg.Server.MaxFrameSize = maxFrameSize
			}

			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := queue.NewQueueServer(cfg.Server.Addr, queue.NewMessageQueue(),
				queue.WithLogger(logger),
				queue.WithMaxFrameSize(cfg.Server.MaxFrameSize),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Start(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				logger.Info("Shutting down queue service...")
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Queue service failed")
				return err
			}
			logger.Info("Queue service stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultQueueAddr, "address to listen on (overrides QUEUE_ADDR)")
	cmd.Flags().IntVar(&maxFrameSize, "max-frame-size", config.DefaultMaxFrameSize, "largest accepted request frame in bytes, 0 for no limit")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	return cmd
}
