package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SachioKuro/mqs/internal/config"
	"github.com/SachioKuro/mqs/internal/queue"
	"github.com/SachioKuro/mqs/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "file-service",
		Short:        "Copy a file line by line through the queue broker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return errors.Wrap(err, "failed to load configuration")
			}

			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	return cmd
}

func run(parent context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logger.Info("Starting reader/writer system...")

	readerClient, err := queue.NewQueueClient(cfg.Server.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to connect reader to queue service")
	}
	reader, err := worker.NewFileReaderWorker(readerClient, cfg.ReaderConfig, logger)
	if err != nil {
		readerClient.Close()
		return errors.Wrap(err, "failed to create reader worker")
	}
	defer reader.Close()

	writerClient, err := queue.NewQueueClient(cfg.Server.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to connect writer to queue service")
	}
	writer, err := worker.NewFileWriterWorker(writerClient, cfg.WriterConfig, logger)
	if err != nil {
		writerClient.Close()
		return errors.Wrap(err, "failed to create writer worker")
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := reader.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "reader worker error")
		}
		logger.WithFields(logrus.Fields(reader.GetStats())).Info("Reader finished")
		return nil
	})

	g.Go(func() error {
		err := writer.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "writer worker error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Worker failed, shutting down...")
		return err
	}

	logger.Info("System shutting down")
	return nil
}
