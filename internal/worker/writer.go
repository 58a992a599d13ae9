package worker

import (
	"bufio"
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SachioKuro/mqs/internal/queue"
)

const finalFlushTimeout = 5 * time.Second

// FileWriterConfig holds configuration for the file writer
type FileWriterConfig struct {
	OutputFile    string
	Queue         string
	FlushInterval time.Duration
	AppendMode    bool
}

// FileWriterWorker periodically drains a queue and appends its lines to a file
type FileWriterWorker struct {
	config  FileWriterConfig
	queue   queue.QueueService
	logger  logrus.FieldLogger
	written int64
	running atomic.Bool
	file    *os.File
}

// NewFileWriterWorker creates a new file writer worker
func NewFileWriterWorker(q queue.QueueService, config FileWriterConfig, logger logrus.FieldLogger) (*FileWriterWorker, error) {
	if config.Queue == "" {
		return nil, errors.New("writer queue name is required")
	}
	if config.FlushInterval <= 0 {
		return nil, errors.Errorf("invalid flush interval %s", config.FlushInterval)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	flags := os.O_CREATE | os.O_WRONLY
	if config.AppendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(config.OutputFile, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output file")
	}

	return &FileWriterWorker{
		config: config,
		queue:  q,
		logger: logger.WithFields(logrus.Fields{"worker": "writer", "queue": config.Queue}),
		file:   file,
	}, nil
}

// Start drains the queue every flush interval until ctx is done, then
// performs one last drain so nothing enqueued before shutdown is lost.
func (w *FileWriterWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}
	defer w.running.Store(false)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping writer")
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			return w.flush(flushCtx)

		case <-ticker.C:
			if err := w.flush(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return errors.Wrap(err, "failed to flush batch")
			}
		}
	}
}

func (w *FileWriterWorker) flush(ctx context.Context) error {
	entries, err := w.queue.Drain(ctx, w.config.Queue)
	if err != nil {
		return errors.Wrap(err, "failed to drain queue")
	}
	if len(entries) == 0 {
		return nil
	}

	out := bufio.NewWriter(w.file)
	for _, e := range entries {
		rec, err := decodeRecord(e)
		if err != nil {
			w.logger.WithError(err).Warn("skipping undecodable record")
			continue
		}
		if _, err := out.WriteString(rec.Content + "\n"); err != nil {
			return errors.Wrap(err, "failed to write to file")
		}
		atomic.AddInt64(&w.written, 1)
	}
	if err := out.Flush(); err != nil {
		return errors.Wrap(err, "failed to write to file")
	}

	if err := w.file.Sync(); err != nil {
		w.logger.WithError(err).Warn("failed to sync file to disk")
	}

	w.logger.WithFields(logrus.Fields{
		"batch_size": len(entries),
		"total":      atomic.LoadInt64(&w.written),
	}).Info("flushed batch to file")

	return nil
}

// GetStats returns worker statistics
func (w *FileWriterWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"written":        atomic.LoadInt64(&w.written),
		"output_file":    w.config.OutputFile,
		"queue":          w.config.Queue,
		"flush_interval": w.config.FlushInterval.String(),
		"append_mode":    w.config.AppendMode,
		"is_running":     w.running.Load(),
	}
}

// Close closes the output file and the queue connection
func (w *FileWriterWorker) Close() error {
	var err error
	if w.file != nil {
		err = w.file.Close()
	}
	if w.queue != nil {
		if qerr := w.queue.Close(); err == nil {
			err = qerr
		}
	}
	return err
}

// IsRunning returns true if the worker is running
func (w *FileWriterWorker) IsRunning() bool {
	return w.running.Load()
}
