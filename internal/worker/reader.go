package worker

import (
	"bufio"
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SachioKuro/mqs/internal/queue"
)

// FileReaderConfig holds configuration for the file reader
type FileReaderConfig struct {
	InputFile  string
	Queue      string
	BatchSize  int
	BufferSize int
}

// FileReaderWorker reads a file line by line and enqueues each line
type FileReaderWorker struct {
	config    FileReaderConfig
	queue     queue.QueueService
	logger    logrus.FieldLogger
	processed int64
	running   atomic.Bool
}

// NewFileReaderWorker creates a new file reader worker
func NewFileReaderWorker(q queue.QueueService, config FileReaderConfig, logger logrus.FieldLogger) (*FileReaderWorker, error) {
	if config.Queue == "" {
		return nil, errors.New("reader queue name is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &FileReaderWorker{
		config: config,
		queue:  q,
		logger: logger.WithFields(logrus.Fields{"worker": "reader", "queue": config.Queue}),
	}, nil
}

// Start reads the whole file and enqueues every line
func (w *FileReaderWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}
	defer w.running.Store(false)

	file, err := os.Open(w.config.InputFile)
	if err != nil {
		return errors.Wrap(err, "failed to open input file")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if w.config.BufferSize > 0 {
		scanner.Buffer(make([]byte, 0, w.config.BufferSize), w.config.BufferSize)
	}

	lineNum := 0
	batch := make([]LineRecord, 0, w.config.BatchSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			w.logger.Info("context cancelled, stopping reader")
			return err
		}

		lineNum++
		batch = append(batch, LineRecord{
			ID:        uuid.NewString(),
			Content:   scanner.Text(),
			LineNum:   lineNum,
			Timestamp: time.Now().UTC(),
		})

		if len(batch) >= w.config.BatchSize {
			if err := w.processBatch(ctx, batch); err != nil {
				return errors.Wrap(err, "failed to process batch")
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanner error")
	}

	if err := w.processBatch(ctx, batch); err != nil {
		return errors.Wrap(err, "failed to flush final batch")
	}

	w.logger.WithFields(logrus.Fields{
		"processed": atomic.LoadInt64(&w.processed),
		"file":      w.config.InputFile,
	}).Info("file reading completed")

	return nil
}

func (w *FileReaderWorker) processBatch(ctx context.Context, batch []LineRecord) error {
	for _, rec := range batch {
		if err := w.queue.Enqueue(ctx, w.config.Queue, rec); err != nil {
			return errors.Wrapf(err, "failed to enqueue line %d", rec.LineNum)
		}
		atomic.AddInt64(&w.processed, 1)

		w.logger.WithFields(logrus.Fields{
			"id":     rec.ID,
			"line":   rec.LineNum,
			"length": len(rec.Content),
		}).Debug("enqueued line")
	}
	return nil
}

// GetStats returns worker statistics
func (w *FileReaderWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"processed":   atomic.LoadInt64(&w.processed),
		"input_file":  w.config.InputFile,
		"queue":       w.config.Queue,
		"batch_size":  w.config.BatchSize,
		"buffer_size": w.config.BufferSize,
		"is_running":  w.running.Load(),
	}
}

// Close closes the worker and its resources
func (w *FileReaderWorker) Close() error {
	if w.queue != nil {
		return w.queue.Close()
	}
	return nil
}

// IsRunning returns true if the worker is running
func (w *FileReaderWorker) IsRunning() bool {
	return w.running.Load()
}
