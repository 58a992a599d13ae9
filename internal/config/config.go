package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/SachioKuro/mqs/internal/worker"
)

const (
	DefaultQueueAddr    = ":12345"
	DefaultMaxFrameSize = 1024 * 1024
	DefaultQueueName    = "lines"
)

// ServerConfig holds the broker settings
type ServerConfig struct {
	Addr         string
	MaxFrameSize int
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string
	Format string
}

// Config holds the application configuration
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	ReaderConfig worker.FileReaderConfig
	WriterConfig worker.FileWriterConfig
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	maxFrameSize, err := strconv.Atoi(getEnv("MAX_FRAME_SIZE", strconv.Itoa(DefaultMaxFrameSize)))
	if err != nil {
		return nil, errors.Wrap(err, "invalid MAX_FRAME_SIZE")
	}
	if maxFrameSize < 0 {
		return nil, errors.Errorf("invalid MAX_FRAME_SIZE: %d is negative", maxFrameSize)
	}

	batchSize, err := strconv.Atoi(getEnv("BATCH_SIZE", "100"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid BATCH_SIZE")
	}

	bufferSize, err := strconv.Atoi(getEnv("BUFFER_SIZE", "65536"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid BUFFER_SIZE")
	}

	flushInterval, err := time.ParseDuration(getEnv("FLUSH_INTERVAL", "5s"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid FLUSH_INTERVAL")
	}

	queueName := getEnv("QUEUE_NAME", DefaultQueueName)

	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("QUEUE_ADDR", DefaultQueueAddr),
			MaxFrameSize: maxFrameSize,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		ReaderConfig: worker.FileReaderConfig{
			InputFile:  getEnv("INPUT_FILE", "input.txt"),
			Queue:      queueName,
			BatchSize:  batchSize,
			BufferSize: bufferSize,
		},
		WriterConfig: worker.FileWriterConfig{
			OutputFile:    getEnv("OUTPUT_FILE", "output.txt"),
			Queue:         queueName,
			FlushInterval: flushInterval,
			AppendMode:    getEnvBool("APPEND_MODE", false),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
