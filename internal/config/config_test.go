package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/SachioKuro/mqs/internal/config"
)

var _ = Describe("LoadFromEnv", func() {
	It("should fall back to defaults", func() {
		for _, key := range []string{"QUEUE_ADDR", "MAX_FRAME_SIZE", "QUEUE_NAME", "FLUSH_INTERVAL", "LOG_LEVEL"} {
			GinkgoT().Setenv(key, "")
		}

		cfg, err := config.LoadFromEnv()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Addr).To(Equal(config.DefaultQueueAddr))
		Expect(cfg.Server.MaxFrameSize).To(Equal(config.DefaultMaxFrameSize))
		Expect(cfg.ReaderConfig.Queue).To(Equal(config.DefaultQueueName))
		Expect(cfg.WriterConfig.Queue).To(Equal(config.DefaultQueueName))
		Expect(cfg.WriterConfig.FlushInterval).To(Equal(5 * time.Second))
		Expect(cfg.Log.Level).To(Equal("info"))
	})

	It("should read values from the environment", func() {
		GinkgoT().Setenv("QUEUE_ADDR", "127.0.0.1:4000")
		GinkgoT().Setenv("MAX_FRAME_SIZE", "0")
		GinkgoT().Setenv("QUEUE_NAME", "events")
		GinkgoT().Setenv("APPEND_MODE", "true")

		cfg, err := config.LoadFromEnv()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Addr).To(Equal("127.0.0.1:4000"))
		Expect(cfg.Server.MaxFrameSize).To(BeZero())
		Expect(cfg.ReaderConfig.Queue).To(Equal("events"))
		Expect(cfg.WriterConfig.AppendMode).To(BeTrue())
	})

	DescribeTable("should reject invalid values",
		func(key, value string) {
			GinkgoT().Setenv(key, value)
			_, err := config.LoadFromEnv()
			Expect(err).To(MatchError(ContainSubstring(key)))
		},
		Entry("frame size", "MAX_FRAME_SIZE", "big"),
		Entry("negative frame size", "MAX_FRAME_SIZE", "-1"),
		Entry("batch size", "BATCH_SIZE", "many"),
		Entry("flush interval", "FLUSH_INTERVAL", "soon"),
	)
})

var _ = Describe("Load", func() {
	BeforeEach(func() {
		os.Unsetenv("QUEUE_NAME")
		DeferCleanup(os.Unsetenv, "QUEUE_NAME")
	})

	It("should read a .env file", func() {
		envFile := filepath.Join(GinkgoT().TempDir(), ".env")
		Expect(os.WriteFile(envFile, []byte("QUEUE_NAME=from-file\n"), 0o644)).To(Succeed())

		cfg, err := config.Load(envFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ReaderConfig.Queue).To(Equal("from-file"))
	})

	It("should tolerate a missing .env file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "absent.env"))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("NewLogger", func() {
	It("should apply level and format", func() {
		logger, err := config.NewLogger(config.LogConfig{Level: "debug", Format: "text"})
		Expect(err).NotTo(HaveOccurred())
		Expect(logger.GetLevel()).To(Equal(logrus.DebugLevel))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&logrus.TextFormatter{}))
	})

	It("should reject unknown settings", func() {
		_, err := config.NewLogger(config.LogConfig{Level: "loud", Format: "json"})
		Expect(err).To(HaveOccurred())

		_, err = config.NewLogger(config.LogConfig{Level: "info", Format: "xml"})
		Expect(err).To(HaveOccurred())
	})
})
