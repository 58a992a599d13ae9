package worker_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SachioKuro/mqs/internal/queue"
	"github.com/SachioKuro/mqs/internal/worker"
)

var _ = Describe("FileReaderWorker", func() {
	var (
		workerInstance *worker.FileReaderWorker
		inspector      *queue.QueueClient
		config         worker.FileReaderConfig
	)

	BeforeEach(func() {
		inputFile := filepath.Join(GinkgoT().TempDir(), "input.txt")
		content := "line 1\nline 2\nline 3\nline 4\nline 5\n"
		Expect(os.WriteFile(inputFile, []byte(content), 0o644)).To(Succeed())

		addr := startBroker()
		inspector = dial(addr)

		config = worker.FileReaderConfig{
			InputFile:  inputFile,
			Queue:      "lines",
			BatchSize:  2,
			BufferSize: 1024,
		}

		var err error
		workerInstance, err = worker.NewFileReaderWorker(dial(addr), config, testLogger())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Start", func() {
		It("should enqueue every line in order", func() {
			Expect(workerInstance.Start(context.Background())).To(Succeed())

			entries, err := inspector.Drain(context.Background(), "lines")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(5))

			for i, e := range entries {
				var rec worker.LineRecord
				Expect(json.Unmarshal(e.Payload, &rec)).To(Succeed())
				Expect(rec.LineNum).To(Equal(i + 1))
				Expect(rec.Content).To(Equal("line " + string(rune('1'+i))))
				Expect(rec.ID).NotTo(BeEmpty())
			}
		})

		It("should stop when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(workerInstance.Start(ctx)).To(MatchError(context.Canceled))
			Expect(workerInstance.IsRunning()).To(BeFalse())
		})

		It("should fail for a missing input file", func() {
			config.InputFile = filepath.Join(GinkgoT().TempDir(), "missing.txt")
			w, err := worker.NewFileReaderWorker(inspector, config, testLogger())
			Expect(err).NotTo(HaveOccurred())

			Expect(w.Start(context.Background())).To(MatchError(ContainSubstring("failed to open input file")))
		})
	})

	Describe("GetStats", func() {
		It("should return correct stats", func() {
			Expect(workerInstance.Start(context.Background())).To(Succeed())

			stats := workerInstance.GetStats()
			Expect(stats["processed"]).To(Equal(int64(5)))
			Expect(stats["queue"]).To(Equal("lines"))
			Expect(stats["is_running"]).To(BeFalse())
		})
	})

	It("should require a queue name", func() {
		config.Queue = ""
		_, err := worker.NewFileReaderWorker(inspector, config, testLogger())
		Expect(err).To(HaveOccurred())
	})
})
