package queue_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SachioKuro/mqs/internal/queue"
)

// startServer serves a fresh store on a loopback port and returns its
// address. The server is stopped when the spec ends.
func startServer(opts ...queue.ServerOption) (*queue.QueueServer, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	opts = append([]queue.ServerOption{queue.WithLogger(testLogger())}, opts...)
	server := queue.NewQueueServer(ln.Addr().String(), queue.NewMessageQueue(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln)
	}()

	DeferCleanup(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
	return server, ln.Addr().String()
}

type lineConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

func dialLines(addr string) *lineConn {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(conn.Close)

	return &lineConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

func (c *lineConn) roundTrip(line string) string {
	_, err := c.writer.WriteString(line + "\n")
	Expect(err).NotTo(HaveOccurred())
	Expect(c.writer.Flush()).To(Succeed())

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := c.reader.ReadString('\n')
	Expect(err).NotTo(HaveOccurred())
	return response
}

var _ = Describe("QueueServer", func() {
	var addr string

	BeforeEach(func() {
		_, addr = startServer()
	})

	Describe("handling messages", func() {
		When("sending an enqueue request", func() {
			It("should acknowledge it", func() {
				c := dialLines(addr)
				response := c.roundTrip(`{"kind":"enqueue","queue":"jobs","payload":{"id":1}}`)
				Expect(response).To(MatchJSON(`{"kind":"ack","request":{"kind":"enqueue","queue":"jobs","payload":{"id":1}},"delivered":1}`))
			})
		})

		When("sending a read_all request", func() {
			It("should return messages enqueued from another connection", func() {
				producer := dialLines(addr)
				producer.roundTrip(`{"kind":"enqueue","queue":"q","payload":"hello"}`)

				consumer := dialLines(addr)
				response := consumer.roundTrip(`{"kind":"read_all"}`)
				Expect(response).To(MatchJSON(`{"kind":"messages","messages":[{"queue":"q","payload":"hello"}]}`))

				response = consumer.roundTrip(`{"kind":"read_all"}`)
				Expect(response).To(MatchJSON(`{"kind":"messages","messages":[]}`))
			})
		})

		When("sending an enqueue_any request to an empty broker", func() {
			It("should create no queue", func() {
				c := dialLines(addr)
				response := c.roundTrip(`{"kind":"enqueue_any","payload":"x"}`)
				Expect(response).To(MatchJSON(`{"kind":"ack","request":{"kind":"enqueue_any","payload":"x"}}`))

				response = c.roundTrip(`{"kind":"read_all"}`)
				Expect(response).To(MatchJSON(`{"kind":"messages","messages":[]}`))
			})
		})

		When("enqueueing a payload with HTML characters", func() {
			It("should return the payload bytes unchanged", func() {
				c := dialLines(addr)
				c.roundTrip(`{"kind":"enqueue","queue":"q","payload":"a&b"}`)

				response := c.roundTrip(`{"kind":"read_all"}`)
				Expect(response).To(Equal(`{"kind":"messages","messages":[{"queue":"q","payload":"a&b"}]}` + "\n"))
			})
		})

		When("sending malformed JSON", func() {
			It("should close only that connection", func() {
				healthy := dialLines(addr)
				healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":1}`)

				broken := dialLines(addr)
				_, err := broken.writer.WriteString("{oops\n")
				Expect(err).NotTo(HaveOccurred())
				Expect(broken.writer.Flush()).To(Succeed())

				broken.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				_, err = broken.reader.ReadString('\n')
				Expect(err).To(HaveOccurred())

				response := healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":2}`)
				Expect(response).To(ContainSubstring(`"kind":"ack"`))

				response = healthy.roundTrip(`{"kind":"drain","queue":"q"}`)
				Expect(response).To(MatchJSON(`{"kind":"messages","messages":[{"queue":"q","payload":1},{"queue":"q","payload":2}]}`))
			})
		})
	})

	Describe("framing errors", func() {
		// breakConnection writes raw bytes on a fresh connection and waits
		// for the broker to hang up without answering.
		breakConnection := func(target string, data []byte) {
			broken := dialLines(target)
			_, err := broken.conn.Write(data)
			Expect(err).NotTo(HaveOccurred())

			broken.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = broken.reader.ReadString('\n')
			Expect(err).To(HaveOccurred())
		}

		It("should isolate a connection sending invalid UTF-8", func() {
			healthy := dialLines(addr)
			healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":1}`)

			breakConnection(addr, []byte{'{', 0xff, 0xfe, '}', '\n'})

			response := healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":2}`)
			Expect(response).To(ContainSubstring(`"kind":"ack"`))

			response = healthy.roundTrip(`{"kind":"drain","queue":"q"}`)
			Expect(response).To(MatchJSON(`{"kind":"messages","messages":[{"queue":"q","payload":1},{"queue":"q","payload":2}]}`))
		})

		It("should isolate a connection sending an oversized frame", func() {
			_, limited := startServer(queue.WithMaxFrameSize(64))
			healthy := dialLines(limited)
			healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":1}`)

			breakConnection(limited, []byte(strings.Repeat("a", 256)))

			response := healthy.roundTrip(`{"kind":"enqueue","queue":"q","payload":2}`)
			Expect(response).To(ContainSubstring(`"kind":"ack"`))

			response = healthy.roundTrip(`{"kind":"drain","queue":"q"}`)
			Expect(response).To(MatchJSON(`{"kind":"messages","messages":[{"queue":"q","payload":1},{"queue":"q","payload":2}]}`))
		})
	})

	Describe("frame limits", func() {
		It("should drop connections sending oversized frames", func() {
			_, limited := startServer(queue.WithMaxFrameSize(64))
			c := dialLines(limited)

			response := c.roundTrip(`{"kind":"read_all"}`)
			Expect(response).To(ContainSubstring("messages"))

			_, err := c.writer.WriteString(`{"kind":"enqueue","queue":"q","payload":"` + strings.Repeat("a", 128) + "\"}\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.writer.Flush()).To(Succeed())

			c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = c.reader.ReadString('\n')
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Close", func() {
		It("should stop serving and disconnect clients", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			server := queue.NewQueueServer("", queue.NewMessageQueue(), queue.WithLogger(testLogger()))
			done := make(chan error, 1)
			go func() {
				done <- server.Serve(context.Background(), ln)
			}()
			Eventually(server.Addr).ShouldNot(BeNil())

			c := dialLines(ln.Addr().String())
			c.roundTrip(`{"kind":"read_all"}`)

			Expect(server.Close()).To(Succeed())
			Eventually(done).Should(Receive(MatchError(queue.ErrServerClosed)))

			c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = c.reader.ReadString('\n')
			Expect(err).To(HaveOccurred())
		})
	})
})
