package queue

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrServerClosed is returned by Serve after Close has been called.
var ErrServerClosed = errors.New("queue: server closed")

const acceptRetryDelay = 50 * time.Millisecond

// QueueServer accepts TCP connections and runs a Session for each of them
// on its own goroutine. All sessions share the same Store.
type QueueServer struct {
	addr         string
	store        Store
	logger       logrus.FieldLogger
	maxFrameSize int

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// ServerOption configures a QueueServer.
type ServerOption func(*QueueServer)

func WithLogger(logger logrus.FieldLogger) ServerOption {
	return func(qs *QueueServer) {
		qs.logger = logger
	}
}

// WithMaxFrameSize bounds the size of request frames on every connection.
func WithMaxFrameSize(n int) ServerOption {
	return func(qs *QueueServer) {
		qs.maxFrameSize = n
	}
}

func NewQueueServer(addr string, store Store, opts ...ServerOption) *QueueServer {
	qs := &QueueServer{
		addr:     addr,
		store:    store,
		logger:   logrus.StandardLogger(),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(qs)
	}
	return qs
}

// Start listens on the configured address and serves until ctx is done.
func (qs *QueueServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", qs.addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	return qs.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called.
// Before returning it closes every live session and waits for their
// goroutines. Cancellation returns nil; Close returns ErrServerClosed.
func (qs *QueueServer) Serve(ctx context.Context, ln net.Listener) error {
	qs.mu.Lock()
	if qs.closed {
		qs.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	qs.listener = ln
	qs.mu.Unlock()

	defer qs.wg.Wait()
	defer qs.closeSessions()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	qs.logger.WithFields(logrus.Fields{
		"address": ln.Addr().String(),
	}).Info("Queue service listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				if qs.isClosed() {
					return ErrServerClosed
				}
				return errors.Wrap(err, "accept")
			}
			qs.logger.WithError(err).Warn("accept error")
			time.Sleep(acceptRetryDelay)
			continue
		}

		qs.wg.Add(1)
		go func() {
			defer qs.wg.Done()
			qs.HandleConnection(ctx, conn)
		}()
	}
}

// HandleConnection runs a session over conn and returns when it ends.
// Errors are logged; they only ever affect this connection.
func (qs *QueueServer) HandleConnection(ctx context.Context, conn io.ReadWriteCloser) {
	logger := qs.logger
	if rc, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		logger = logger.WithField("remote_addr", rc.RemoteAddr().String())
	}

	session := NewSession(conn, qs.store, logger, WithFrameLimit(qs.maxFrameSize))
	if !qs.track(session) {
		session.Close()
		return
	}
	defer qs.untrack(session)

	session.logger.Debug("client connected")
	if err := session.Serve(ctx); err != nil {
		session.logger.WithError(err).Warn("session closed")
	}
}

// Addr returns the listener address once Serve has started, or nil.
func (qs *QueueServer) Addr() net.Addr {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.listener == nil {
		return nil
	}
	return qs.listener.Addr()
}

// Close stops accepting connections and closes every live session.
func (qs *QueueServer) Close() error {
	qs.mu.Lock()
	qs.closed = true
	ln := qs.listener
	qs.mu.Unlock()

	qs.closeSessions()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (qs *QueueServer) isClosed() bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.closed
}

func (qs *QueueServer) track(s *Session) bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.closed {
		return false
	}
	qs.sessions[s] = struct{}{}
	return true
}

func (qs *QueueServer) untrack(s *Session) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	delete(qs.sessions, s)
}

func (qs *QueueServer) closeSessions() {
	qs.mu.Lock()
	sessions := make([]*Session, 0, len(qs.sessions))
	for s := range qs.sessions {
		sessions = append(sessions, s)
	}
	qs.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
