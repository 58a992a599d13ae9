package queue

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SachioKuro/mqs/internal/codec"
	"github.com/SachioKuro/mqs/internal/protocol"
)

// State is the position of a Session in its request loop.
type State int32

const (
	StateAwaitingFrame State = iota
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session serves one client connection: it reads a request frame,
// applies it to the store, writes the response and waits for the next
// frame. Responses go out in request order.
//
// A frame that cannot be decoded, or a failed read or write, ends the
// session and closes the connection without a response. A request that
// decodes but cannot be served is answered with an error response and the
// session continues.
type Session struct {
	ID string

	conn   io.ReadWriteCloser
	store  Store
	dec    *codec.Decoder
	enc    *codec.Encoder
	logger logrus.FieldLogger

	maxFrameSize int
	state        atomic.Int32
	closeOnce    sync.Once
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFrameLimit bounds the size of a single request frame. Zero means no
// limit.
func WithFrameLimit(n int) SessionOption {
	return func(s *Session) {
		s.maxFrameSize = n
	}
}

func NewSession(conn io.ReadWriteCloser, store Store, logger logrus.FieldLogger, opts ...SessionOption) *Session {
	s := &Session{
		ID:    uuid.NewString(),
		conn:  conn,
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s.logger = logger.WithField("session_id", s.ID)
	s.dec = codec.NewDecoder(conn, codec.WithMaxFrameSize(s.maxFrameSize))
	s.enc = codec.NewEncoder(conn)
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// setState never leaves StateClosed.
func (s *Session) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// Serve runs the request loop until the peer disconnects, a fatal error
// occurs or ctx is cancelled. A clean disconnect or cancellation returns
// nil. The connection is always closed on return.
func (s *Session) Serve(ctx context.Context) error {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		s.setState(StateAwaitingFrame)

		var req protocol.Request
		if err := s.dec.Decode(&req); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Debug("client disconnected")
				return nil
			case ctx.Err() != nil, s.State() == StateClosed:
				return nil
			case codec.IsFatal(err):
				return errors.Wrap(err, "decode request")
			}
			return errors.Wrap(err, "read request")
		}

		s.setState(StateDispatching)
		resp := s.dispatch(req)

		if err := s.enc.Encode(resp); err != nil {
			return errors.Wrap(err, "write response")
		}
	}
}

func (s *Session) dispatch(req protocol.Request) protocol.Response {
	log := s.logger.WithField("kind", req.Kind)
	if req.Queue != "" {
		log = log.WithField("queue", req.Queue)
	}

	if err := req.Validate(); err != nil {
		log.WithError(err).Warn("rejected request")
		return protocol.Rejected(err)
	}

	switch req.Kind {
	case protocol.KindEnqueueAny:
		delivered := s.store.EnqueueAny(string(req.Payload))
		log.WithField("delivered", delivered).Debug("broadcast message")
		return protocol.Ack(req, delivered)

	case protocol.KindEnqueue:
		s.store.EnqueueTo(req.Queue, string(req.Payload))
		log.Debug("enqueued message")
		return protocol.Ack(req, 1)

	case protocol.KindReadAll:
		entries := toProtocolEntries(s.store.ReadAll())
		log.WithField("count", len(entries)).Debug("drained all queues")
		return protocol.Messages(entries)

	case protocol.KindDrain:
		entries := toProtocolEntries(s.store.Drain(req.Queue))
		log.WithField("count", len(entries)).Debug("drained queue")
		return protocol.Messages(entries)
	}

	return protocol.Rejected(errors.Wrapf(protocol.ErrInvalidRequest, "unknown kind %q", req.Kind))
}

// Close ends the session and releases the connection. It is safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.conn.Close()
	})
	return err
}

func toProtocolEntries(entries []Entry) []protocol.Entry {
	out := make([]protocol.Entry, len(entries))
	for i, e := range entries {
		out[i] = protocol.Entry{Queue: e.Queue, Payload: json.RawMessage(e.Payload)}
	}
	return out
}
