package queue

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/SachioKuro/mqs/internal/codec"
	"github.com/SachioKuro/mqs/internal/protocol"
)

// ErrRejected wraps the reason a broker gave for refusing a request.
var ErrRejected = errors.New("request rejected")

// QueueClient speaks the broker protocol over one TCP connection. Calls
// are serialized; each waits for its response before the next request is
// sent.
//
// A call interrupted by its context leaves the connection in an unknown
// position in the stream; the client should be closed afterwards.
type QueueClient struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *codec.Decoder
	enc  *codec.Encoder
}

func NewQueueClient(addr string) (*QueueClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect")
	}
	return NewQueueClientConn(conn), nil
}

// NewQueueClientConn wraps an established connection.
func NewQueueClientConn(conn net.Conn) *QueueClient {
	return &QueueClient{
		conn: conn,
		dec:  codec.NewDecoder(conn),
		enc:  codec.NewEncoder(conn),
	}
}

// EnqueueAny appends payload to every queue the broker currently knows and
// returns how many received it.
func (qc *QueueClient) EnqueueAny(ctx context.Context, payload any) (int, error) {
	p, err := protocol.MarshalPayload(payload)
	if err != nil {
		return 0, err
	}

	resp, err := qc.roundTrip(ctx, protocol.EnqueueAny(p), protocol.KindAck)
	if err != nil {
		return 0, err
	}
	return resp.Delivered, nil
}

// Enqueue appends payload to the named queue.
func (qc *QueueClient) Enqueue(ctx context.Context, queue string, payload any) error {
	p, err := protocol.MarshalPayload(payload)
	if err != nil {
		return err
	}

	_, err = qc.roundTrip(ctx, protocol.Enqueue(queue, p), protocol.KindAck)
	return err
}

// ReadAll drains every queue on the broker.
func (qc *QueueClient) ReadAll(ctx context.Context) ([]protocol.Entry, error) {
	resp, err := qc.roundTrip(ctx, protocol.ReadAll(), protocol.KindMessages)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Drain empties a single queue on the broker.
func (qc *QueueClient) Drain(ctx context.Context, queue string) ([]protocol.Entry, error) {
	resp, err := qc.roundTrip(ctx, protocol.Drain(queue), protocol.KindMessages)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (qc *QueueClient) roundTrip(ctx context.Context, req protocol.Request, want protocol.Kind) (protocol.Response, error) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}
	// A zero deadline clears whatever an earlier call left behind.
	deadline, _ := ctx.Deadline()
	qc.conn.SetDeadline(deadline)

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		qc.conn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			<-fired
		}
		qc.conn.SetDeadline(time.Time{})
	}()

	var resp protocol.Response
	if err := qc.enc.Encode(req); err != nil {
		return resp, qc.failure(ctx, errors.Wrapf(err, "send %s", req.Kind))
	}
	if err := qc.dec.Decode(&resp); err != nil {
		return resp, qc.failure(ctx, errors.Wrapf(err, "receive %s response", req.Kind))
	}

	if err := resp.Err(); err != nil {
		return resp, errors.Wrap(ErrRejected, err.Error())
	}
	if resp.Kind != want {
		return resp, errors.Errorf("unexpected %s response to %s", resp.Kind, req.Kind)
	}
	return resp, nil
}

func (qc *QueueClient) failure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, err.Error())
	}
	return err
}

func (qc *QueueClient) Close() error {
	return qc.conn.Close()
}
