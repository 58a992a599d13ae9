package queue

import (
	"context"

	"github.com/SachioKuro/mqs/internal/protocol"
)

// Store is what a Session dispatches requests against. MessageQueue is the
// in-memory implementation.
type Store interface {
	EnqueueAny(payload string) int
	EnqueueTo(name, payload string)
	ReadAll() []Entry
	Drain(name string) []Entry
}

// QueueService defines the client side of the broker protocol.
type QueueService interface {
	EnqueueAny(ctx context.Context, payload any) (int, error)
	Enqueue(ctx context.Context, queue string, payload any) error
	ReadAll(ctx context.Context) ([]protocol.Entry, error)
	Drain(ctx context.Context, queue string) ([]protocol.Entry, error)
	Close() error
}

var _ Store = (*MessageQueue)(nil)
var _ QueueService = (*QueueClient)(nil)
