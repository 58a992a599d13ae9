package queue

import "sync"

// Entry is a message removed from the store together with the name of the
// queue that held it. Payload is the serialized JSON value as received.
type Entry struct {
	Queue   string
	Payload string
}

// MessageQueue holds every named queue of a broker. A single mutex guards
// all of them, so each method is atomic with respect to the others: a
// reader never sees a broadcast applied to only some queues.
//
// Queues are created on first enqueue or first drain and live as long as
// the MessageQueue itself.
type MessageQueue struct {
	mu     sync.Mutex
	queues map[string][]string
	order  []string
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		queues: make(map[string][]string),
	}
}

// ensure must be called with mq.mu held.
func (mq *MessageQueue) ensure(name string) {
	if _, ok := mq.queues[name]; ok {
		return
	}
	mq.queues[name] = nil
	mq.order = append(mq.order, name)
}

// EnqueueAny appends payload to every queue that exists right now and
// returns how many queues received it. It never creates a queue.
func (mq *MessageQueue) EnqueueAny(payload string) int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	for _, name := range mq.order {
		mq.queues[name] = append(mq.queues[name], payload)
	}
	return len(mq.order)
}

// EnqueueTo appends payload to the named queue, creating it if needed.
func (mq *MessageQueue) EnqueueTo(name, payload string) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	mq.ensure(name)
	mq.queues[name] = append(mq.queues[name], payload)
}

// ReadAll removes and returns every buffered message. Queues are visited in
// creation order and each queue is emptied in FIFO order. The queues
// themselves remain, empty.
func (mq *MessageQueue) ReadAll() []Entry {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	var entries []Entry
	for _, name := range mq.order {
		entries = mq.take(entries, name)
	}
	return entries
}

// Drain removes and returns the messages of a single queue. Draining a
// queue that does not exist creates it.
func (mq *MessageQueue) Drain(name string) []Entry {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	mq.ensure(name)
	return mq.take(nil, name)
}

// take must be called with mq.mu held.
func (mq *MessageQueue) take(dst []Entry, name string) []Entry {
	for _, payload := range mq.queues[name] {
		dst = append(dst, Entry{Queue: name, Payload: payload})
	}
	mq.queues[name] = nil
	return dst
}

// Queues returns the queue names in creation order.
func (mq *MessageQueue) Queues() []string {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	names := make([]string, len(mq.order))
	copy(names, mq.order)
	return names
}

// Len returns the number of messages buffered in the named queue.
func (mq *MessageQueue) Len(name string) int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	return len(mq.queues[name])
}
