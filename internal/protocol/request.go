package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Request is one client instruction. Which fields matter depends on Kind:
//
//	enqueue_any  Payload
//	enqueue      Queue, Payload
//	read_all     -
//	drain        Queue
type Request struct {
	Kind    Kind
	Queue   string
	Payload json.RawMessage
}

type requestWire struct {
	Kind    Kind            `json:"kind"`
	Queue   string          `json:"queue,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EnqueueAny asks the broker to append payload to every existing queue.
func EnqueueAny(payload json.RawMessage) Request {
	return Request{Kind: KindEnqueueAny, Payload: normalize(payload)}
}

// Enqueue asks the broker to append payload to queue, creating it if needed.
func Enqueue(queue string, payload json.RawMessage) Request {
	return Request{Kind: KindEnqueue, Queue: queue, Payload: normalize(payload)}
}

// ReadAll asks the broker to drain every queue.
func ReadAll() Request {
	return Request{Kind: KindReadAll}
}

// Drain asks the broker to drain a single queue.
func Drain(queue string) Request {
	return Request{Kind: KindDrain, Queue: queue}
}

func isRequestKind(k Kind) bool {
	switch k {
	case KindEnqueueAny, KindEnqueue, KindReadAll, KindDrain:
		return true
	}
	return false
}

// Validate reports whether the broker can serve r. Failures wrap
// ErrInvalidRequest.
func (r Request) Validate() error {
	if !isRequestKind(r.Kind) {
		return errors.Wrapf(ErrInvalidRequest, "unknown kind %q", r.Kind)
	}

	switch r.Kind {
	case KindEnqueue, KindDrain:
		if r.Queue == "" {
			return errors.Wrapf(ErrInvalidRequest, "%s requires a queue name", r.Kind)
		}
	}

	switch r.Kind {
	case KindEnqueue, KindEnqueueAny:
		if len(r.Payload) == 0 {
			return errors.Wrapf(ErrInvalidRequest, "%s requires a payload", r.Kind)
		}
		if !json.Valid(r.Payload) {
			return errors.Wrapf(ErrInvalidRequest, "%s payload is not valid JSON", r.Kind)
		}
	}
	return nil
}

func (r Request) MarshalJSON() ([]byte, error) {
	return marshal(requestWire{
		Kind:    r.Kind,
		Queue:   r.Queue,
		Payload: r.Payload,
	})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !isRequestKind(w.Kind) {
		return errors.Wrapf(ErrUnknownKind, "request kind %q", w.Kind)
	}

	payload, err := compact(w.Payload)
	if err != nil {
		return errors.Wrap(err, "protocol: request payload")
	}

	*r = Request{Kind: w.Kind, Queue: w.Queue, Payload: payload}
	return nil
}
