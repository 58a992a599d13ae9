package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Entry is one message handed back by a read: the queue it came from and
// its payload.
type Entry struct {
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`
}

// Response answers exactly one Request.
//
//	ack       Request (echo), Delivered
//	messages  Messages (never nil)
//	error     Error
type Response struct {
	Kind      Kind
	Request   *Request
	Delivered int
	Messages  []Entry
	Error     string
}

type responseWire struct {
	Kind      Kind     `json:"kind"`
	Request   *Request `json:"request,omitempty"`
	Delivered int      `json:"delivered,omitempty"`
	Messages  *[]Entry `json:"messages,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Ack acknowledges req. delivered is the number of queues the payload was
// appended to.
func Ack(req Request, delivered int) Response {
	return Response{Kind: KindAck, Request: &req, Delivered: delivered}
}

// Messages wraps the entries returned by a read.
func Messages(entries []Entry) Response {
	if entries == nil {
		entries = []Entry{}
	}
	for i := range entries {
		if entries[i].Payload == nil {
			entries[i].Payload = json.RawMessage("null")
			continue
		}
		entries[i].Payload = normalize(entries[i].Payload)
	}
	return Response{Kind: KindMessages, Messages: entries}
}

// Rejected reports a request the broker refused to serve.
func Rejected(err error) Response {
	return Response{Kind: KindError, Error: err.Error()}
}

// Err returns the rejection carried by an error response, or nil.
func (r Response) Err() error {
	if r.Kind != KindError {
		return nil
	}
	return errors.New(r.Error)
}

func isResponseKind(k Kind) bool {
	switch k {
	case KindAck, KindMessages, KindError:
		return true
	}
	return false
}

func (r Response) MarshalJSON() ([]byte, error) {
	w := responseWire{
		Kind:      r.Kind,
		Request:   r.Request,
		Delivered: r.Delivered,
		Error:     r.Error,
	}
	if r.Kind == KindMessages {
		msgs := r.Messages
		if msgs == nil {
			msgs = []Entry{}
		}
		w.Messages = &msgs
	}
	return marshal(w)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var w responseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !isResponseKind(w.Kind) {
		return errors.Wrapf(ErrUnknownKind, "response kind %q", w.Kind)
	}

	resp := Response{
		Kind:      w.Kind,
		Request:   w.Request,
		Delivered: w.Delivered,
		Error:     w.Error,
	}
	if w.Kind == KindMessages {
		resp.Messages = []Entry{}
		if w.Messages != nil {
			resp.Messages = *w.Messages
		}
		for i := range resp.Messages {
			payload, err := compact(resp.Messages[i].Payload)
			if err != nil {
				return errors.Wrap(err, "protocol: entry payload")
			}
			resp.Messages[i].Payload = payload
		}
	}

	*r = resp
	return nil
}
