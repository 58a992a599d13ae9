// Package protocol defines the requests and responses exchanged between
// broker and clients. Every message is a JSON object carrying a "kind"
// discriminant; payloads are opaque JSON values the broker never inspects.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind discriminates message variants on the wire.
type Kind string

const (
	KindEnqueueAny Kind = "enqueue_any"
	KindEnqueue    Kind = "enqueue"
	KindReadAll    Kind = "read_all"
	KindDrain      Kind = "drain"

	KindAck      Kind = "ack"
	KindMessages Kind = "messages"
	KindError    Kind = "error"
)

var (
	// ErrUnknownKind is returned when decoding a message whose kind is not
	// part of the vocabulary.
	ErrUnknownKind = errors.New("protocol: unknown kind")

	// ErrInvalidRequest marks a request that decoded fine but cannot be
	// served, e.g. an enqueue without a queue name.
	ErrInvalidRequest = errors.New("invalid request")
)

// MarshalPayload encodes v as a compact payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: marshal payload")
	}
	return data, nil
}

// marshal is json.Marshal without HTML escaping, so '<', '>' and '&'
// inside payloads reach the other side as sent.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// normalize compacts payloads built by callers. Invalid JSON is kept as
// given so Validate can report it.
func normalize(raw json.RawMessage) json.RawMessage {
	if c, err := compact(raw); err == nil {
		return c
	}
	return raw
}

// compact normalizes a payload so that equal JSON values carry equal bytes
// after a trip over the wire.
func compact(raw json.RawMessage) (json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
