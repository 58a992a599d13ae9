// Package codec turns a byte stream into newline-delimited frames and back.
//
// A frame is the UTF-8 text preceding a single '\n' delimiter. The codec
// does not know what a frame means; frame bodies are JSON documents that
// callers unmarshal into their own types.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Delimiter terminates every frame on the wire.
const Delimiter byte = '\n'

// ErrNeedMoreData reports that the buffered bytes do not yet hold a
// complete frame. Nothing has been consumed.
var ErrNeedMoreData = errors.New("codec: incomplete frame")

// FramingError means the byte stream cannot be split into valid frames.
// It is fatal to the connection that produced it.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "codec: framing error: " + e.Reason
}

// ProtocolError means a frame was well formed but its body could not be
// decoded into a message.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("codec: protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Split looks for the first delimiter in buf. When there is none it returns
// ErrNeedMoreData and leaves buf untouched. Otherwise frame holds the bytes
// before the delimiter and rest the bytes after it. A frame that is not
// valid UTF-8 is still split off, together with a *FramingError, so callers
// never see the same bad frame twice.
func Split(buf []byte) (frame, rest []byte, err error) {
	i := bytes.IndexByte(buf, Delimiter)
	if i < 0 {
		return nil, buf, ErrNeedMoreData
	}

	frame, rest = buf[:i], buf[i+1:]
	return frame, rest, validate(frame)
}

func validate(frame []byte) error {
	if !utf8.Valid(frame) {
		return &FramingError{Reason: "invalid UTF-8"}
	}
	return nil
}

// Encode serializes v as JSON, without HTML escaping, and appends the
// delimiter.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "codec: encode")
	}
	return append(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), Delimiter), nil
}

// Unmarshal decodes a single frame body into v. Any failure is reported as
// a *ProtocolError.
func Unmarshal(frame []byte, v any) error {
	if err := json.Unmarshal(frame, v); err != nil {
		return &ProtocolError{Err: err}
	}
	return nil
}

// IsFatal reports whether err must terminate the connection it came from.
func IsFatal(err error) bool {
	var fe *FramingError
	var pe *ProtocolError
	return errors.As(err, &fe) || errors.As(err, &pe)
}
