package codec

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Encoder writes one frame per value and flushes after each, so a peer
// waiting for a response never stalls on buffered bytes.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Encode(v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return errors.Wrap(err, "codec: write frame")
	}
	if err := e.w.Flush(); err != nil {
		return errors.Wrap(err, "codec: flush frame")
	}
	return nil
}
