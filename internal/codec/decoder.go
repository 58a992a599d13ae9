package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const readChunkSize = 4096

// Decoder accumulates bytes and hands out complete frames.
//
// It can be driven in two ways: push bytes with Feed and pull frames with
// Next, or wrap an io.Reader and call ReadFrame/Decode, which read from the
// underlying stream only when the buffer holds no complete frame.
type Decoder struct {
	r       io.Reader
	buf     []byte
	scratch []byte
	max     int

	// scanned counts the leading bytes of buf already known to hold no
	// delimiter.
	scanned int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxFrameSize limits the length of a single frame, delimiter excluded.
// Zero disables the limit.
func WithMaxFrameSize(n int) Option {
	return func(d *Decoder) {
		d.max = n
	}
}

// NewDecoder returns a decoder reading from r. r may be nil when the
// decoder is only fed through Feed.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{r: r}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends p to the pending bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes waiting for a delimiter.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next removes and returns the next complete frame, without its delimiter.
// It returns ErrNeedMoreData if no delimiter has been seen yet.
func (d *Decoder) Next() ([]byte, error) {
	i := bytes.IndexByte(d.buf[d.scanned:], Delimiter)
	if i < 0 {
		d.scanned = len(d.buf)
		if d.max > 0 && len(d.buf) > d.max {
			return nil, d.tooLarge(len(d.buf))
		}
		return nil, ErrNeedMoreData
	}

	end := d.scanned + i
	out := make([]byte, end)
	copy(out, d.buf[:end])
	n := copy(d.buf, d.buf[end+1:])
	d.buf = d.buf[:n]
	d.scanned = 0

	if err := validate(out); err != nil {
		return nil, err
	}
	if d.max > 0 && len(out) > d.max {
		return nil, d.tooLarge(len(out))
	}
	return out, nil
}

// ReadFrame returns the next frame, reading from the underlying reader as
// often as needed. A stream that ends cleanly between frames yields io.EOF;
// one that ends inside a frame yields io.ErrUnexpectedEOF.
func (d *Decoder) ReadFrame() ([]byte, error) {
	for {
		frame, err := d.Next()
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrNeedMoreData) || d.r == nil {
			return nil, err
		}

		if d.scratch == nil {
			d.scratch = make([]byte, readChunkSize)
		}
		n, rerr := d.r.Read(d.scratch)
		if n > 0 {
			d.Feed(d.scratch[:n])
		}
		if rerr == nil {
			continue
		}
		if rerr != io.EOF {
			return nil, rerr
		}
		if n > 0 {
			continue
		}
		if len(d.buf) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, io.EOF
	}
}

// Decode reads the next frame and unmarshals it into v.
func (d *Decoder) Decode(v any) error {
	frame, err := d.ReadFrame()
	if err != nil {
		return err
	}
	return Unmarshal(frame, v)
}

func (d *Decoder) tooLarge(size int) error {
	return &FramingError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit of %d", size, d.max)}
}
