package frame

import (
	"fmt"
	"io"
)

// WriteHeader emits exactly HeaderLen bytes of h to w (spec §4.2).
func WriteHeader(w io.Writer, h Header) error {
	buf := h.Marshal()
	_, err := w.Write(buf[:])
	return err
}

// WriteBlock writes h into b's prelude and emits HeaderLen+n bytes as a
// single write, so the header and its payload land in the pipe atomically.
// A single writer (the protocol driver) is expected to call this; the
// transport thread re-frames independently on the socket side.
func WriteBlock(w io.Writer, b *Block, h Header, n int) error {
	b.SetHeader(h)
	_, err := w.Write(b.Frame(n))
	return err
}

// ReadHeader reads exactly HeaderLen bytes from r and validates them. EOF
// encountered before any byte is read is propagated as io.EOF (end of
// stream); a short read after that is an error. This loops-until-filled
// the same way the teacher's lib/readers.ReadFill does for its encrypted
// block headers.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderLen]byte
	n, err := io.ReadFull(r, buf[:])
	if n == 0 && err == io.EOF {
		return Header{}, io.EOF
	}
	if err != nil {
		return Header{}, fmt.Errorf("frame: read header: %w", err)
	}
	return Unmarshal(buf[:])
}

// ReadData loops until exactly n bytes have accumulated in buf[:n],
// propagating EOF as end-of-stream.
func ReadData(r io.Reader, buf []byte, n int) error {
	read, err := io.ReadFull(r, buf[:n])
	if read == 0 && err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("frame: read data: %w", err)
	}
	return nil
}
