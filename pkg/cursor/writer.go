package cursor

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ChunkSize is the size of the buffer used by CopyRange.
const ChunkSize = 2048

// Writer appends bytes and fixed-width values to an io.Writer and counts
// the bytes written so far.
type Writer struct {
	dst   io.Writer
	order binary.ByteOrder
	n     int64
	tmp   [8]byte
	chunk []byte
}

func NewWriter(dst io.Writer, order binary.ByteOrder) *Writer {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Writer{dst: dst, order: order}
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.n += int64(n)
	if err != nil {
		return n, errors.Wrap(err, "write")
	}
	return n, nil
}

func (w *Writer) Uint8(v uint8) error {
	w.tmp[0] = v
	_, err := w.Write(w.tmp[:1])
	return err
}

func (w *Writer) Uint16(v uint16) error {
	w.order.PutUint16(w.tmp[:2], v)
	_, err := w.Write(w.tmp[:2])
	return err
}

func (w *Writer) Uint32(v uint32) error {
	w.order.PutUint32(w.tmp[:4], v)
	_, err := w.Write(w.tmp[:4])
	return err
}

func (w *Writer) Uint64(v uint64) error {
	w.order.PutUint64(w.tmp[:8], v)
	_, err := w.Write(w.tmp[:8])
	return err
}

func (w *Writer) Uint32s(vs []uint32) error {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		w.order.PutUint32(buf[i*4:], v)
	}
	_, err := w.Write(buf)
	return err
}

// CopyRange streams the bytes [from, to) of r unchanged, ChunkSize bytes at
// a time. An empty or negative range writes nothing.
func (w *Writer) CopyRange(r *Reader, from, to int64) error {
	remaining := to - from
	if remaining <= 0 {
		return nil
	}
	if err := r.SeekTo(from); err != nil {
		return err
	}
	if w.chunk == nil {
		w.chunk = make([]byte, ChunkSize)
	}
	for remaining > 0 {
		n := int64(len(w.chunk))
		if remaining < n {
			n = remaining
		}
		if err := r.ReadFull(w.chunk[:n]); err != nil {
			return err
		}
		if _, err := w.Write(w.chunk[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}
