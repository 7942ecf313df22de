// Package cursor provides random-access reads and sequential writes of
// fixed-width integers over in-memory byte buffers.
package cursor

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrOutOfRange = errors.New("out of range")

// Reader reads fixed-width values at a movable position of an in-memory
// buffer. Reads past the end of the buffer fail with ErrOutOfRange and leave
// the position unchanged.
type Reader struct {
	buf   []byte
	pos   int64
	order binary.ByteOrder
}

func NewReader(buf []byte, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{buf: buf, order: order}
}

func (r *Reader) SetByteOrder(order binary.ByteOrder) { r.order = order }

func (r *Reader) Size() int64 { return int64(len(r.buf)) }

func (r *Reader) Pos() int64 { return r.pos }

// SeekTo moves the position to an absolute offset. Seeking to the end of the
// buffer is allowed, any read from there fails.
func (r *Reader) SeekTo(offset int64) error {
	if offset < 0 || offset > int64(len(r.buf)) {
		return errors.Wrapf(ErrOutOfRange, "seek to %d, size %d", offset, len(r.buf))
	}
	r.pos = offset
	return nil
}

func (r *Reader) next(n int64) ([]byte, error) {
	if n < 0 || r.pos+n > int64(len(r.buf)) {
		return nil, errors.Wrapf(ErrOutOfRange, "read %d bytes at %d, size %d", n, r.pos, len(r.buf))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int64) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	res := make([]byte, n)
	copy(res, b)
	return res, nil
}

// ReadFull fills p from the current position.
func (r *Reader) ReadFull(p []byte) error {
	b, err := r.next(int64(len(p)))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// Word reads an 8 byte value when wide is set and a 4 byte value otherwise.
func (r *Reader) Word(wide bool) (uint64, error) {
	if wide {
		return r.Uint64()
	}
	v, err := r.Uint32()
	return uint64(v), err
}

// Uint32s reads n consecutive 4 byte values.
func (r *Reader) Uint32s(n int) ([]uint32, error) {
	b, err := r.next(int64(n) * 4)
	if err != nil {
		return nil, err
	}
	res := make([]uint32, n)
	for i := range res {
		res[i] = r.order.Uint32(b[i*4:])
	}
	return res, nil
}
